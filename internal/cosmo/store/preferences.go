package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrPreferenceNotFound is returned by Get for an unknown key. Callers use
// errors.Is to distinguish it from real failures.
var ErrPreferenceNotFound = errors.New("preference not found")

// Preference is one scoped key/value user setting.
type Preference struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Preferences is the preference repository.
type Preferences struct {
	store *Store
}

// NewPreferences returns the preference repository backed by s.
func NewPreferences(s *Store) *Preferences {
	return &Preferences{store: s}
}

// Get reads a preference by key.
func (r *Preferences) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.store.db.QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", ErrPreferenceNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, nil
}

// Set writes a preference, replacing any existing value.
func (r *Preferences) Set(ctx context.Context, key, value string) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// Delete removes a preference. Deleting an absent key reports not-found.
func (r *Preferences) Delete(ctx context.Context, key string) error {
	res, err := r.store.db.ExecContext(ctx, "DELETE FROM preferences WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPreferenceNotFound, key)
	}
	return nil
}

// List returns all preferences sorted by key.
func (r *Preferences) List(ctx context.Context) ([]Preference, error) {
	rows, err := r.store.db.QueryContext(ctx,
		"SELECT key, value, updated_at FROM preferences ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []Preference
	for rows.Next() {
		var p Preference
		if err := rows.Scan(&p.Key, &p.Value, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}
