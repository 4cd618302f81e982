package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Atom is the generic persisted entity: an idea, task, content capture, or
// scheduled block. Phase tracks its position in the pipeline.
type Atom struct {
	UUID      string
	Type      string
	Title     string
	Body      string
	Phase     string
	StartAt   *time.Time
	EndAt     *time.Time
	Completed bool
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Atoms is the atom repository.
type Atoms struct {
	store *Store
}

// NewAtoms returns the atom repository backed by s.
func NewAtoms(s *Store) *Atoms {
	return &Atoms{store: s}
}

// Create inserts a new atom and returns it with a fresh uuid.
func (r *Atoms) Create(ctx context.Context, a Atom) (*Atom, error) {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	if a.Phase == "" {
		a.Phase = "inbox"
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode atom metadata: %w", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO atoms (uuid, type, title, body, phase, start_at, end_at, completed, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.UUID, a.Type, a.Title, a.Body, a.Phase, a.StartAt, a.EndAt, a.Completed, string(meta), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create atom: %w", err)
	}
	return &a, nil
}

// scanAtom reads one atom row.
func scanAtom(scan func(dest ...any) error) (*Atom, error) {
	a := &Atom{}
	var startAt, endAt sql.NullTime
	var meta string
	if err := scan(&a.UUID, &a.Type, &a.Title, &a.Body, &a.Phase, &startAt, &endAt, &a.Completed, &meta, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if startAt.Valid {
		t := startAt.Time
		a.StartAt = &t
	}
	if endAt.Valid {
		t := endAt.Time
		a.EndAt = &t
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode atom metadata: %w", err)
		}
	}
	return a, nil
}

const atomColumns = "uuid, type, title, body, phase, start_at, end_at, completed, metadata, created_at, updated_at"

// Get fetches one atom by uuid.
func (r *Atoms) Get(ctx context.Context, id string) (*Atom, error) {
	row := r.store.db.QueryRowContext(ctx,
		"SELECT "+atomColumns+" FROM atoms WHERE uuid = ?", id)
	a, err := scanAtom(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("atom not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get atom %s: %w", id, err)
	}
	return a, nil
}

// Update applies non-nil fields to an existing atom. Fields holds column
// updates keyed by name; unknown keys are rejected.
func (r *Atoms) Update(ctx context.Context, id string, fields map[string]any) (*Atom, error) {
	allowed := map[string]bool{
		"title": true, "body": true, "phase": true, "completed": true,
		"start_at": true, "end_at": true,
	}
	setClause := ""
	var args []any
	for k, v := range fields {
		if !allowed[k] {
			return nil, fmt.Errorf("atom field %q cannot be updated", k)
		}
		if setClause != "" {
			setClause += ", "
		}
		setClause += k + " = ?"
		args = append(args, v)
	}
	if setClause == "" {
		return r.Get(ctx, id)
	}
	args = append(args, time.Now(), id)

	res, err := r.store.db.ExecContext(ctx,
		"UPDATE atoms SET "+setClause+", updated_at = ? WHERE uuid = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update atom %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update atom %s: %w", id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("atom not found: %s", id)
	}
	return r.Get(ctx, id)
}

// Delete removes an atom permanently.
func (r *Atoms) Delete(ctx context.Context, id string) error {
	res, err := r.store.db.ExecContext(ctx, "DELETE FROM atoms WHERE uuid = ?", id)
	if err != nil {
		return fmt.Errorf("delete atom %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete atom %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("atom not found: %s", id)
	}
	return nil
}

// ListByType returns atoms of one type, newest first.
func (r *Atoms) ListByType(ctx context.Context, atomType string, limit int) ([]*Atom, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.store.db.QueryContext(ctx,
		"SELECT "+atomColumns+" FROM atoms WHERE type = ? ORDER BY created_at DESC LIMIT ?",
		atomType, limit)
	if err != nil {
		return nil, fmt.Errorf("list atoms: %w", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

// ScheduledOn returns atoms whose start time falls on the given day, in
// start order. Used for the "today's schedule" snapshot.
func (r *Atoms) ScheduledOn(ctx context.Context, day time.Time) ([]*Atom, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	rows, err := r.store.db.QueryContext(ctx,
		"SELECT "+atomColumns+" FROM atoms WHERE start_at >= ? AND start_at < ? ORDER BY start_at ASC",
		start, end)
	if err != nil {
		return nil, fmt.Errorf("scheduled atoms: %w", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

// CountsByType tallies non-completed atoms per type.
func (r *Atoms) CountsByType(ctx context.Context) (map[string]int, error) {
	rows, err := r.store.db.QueryContext(ctx,
		"SELECT type, COUNT(*) FROM atoms WHERE completed = 0 GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("count atoms: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// PhaseTallies tallies atoms per pipeline phase.
func (r *Atoms) PhaseTallies(ctx context.Context) (map[string]int, error) {
	rows, err := r.store.db.QueryContext(ctx,
		"SELECT phase, COUNT(*) FROM atoms GROUP BY phase")
	if err != nil {
		return nil, fmt.Errorf("phase tallies: %w", err)
	}
	defer rows.Close()

	tallies := make(map[string]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		tallies[p] = n
	}
	return tallies, rows.Err()
}

// RecentCaptures returns the latest captured atoms of any type.
func (r *Atoms) RecentCaptures(ctx context.Context, limit int) ([]*Atom, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.store.db.QueryContext(ctx,
		"SELECT "+atomColumns+" FROM atoms ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent captures: %w", err)
	}
	defer rows.Close()
	return collectAtoms(rows)
}

// CompletedCount counts completed atoms, optionally since a cutoff.
func (r *Atoms) CompletedCount(ctx context.Context, since *time.Time) (int, error) {
	var n int
	var err error
	if since != nil {
		err = r.store.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM atoms WHERE completed = 1 AND updated_at >= ?", *since).Scan(&n)
	} else {
		err = r.store.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM atoms WHERE completed = 1").Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("completed count: %w", err)
	}
	return n, nil
}

func collectAtoms(rows *sql.Rows) ([]*Atom, error) {
	var atoms []*Atom
	for rows.Next() {
		a, err := scanAtom(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan atom: %w", err)
		}
		atoms = append(atoms, a)
	}
	return atoms, rows.Err()
}
