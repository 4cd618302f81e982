package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Quest is a progress goal measured against completed atoms of one type
// (the metric). Manual completion is final.
type Quest struct {
	UUID      string
	Title     string
	Metric    string
	Target    int
	Progress  int
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Quests is the quest repository and progress engine.
type Quests struct {
	store *Store
}

// NewQuests returns the quest repository backed by s.
func NewQuests(s *Store) *Quests {
	return &Quests{store: s}
}

// Create inserts a new quest.
func (r *Quests) Create(ctx context.Context, title, metric string, target int) (*Quest, error) {
	q := &Quest{
		UUID:      uuid.NewString(),
		Title:     title,
		Metric:    metric,
		Target:    target,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO quests (uuid, title, metric, target, progress, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, ?, ?)
	`, q.UUID, q.Title, q.Metric, q.Target, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create quest: %w", err)
	}
	return q, nil
}

// List returns all quests, incomplete first.
func (r *Quests) List(ctx context.Context) ([]*Quest, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT uuid, title, metric, target, progress, completed, created_at, updated_at
		FROM quests ORDER BY completed ASC, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer rows.Close()

	var quests []*Quest
	for rows.Next() {
		q := &Quest{}
		if err := rows.Scan(&q.UUID, &q.Title, &q.Metric, &q.Target, &q.Progress, &q.Completed, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		quests = append(quests, q)
	}
	return quests, rows.Err()
}

// Evaluate recomputes every open quest's progress from the count of
// completed atoms matching its metric, marking quests complete when the
// target is reached. Returns the refreshed list.
func (r *Quests) Evaluate(ctx context.Context) ([]*Quest, error) {
	quests, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, q := range quests {
		if q.Completed {
			continue
		}
		var n int
		err := r.store.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM atoms WHERE completed = 1 AND type = ?", q.Metric).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("evaluate quest %s: %w", q.UUID, err)
		}
		q.Progress = n
		if n >= q.Target {
			q.Completed = true
		}
		if _, err := r.store.db.ExecContext(ctx,
			"UPDATE quests SET progress = ?, completed = ?, updated_at = ? WHERE uuid = ?",
			q.Progress, q.Completed, now, q.UUID); err != nil {
			return nil, fmt.Errorf("store quest progress %s: %w", q.UUID, err)
		}
	}
	return quests, nil
}

// CompleteManually marks a quest complete regardless of progress. Completing
// an unknown or already-completed quest reports not-found so the caller can
// surface it as plain text.
func (r *Quests) CompleteManually(ctx context.Context, id string) error {
	res, err := r.store.db.ExecContext(ctx,
		"UPDATE quests SET completed = 1, updated_at = ? WHERE uuid = ? AND completed = 0",
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("complete quest %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete quest %s: %w", id, err)
	}
	if n == 0 {
		var exists int
		if lookupErr := r.store.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM quests WHERE uuid = ?", id).Scan(&exists); lookupErr == nil && exists > 0 {
			return fmt.Errorf("quest %s is already completed", id)
		}
		return fmt.Errorf("quest not found: %s", id)
	}
	return nil
}

// LevelReport summarizes the level system: completed atoms award experience,
// 100 XP per level.
type LevelReport struct {
	Level          int
	Experience     int
	CompletedTotal int
	CompletedWeek  int
	OpenQuests     int
}

// Level computes the current level report.
func (r *Quests) Level(ctx context.Context) (*LevelReport, error) {
	atoms := NewAtoms(r.store)

	total, err := atoms.CompletedCount(ctx, nil)
	if err != nil {
		return nil, err
	}
	weekAgo := time.Now().AddDate(0, 0, -7)
	week, err := atoms.CompletedCount(ctx, &weekAgo)
	if err != nil {
		return nil, err
	}

	var open int
	if err := r.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM quests WHERE completed = 0").Scan(&open); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("open quests: %w", err)
	}

	const xpPerAtom = 10
	xp := total * xpPerAtom
	return &LevelReport{
		Level:          xp/100 + 1,
		Experience:     xp,
		CompletedTotal: total,
		CompletedWeek:  week,
		OpenQuests:     open,
	}, nil
}
