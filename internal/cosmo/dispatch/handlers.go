package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cosmo-os/cosmo/internal/cosmo/store"
)

// registerBuiltins wires every catalog tool to its domain operation. Tool
// results are flat JSON objects: the orchestrator inspects only success and
// uuid; everything else is written for the model to read.
func (d *Dispatcher) registerBuiltins(deps Deps) {
	// ----- creation --------------------------------------------------------
	d.Register("create_atom", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		a, err := atomFromArgs(args)
		if err != nil {
			return nil, err
		}
		created, err := deps.Atoms.Create(ctx, a)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "uuid": created.UUID, "title": created.Title}, nil
	})

	d.Register("batch_create", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		items, _ := args["atoms"].([]any)
		if len(items) == 0 {
			return nil, fmt.Errorf("batch_create needs at least one atom")
		}
		var uuids []any
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("atom %d is not an object", i)
			}
			a, err := atomFromArgs(m)
			if err != nil {
				return nil, fmt.Errorf("atom %d: %w", i, err)
			}
			created, err := deps.Atoms.Create(ctx, a)
			if err != nil {
				return nil, fmt.Errorf("atom %d: %w", i, err)
			}
			uuids = append(uuids, created.UUID)
		}
		return map[string]any{"success": true, "uuids": uuids, "count": len(uuids)}, nil
	})

	// ----- mutation --------------------------------------------------------
	d.Register("update_atom", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		id := stringArg(args, "uuid")
		fields := map[string]any{}
		for _, k := range []string{"title", "body", "phase"} {
			if v, ok := args[k].(string); ok {
				fields[k] = v
			}
		}
		if v, ok := args["completed"].(bool); ok {
			fields["completed"] = v
		}
		updated, err := deps.Atoms.Update(ctx, id, fields)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "uuid": updated.UUID, "title": updated.Title}, nil
	})

	d.Register("delete_atom", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		id := stringArg(args, "uuid")
		if err := deps.Atoms.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "deleted": id}, nil
	})

	// ----- scheduling ------------------------------------------------------
	d.Register("schedule_block", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		start, err := timeArg(args, "start_at")
		if err != nil {
			return nil, err
		}
		end, err := timeArg(args, "end_at")
		if err != nil {
			return nil, err
		}
		created, err := deps.Atoms.Create(ctx, store.Atom{
			Type:    "block",
			Title:   stringArg(args, "title"),
			StartAt: start,
			EndAt:   end,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "uuid": created.UUID, "start_at": created.StartAt.Format(time.RFC3339)}, nil
	})

	d.Register("move_block", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		start, err := timeArg(args, "start_at")
		if err != nil {
			return nil, err
		}
		end, err := timeArg(args, "end_at")
		if err != nil {
			return nil, err
		}
		updated, err := deps.Atoms.Update(ctx, stringArg(args, "uuid"), map[string]any{
			"start_at": *start, "end_at": *end,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "uuid": updated.UUID, "start_at": start.Format(time.RFC3339)}, nil
	})

	d.Register("cancel_block", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		id := stringArg(args, "uuid")
		if err := deps.Atoms.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "cancelled": id}, nil
	})

	// ----- retrieval -------------------------------------------------------
	d.Register("search_atoms", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		results, err := deps.Search.Query(ctx, stringArg(args, "query"), intArg(args, "limit"))
		if err != nil {
			return nil, err
		}
		var hits []any
		for _, r := range results {
			hits = append(hits, map[string]any{
				"uuid": r.UUID, "type": r.Type, "title": r.Title, "snippet": r.Snippet,
			})
		}
		return map[string]any{"success": true, "results": hits, "count": len(results)}, nil
	})

	d.Register("get_atom", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		a, err := deps.Atoms.Get(ctx, stringArg(args, "uuid"))
		if err != nil {
			return nil, err
		}
		out := map[string]any{
			"success": true, "uuid": a.UUID, "type": a.Type, "title": a.Title,
			"body": a.Body, "phase": a.Phase, "completed": a.Completed,
		}
		if a.StartAt != nil {
			out["start_at"] = a.StartAt.Format(time.RFC3339)
		}
		return out, nil
	})

	d.Register("list_atoms", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		atoms, err := deps.Atoms.ListByType(ctx, stringArg(args, "type"), intArg(args, "limit"))
		if err != nil {
			return nil, err
		}
		var items []any
		for _, a := range atoms {
			items = append(items, map[string]any{"uuid": a.UUID, "title": a.Title, "completed": a.Completed})
		}
		return map[string]any{"success": true, "atoms": items, "count": len(items)}, nil
	})

	// ----- analytics -------------------------------------------------------
	d.Register("query_level_system", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		report, err := deps.Quests.Level(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success":         true,
			"level":           report.Level,
			"experience":      report.Experience,
			"completed_total": report.CompletedTotal,
			"completed_week":  report.CompletedWeek,
			"open_quests":     report.OpenQuests,
		}, nil
	})

	d.Register("trigger_correlation_analysis", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		days := intArg(args, "days")
		if days <= 0 {
			days = 14
		}
		cutoff := time.Now().AddDate(0, 0, -days)
		prior := cutoff.AddDate(0, 0, -days)

		recent, err := deps.Atoms.CompletedCount(ctx, &cutoff)
		if err != nil {
			return nil, err
		}
		before, err := deps.Atoms.CompletedCount(ctx, &prior)
		if err != nil {
			return nil, err
		}
		before -= recent // prior window only

		trend := "steady"
		switch {
		case recent > before:
			trend = "up"
		case recent < before:
			trend = "down"
		}
		return map[string]any{
			"success":          true,
			"window_days":      days,
			"completed_recent": recent,
			"completed_prior":  before,
			"trend":            trend,
		}, nil
	})

	// ----- logging ---------------------------------------------------------
	d.Register("log_workout", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		meta := map[string]any{}
		if m := intArg(args, "minutes"); m > 0 {
			meta["minutes"] = m
		}
		created, err := deps.Atoms.Create(ctx, store.Atom{
			Type:      "workout",
			Title:     stringArg(args, "description"),
			Phase:     "done",
			Completed: true,
			Metadata:  meta,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "uuid": created.UUID}, nil
	})

	d.Register("log_journal", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		created, err := deps.Atoms.Create(ctx, store.Atom{
			Type:  "journal",
			Title: "Journal " + time.Now().Format("Jan 2"),
			Body:  stringArg(args, "entry"),
			Phase: "done",
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "uuid": created.UUID}, nil
	})

	// ----- preferences -----------------------------------------------------
	d.Register("get_preference", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		key := stringArg(args, "key")
		value, err := deps.Prefs.Get(ctx, key)
		if errors.Is(err, store.ErrPreferenceNotFound) {
			return map[string]any{"success": true, "key": key, "found": false}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "key": key, "found": true, "value": value}, nil
	})

	d.Register("set_preference", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		key := stringArg(args, "key")
		if err := deps.Prefs.Set(ctx, key, stringArg(args, "value")); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "key": key}, nil
	})

	d.Register("delete_preference", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		key := stringArg(args, "key")
		if err := deps.Prefs.Delete(ctx, key); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "deleted": key}, nil
	})

	// ----- progress --------------------------------------------------------
	d.Register("evaluate_quests", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		quests, err := deps.Quests.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		var items []any
		for _, q := range quests {
			items = append(items, map[string]any{
				"uuid": q.UUID, "title": q.Title,
				"progress": q.Progress, "target": q.Target, "completed": q.Completed,
			})
		}
		return map[string]any{"success": true, "quests": items}, nil
	})

	d.Register("complete_quest", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		id := stringArg(args, "uuid")
		if err := deps.Quests.CompleteManually(ctx, id); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "completed": id}, nil
	})

	// ----- focus -----------------------------------------------------------
	d.Register("start_deep_work", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		minutes := intArg(args, "minutes")
		if minutes <= 0 {
			minutes = 50
		}
		s, err := deps.Focus.Start(stringArg(args, "title"), time.Duration(minutes)*time.Minute)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "started_at": s.StartedAt.Format(time.RFC3339), "minutes": minutes}, nil
	})

	d.Register("stop_deep_work", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		s, elapsed, err := deps.Focus.Stop()
		if err != nil {
			return nil, err
		}
		title := s.Title
		if title == "" {
			title = "Deep work session"
		}
		created, err := deps.Atoms.Create(ctx, store.Atom{
			Type:      "session",
			Title:     title,
			Phase:     "done",
			Completed: true,
			Metadata:  map[string]any{"minutes": int(elapsed.Minutes())},
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "uuid": created.UUID, "elapsed_minutes": int(elapsed.Minutes())}, nil
	})

	d.Register("extend_deep_work", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		s, err := deps.Focus.Extend(time.Duration(intArg(args, "minutes")) * time.Minute)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "total_minutes": int(s.Duration.Minutes())}, nil
	})

	// ----- navigation ------------------------------------------------------
	d.Register("navigate", func(ctx context.Context, args map[string]any) (map[string]any, error) {
		// The payload is opaque to Cosmo; the host surface interprets it.
		return map[string]any{"success": true, "navigate_to": stringArg(args, "view")}, nil
	})
}

// atomFromArgs builds a store.Atom from create-style arguments.
func atomFromArgs(args map[string]any) (store.Atom, error) {
	a := store.Atom{
		Type:  stringArg(args, "type"),
		Title: stringArg(args, "title"),
		Body:  stringArg(args, "body"),
	}
	if a.Title == "" {
		return a, fmt.Errorf("title must not be empty")
	}
	if _, ok := args["start_at"]; ok {
		start, err := timeArg(args, "start_at")
		if err != nil {
			return a, err
		}
		a.StartAt = start
	}
	if _, ok := args["end_at"]; ok {
		end, err := timeArg(args, "end_at")
		if err != nil {
			return a, err
		}
		a.EndAt = end
	}
	return a, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg reads a numeric argument. JSON numbers decode as float64; handle
// plain ints too for direct callers.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func timeArg(args map[string]any, key string) (*time.Time, error) {
	s := stringArg(args, key)
	if s == "" {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp", key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}
