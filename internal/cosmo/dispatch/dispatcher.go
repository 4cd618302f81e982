package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cosmo-os/cosmo/internal/cosmo/store"
	"github.com/cosmo-os/cosmo/internal/cosmo/tools"
)

// Collaborator interfaces. The dispatcher is the only component that talks
// to these stores; the orchestrator sees tool-result payloads and nothing
// else. All are satisfied by the repositories in internal/cosmo/store.

// AtomStore is the generic entity store.
type AtomStore interface {
	Create(ctx context.Context, a store.Atom) (*store.Atom, error)
	Get(ctx context.Context, id string) (*store.Atom, error)
	Update(ctx context.Context, id string, fields map[string]any) (*store.Atom, error)
	Delete(ctx context.Context, id string) error
	ListByType(ctx context.Context, atomType string, limit int) ([]*store.Atom, error)
	CompletedCount(ctx context.Context, since *time.Time) (int, error)
}

// PreferenceStore holds scoped key/value user settings.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]store.Preference, error)
}

// SearchEngine answers keyword queries with ranked snippets.
type SearchEngine interface {
	Query(ctx context.Context, query string, limit int) ([]store.SearchResult, error)
}

// QuestEngine evaluates progress goals.
type QuestEngine interface {
	Evaluate(ctx context.Context) ([]*store.Quest, error)
	CompleteManually(ctx context.Context, id string) error
	Level(ctx context.Context) (*store.LevelReport, error)
}

// Handler executes one tool. A returned error becomes an {error: ...}
// payload; handlers never see the confirmation gate.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Deps bundles the collaborators the built-in handlers need.
type Deps struct {
	Atoms  AtomStore
	Prefs  PreferenceStore
	Search SearchEngine
	Quests QuestEngine
	Focus  *FocusTracker
}

// Dispatcher maps tool names to handlers and gates irreversible tools
// behind two-phase confirmation.
type Dispatcher struct {
	catalog       *tools.Catalog
	confirmations *Confirmations
	handlers      map[string]Handler
}

// New builds a Dispatcher with every catalog tool registered. confirmTTL
// controls how long a pending confirmation stays approvable; 0 means the
// default 300s.
func New(catalog *tools.Catalog, deps Deps, confirmTTL time.Duration) *Dispatcher {
	if deps.Focus == nil {
		deps.Focus = NewFocusTracker()
	}
	d := &Dispatcher{
		catalog:       catalog,
		confirmations: NewConfirmations(confirmTTL),
		handlers:      make(map[string]Handler),
	}
	d.registerBuiltins(deps)
	return d
}

// Register adds (or replaces) a handler. Exposed so the surrounding
// application can extend the tool surface without touching this package.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// Confirmations exposes the pending table so the application can start the
// background sweeper.
func (d *Dispatcher) Confirmations() *Confirmations {
	return d.confirmations
}

// errResult is the uniform failure payload fed back into the loop.
func errResult(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}

// Dispatch routes one tool call. It never panics and never returns an
// error: validation failures, gate holds, and handler errors all come back
// as structured payloads so the orchestrator can append a tool result and
// let the model recover or explain.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (result map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool handler panicked", "tool", name, "panic", r)
			result = errResult("tool %s failed unexpectedly", name)
		}
	}()

	if args == nil {
		args = map[string]any{}
	}

	handler, ok := d.handlers[name]
	if !ok {
		return errResult("unknown tool: %s", name)
	}
	if err := d.catalog.Validate(name, args); err != nil {
		return errResult("%v", err)
	}

	// Confirmation gate: an irreversible call without confirmed=true is held,
	// not executed. The stored arguments carry confirmed=true so approval is
	// a plain re-dispatch.
	if d.catalog.IsIrreversible(name) && !isConfirmed(args) {
		held := make(map[string]any, len(args)+1)
		for k, v := range args {
			held[k] = v
		}
		held["confirmed"] = true

		description := tools.Describe(name, args)
		p, err := d.confirmations.Add(name, held, description)
		if err != nil {
			return errResult("could not create confirmation: %v", err)
		}
		slog.Info("held irreversible tool for confirmation",
			"tool", name, "confirmation_id", p.ID)
		return map[string]any{
			"confirmation_required": true,
			"confirmation_id":       p.ID,
			"action":                name,
			"description":           description,
		}
	}

	out, err := handler(ctx, args)
	if err != nil {
		slog.Warn("tool execution failed", "tool", name, "err", err)
		return errResult("%v", err)
	}
	return out
}

// Confirm executes a previously held call exactly once and removes it.
// Invoked by the surrounding application outside the normal loop, e.g. when
// the user approves from an external channel. A missing or expired id is
// reported as a payload, never a crash.
func (d *Dispatcher) Confirm(ctx context.Context, id string) map[string]any {
	p, ok := d.confirmations.Take(id)
	if !ok {
		return errResult("confirmation not found: %s", id)
	}
	slog.Info("executing confirmed tool", "tool", p.Tool, "confirmation_id", id)
	return d.Dispatch(ctx, p.Tool, p.Args)
}

// Reject discards a pending confirmation without executing it.
func (d *Dispatcher) Reject(id string) map[string]any {
	p, ok := d.confirmations.Take(id)
	if !ok {
		return errResult("confirmation not found: %s", id)
	}
	slog.Info("rejected confirmation", "tool", p.Tool, "confirmation_id", id)
	return map[string]any{"success": true, "rejected": p.Description}
}

func isConfirmed(args map[string]any) bool {
	v, ok := args["confirmed"].(bool)
	return ok && v
}
