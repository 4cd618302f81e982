package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cosmo-os/cosmo/internal/cosmo/llm"
	"github.com/cosmo-os/cosmo/internal/cosmo/store"
)

// newTestStore opens a temporary SQLite database with migrations applied.
// The DB is closed when the test ends.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "cosmo-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- conversations ---

func TestConversations_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	convs := store.NewConversations(s)
	ctx := context.Background()

	c, err := convs.GetOrCreate(ctx, "conv-1", "ios")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	c.Append(llm.Message{Role: llm.RoleUser, Content: "idea: write more"})
	c.Append(llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
		{ID: "call_1", Name: "create_atom", Args: map[string]any{"type": "idea", "title": "write more"}},
	}})
	c.Append(llm.Message{Role: llm.RoleTool, ToolCallID: "call_1", Content: `{"success":true,"uuid":"a1"}`})
	c.Append(llm.Message{Role: llm.RoleAssistant, Content: "Captured."})
	c.LinkAtom("a1")

	if err := convs.Save(ctx, c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := convs.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Channel != "ios" {
		t.Errorf("channel = %q", got.Channel)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(got.Messages))
	}
	// Order and tool-call payloads survive the round trip.
	if got.Messages[0].Role != llm.RoleUser || got.Messages[3].Content != "Captured." {
		t.Errorf("message order broken: %+v", got.Messages)
	}
	tc := got.Messages[1].ToolCalls
	if len(tc) != 1 || tc[0].ID != "call_1" || tc[0].Args["title"] != "write more" {
		t.Errorf("tool calls = %+v", tc)
	}
	if got.Messages[2].ToolCallID != "call_1" {
		t.Errorf("tool call id = %q", got.Messages[2].ToolCallID)
	}
	if len(got.LinkedAtoms) != 1 || got.LinkedAtoms[0] != "a1" {
		t.Errorf("linked atoms = %v", got.LinkedAtoms)
	}
}

func TestConversations_AppendOnlyAcrossSaves(t *testing.T) {
	s := newTestStore(t)
	convs := store.NewConversations(s)
	ctx := context.Background()

	c, _ := convs.GetOrCreate(ctx, "conv-2", "web")
	c.Append(llm.Message{Role: llm.RoleUser, Content: "one"})
	if err := convs.Save(ctx, c); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// Second turn on a reloaded conversation.
	c2, err := convs.Get(ctx, "conv-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c2.Append(llm.Message{Role: llm.RoleUser, Content: "two"})
	if err := convs.Save(ctx, c2); err != nil {
		t.Fatalf("second save: %v", err)
	}
	// Saving again with no new messages must not duplicate rows.
	if err := convs.Save(ctx, c2); err != nil {
		t.Fatalf("idempotent save: %v", err)
	}

	got, _ := convs.Get(ctx, "conv-2")
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Content != "one" || got.Messages[1].Content != "two" {
		t.Errorf("order broken: %+v", got.Messages)
	}
}

func TestConversations_LinkAtomDeduplicates(t *testing.T) {
	s := newTestStore(t)
	convs := store.NewConversations(s)
	ctx := context.Background()

	c, _ := convs.GetOrCreate(ctx, "conv-3", "ios")
	c.LinkAtom("abc")
	c.LinkAtom("abc")
	if len(c.LinkedAtoms) != 1 {
		t.Fatalf("in-memory dedupe failed: %v", c.LinkedAtoms)
	}
	if err := convs.Save(ctx, c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Linking the same uuid on a later turn stays deduplicated in storage.
	c.LinkAtom("abc")
	if err := convs.Save(ctx, c); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, _ := convs.Get(ctx, "conv-3")
	if len(got.LinkedAtoms) != 1 {
		t.Errorf("stored linked atoms = %v, want one entry", got.LinkedAtoms)
	}
}

// --- atoms ---

func TestAtoms_CRUD(t *testing.T) {
	s := newTestStore(t)
	atoms := store.NewAtoms(s)
	ctx := context.Background()

	a, err := atoms.Create(ctx, store.Atom{Type: "idea", Title: "Newsletter", Body: "weekly digest"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.UUID == "" || a.Phase != "inbox" {
		t.Errorf("created atom = %+v", a)
	}

	got, err := atoms.Get(ctx, a.UUID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Newsletter" {
		t.Errorf("title = %q", got.Title)
	}

	updated, err := atoms.Update(ctx, a.UUID, map[string]any{"title": "Daily newsletter", "completed": true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "Daily newsletter" || !updated.Completed {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := atoms.Update(ctx, a.UUID, map[string]any{"uuid": "nope"}); err == nil {
		t.Error("expected error updating protected field")
	}

	if err := atoms.Delete(ctx, a.UUID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := atoms.Delete(ctx, a.UUID); err == nil {
		t.Error("expected not-found on double delete")
	}
}

func TestAtoms_ScheduledOn(t *testing.T) {
	s := newTestStore(t)
	atoms := store.NewAtoms(s)
	ctx := context.Background()

	today := time.Now()
	at := func(h int) *time.Time {
		t := time.Date(today.Year(), today.Month(), today.Day(), h, 0, 0, 0, today.Location())
		return &t
	}
	tomorrow := today.Add(26 * time.Hour)

	atoms.Create(ctx, store.Atom{Type: "block", Title: "Writing", StartAt: at(10), EndAt: at(11)})
	atoms.Create(ctx, store.Atom{Type: "block", Title: "Review", StartAt: at(9), EndAt: at(10)})
	atoms.Create(ctx, store.Atom{Type: "block", Title: "Future", StartAt: &tomorrow})

	got, err := atoms.ScheduledOn(ctx, today)
	if err != nil {
		t.Fatalf("ScheduledOn: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d blocks, want 2", len(got))
	}
	if got[0].Title != "Review" || got[1].Title != "Writing" {
		t.Errorf("blocks not in start order: %q, %q", got[0].Title, got[1].Title)
	}
}

// --- preferences ---

func TestPreferences(t *testing.T) {
	s := newTestStore(t)
	prefs := store.NewPreferences(s)
	ctx := context.Background()

	if _, err := prefs.Get(ctx, "focus_length"); !errors.Is(err, store.ErrPreferenceNotFound) {
		t.Errorf("err = %v, want ErrPreferenceNotFound", err)
	}

	if err := prefs.Set(ctx, "focus_length", "50"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := prefs.Set(ctx, "focus_length", "25"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, err := prefs.Get(ctx, "focus_length")
	if err != nil || v != "25" {
		t.Errorf("Get = %q, %v", v, err)
	}

	if err := prefs.Delete(ctx, "focus_length"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := prefs.Delete(ctx, "focus_length"); !errors.Is(err, store.ErrPreferenceNotFound) {
		t.Errorf("double delete err = %v", err)
	}
}

// --- quests ---

func TestQuests_EvaluateAndComplete(t *testing.T) {
	s := newTestStore(t)
	quests := store.NewQuests(s)
	atoms := store.NewAtoms(s)
	ctx := context.Background()

	q, err := quests.Create(ctx, "Ship three tasks", "task", 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		a, _ := atoms.Create(ctx, store.Atom{Type: "task", Title: "t"})
		atoms.Update(ctx, a.UUID, map[string]any{"completed": true})
	}

	evaluated, err := quests.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(evaluated) != 1 || evaluated[0].Progress != 3 || !evaluated[0].Completed {
		t.Errorf("evaluated = %+v", evaluated[0])
	}

	// Manual completion of an already-completed quest reports an error.
	if err := quests.CompleteManually(ctx, q.UUID); err == nil {
		t.Error("expected error completing a completed quest")
	}
	if err := quests.CompleteManually(ctx, "missing"); err == nil {
		t.Error("expected not-found for unknown quest")
	}
}

// --- search ---

func TestSearch_RanksTitleAboveBody(t *testing.T) {
	s := newTestStore(t)
	atoms := store.NewAtoms(s)
	search := store.NewSearch(s)
	ctx := context.Background()

	atoms.Create(ctx, store.Atom{Type: "idea", Title: "Something else", Body: "mentions campaign in passing"})
	atoms.Create(ctx, store.Atom{Type: "idea", Title: "Campaign launch", Body: "the big one"})

	results, err := search.Query(ctx, "campaign", 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "Campaign launch" {
		t.Errorf("title match should rank first, got %q", results[0].Title)
	}

	if results, _ := search.Query(ctx, "", 10); results != nil {
		t.Errorf("empty query should return nothing, got %v", results)
	}
}
