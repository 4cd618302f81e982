package tools

import (
	"testing"

	"github.com/cosmo-os/cosmo/internal/cosmo/intent"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func TestForIntent_QueryReturnsEverything(t *testing.T) {
	c := newCatalog(t)
	all := c.ForIntent(intent.Query)
	if len(all) != len(c.All()) {
		t.Errorf("query exposes %d tools, want all %d", len(all), len(c.All()))
	}
}

func TestForIntent_ScopedIntents(t *testing.T) {
	c := newCatalog(t)

	tests := []struct {
		it          intent.Intent
		wantPresent []string
		wantAbsent  []string
	}{
		{intent.Capture, []string{"create_atom", "batch_create", "search_atoms"}, []string{"delete_atom", "start_deep_work"}},
		{intent.Plan, []string{"schedule_block", "move_block", "cancel_block"}, []string{"delete_preference", "log_workout"}},
		{intent.Correct, []string{"update_atom", "delete_atom", "cancel_block"}, []string{"create_atom", "start_deep_work"}},
		{intent.Execute, []string{"start_deep_work", "stop_deep_work", "navigate"}, []string{"create_atom", "delete_atom"}},
		{intent.Meta, []string{"get_preference", "set_preference", "delete_preference"}, []string{"create_atom", "search_atoms"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.it), func(t *testing.T) {
			defs := c.ForIntent(tt.it)
			names := make(map[string]bool, len(defs))
			for _, d := range defs {
				names[d.Name] = true
			}
			for _, want := range tt.wantPresent {
				if !names[want] {
					t.Errorf("%s missing from %s scope", want, tt.it)
				}
			}
			for _, absent := range tt.wantAbsent {
				if names[absent] {
					t.Errorf("%s should not be in %s scope", absent, tt.it)
				}
			}
		})
	}
}

func TestIsIrreversible(t *testing.T) {
	c := newCatalog(t)

	gated := []string{"delete_atom", "cancel_block", "delete_preference", "complete_quest"}
	for _, name := range gated {
		if !c.IsIrreversible(name) {
			t.Errorf("%s should be gated", name)
		}
	}
	open := []string{"create_atom", "search_atoms", "start_deep_work", "navigate"}
	for _, name := range open {
		if c.IsIrreversible(name) {
			t.Errorf("%s should not be gated", name)
		}
	}
	if c.IsIrreversible("no_such_tool") {
		t.Error("unknown tools are not gated")
	}
}

func TestValidate(t *testing.T) {
	c := newCatalog(t)

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantErr bool
	}{
		{"valid create", "create_atom", map[string]any{"type": "idea", "title": "x"}, false},
		{"missing required", "create_atom", map[string]any{"type": "idea"}, true},
		{"bad enum", "create_atom", map[string]any{"type": "wishlist", "title": "x"}, true},
		{"valid delete with confirmed", "delete_atom", map[string]any{"uuid": "u1", "confirmed": true}, false},
		{"wrong type", "extend_deep_work", map[string]any{"minutes": "twenty"}, true},
		{"int coerces fine", "extend_deep_work", map[string]any{"minutes": 20}, false},
		{"unknown tool", "teleport", map[string]any{}, true},
		{"nil args with no required", "stop_deep_work", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.tool, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%s) err = %v, wantErr %v", tt.tool, err, tt.wantErr)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	got := Describe("delete_atom", map[string]any{"uuid": "a1", "confirmed": true})
	want := "delete_atom (uuid=a1)"
	if got != want {
		t.Errorf("Describe = %q, want %q", got, want)
	}
	if got := Describe("stop_deep_work", nil); got != "stop_deep_work" {
		t.Errorf("Describe = %q", got)
	}
}
