// Package tools declares the static tool catalog: name, description, and
// JSON-schema parameters for every tool the model may call, grouped by
// domain and scoped by intent. The catalog performs no execution; it is
// consumed by the provider adapters (serialized into requests) and by the
// dispatcher (routing and argument validation).
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cosmo-os/cosmo/internal/cosmo/intent"
	"github.com/cosmo-os/cosmo/internal/cosmo/llm"
)

// Group is a domain grouping of related tools.
type Group string

const (
	GroupCreation    Group = "creation"
	GroupMutation    Group = "mutation"
	GroupScheduling  Group = "scheduling"
	GroupRetrieval   Group = "retrieval"
	GroupAnalytics   Group = "analytics"
	GroupLogging     Group = "logging"
	GroupPreferences Group = "preferences"
	GroupProgress    Group = "progress"
	GroupFocus       Group = "focus"
	GroupNavigation  Group = "navigation"
)

// Spec is one catalog entry. Irreversible tools are held behind the
// dispatcher's confirmation gate before they execute.
type Spec struct {
	llm.ToolDefinition
	Group        Group
	Irreversible bool
}

// params builds a JSON-schema object for tool parameters. Properties beyond
// the declared set are permitted so the confirmation gate can merge its
// confirmed flag into stored arguments.
func params(required []string, props map[string]any) map[string]any {
	p := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		p["required"] = required
	}
	return p
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }
func num(desc string) map[string]any { return map[string]any{"type": "number", "description": desc} }

// specs is the full catalog, declared once.
var specs = []Spec{
	// ----- creation --------------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "create_atom",
			Description: "Create a single atom (idea, task, content, or block). Returns the new atom's uuid.",
			Parameters: params([]string{"type", "title"}, map[string]any{
				"type":     map[string]any{"type": "string", "enum": []any{"idea", "task", "content", "block"}},
				"title":    str("Short title of the atom."),
				"body":     str("Optional longer body or captured link."),
				"start_at": str("Optional RFC 3339 start time for timed atoms."),
				"end_at":   str("Optional RFC 3339 end time for timed atoms."),
			}),
		},
		Group: GroupCreation,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "batch_create",
			Description: "Create several atoms at once from a brain dump. Returns one uuid per atom.",
			Parameters: params([]string{"atoms"}, map[string]any{
				"atoms": map[string]any{
					"type": "array",
					"items": params([]string{"type", "title"}, map[string]any{
						"type":  map[string]any{"type": "string", "enum": []any{"idea", "task", "content", "block"}},
						"title": str("Short title of the atom."),
						"body":  str("Optional body."),
					}),
				},
			}),
		},
		Group: GroupCreation,
	},

	// ----- mutation --------------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "update_atom",
			Description: "Update fields of an existing atom by uuid.",
			Parameters: params([]string{"uuid"}, map[string]any{
				"uuid":      str("The atom to update."),
				"title":     str("New title."),
				"body":      str("New body."),
				"phase":     str("New pipeline phase."),
				"completed": map[string]any{"type": "boolean", "description": "Mark done or not done."},
			}),
		},
		Group: GroupMutation,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "delete_atom",
			Description: "Permanently delete an atom by uuid. Irreversible.",
			Parameters: params([]string{"uuid"}, map[string]any{
				"uuid": str("The atom to delete."),
			}),
		},
		Group:        GroupMutation,
		Irreversible: true,
	},

	// ----- scheduling ------------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "schedule_block",
			Description: "Create a time block on the schedule. Returns the block's uuid.",
			Parameters: params([]string{"title", "start_at", "end_at"}, map[string]any{
				"title":    str("What the block is for."),
				"start_at": str("RFC 3339 start time."),
				"end_at":   str("RFC 3339 end time."),
			}),
		},
		Group: GroupScheduling,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "move_block",
			Description: "Move an existing time block to a new start/end.",
			Parameters: params([]string{"uuid", "start_at", "end_at"}, map[string]any{
				"uuid":     str("The block to move."),
				"start_at": str("New RFC 3339 start time."),
				"end_at":   str("New RFC 3339 end time."),
			}),
		},
		Group: GroupScheduling,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "cancel_block",
			Description: "Cancel and remove a scheduled block. Irreversible.",
			Parameters: params([]string{"uuid"}, map[string]any{
				"uuid": str("The block to cancel."),
			}),
		},
		Group:        GroupScheduling,
		Irreversible: true,
	},

	// ----- retrieval -------------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "search_atoms",
			Description: "Keyword search across atoms. Returns ranked snippets.",
			Parameters: params([]string{"query"}, map[string]any{
				"query": str("Search terms."),
				"limit": num("Maximum results (default 10)."),
			}),
		},
		Group: GroupRetrieval,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "get_atom",
			Description: "Fetch one atom by uuid.",
			Parameters: params([]string{"uuid"}, map[string]any{
				"uuid": str("The atom to fetch."),
			}),
		},
		Group: GroupRetrieval,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "list_atoms",
			Description: "List atoms of one type, newest first.",
			Parameters: params([]string{"type"}, map[string]any{
				"type":  map[string]any{"type": "string", "enum": []any{"idea", "task", "content", "block"}},
				"limit": num("Maximum results (default 20)."),
			}),
		},
		Group: GroupRetrieval,
	},

	// ----- analytics -------------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "query_level_system",
			Description: "Report the user's level, experience, and completion tallies.",
			Parameters:  params(nil, map[string]any{}),
		},
		Group: GroupAnalytics,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "trigger_correlation_analysis",
			Description: "Run a correlation pass over recent activity and surface notable patterns.",
			Parameters: params(nil, map[string]any{
				"days": num("Lookback window in days (default 14)."),
			}),
		},
		Group: GroupAnalytics,
	},

	// ----- logging ---------------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "log_workout",
			Description: "Log a completed workout as an atom.",
			Parameters: params([]string{"description"}, map[string]any{
				"description": str("What the workout was."),
				"minutes":     num("Duration in minutes."),
			}),
		},
		Group: GroupLogging,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "log_journal",
			Description: "Append a journal entry for today.",
			Parameters: params([]string{"entry"}, map[string]any{
				"entry": str("The journal text."),
			}),
		},
		Group: GroupLogging,
	},

	// ----- preferences -----------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "get_preference",
			Description: "Read a user preference by key.",
			Parameters: params([]string{"key"}, map[string]any{
				"key": str("Preference key, e.g. focus_length."),
			}),
		},
		Group: GroupPreferences,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "set_preference",
			Description: "Set a user preference.",
			Parameters: params([]string{"key", "value"}, map[string]any{
				"key":   str("Preference key."),
				"value": str("Preference value."),
			}),
		},
		Group: GroupPreferences,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "delete_preference",
			Description: "Remove a stored preference. Irreversible.",
			Parameters: params([]string{"key"}, map[string]any{
				"key": str("Preference key."),
			}),
		},
		Group:        GroupPreferences,
		Irreversible: true,
	},

	// ----- progress --------------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "evaluate_quests",
			Description: "Recompute quest progress from current activity.",
			Parameters:  params(nil, map[string]any{}),
		},
		Group: GroupProgress,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "complete_quest",
			Description: "Manually mark a quest complete. Irreversible.",
			Parameters: params([]string{"uuid"}, map[string]any{
				"uuid": str("The quest to complete."),
			}),
		},
		Group:        GroupProgress,
		Irreversible: true,
	},

	// ----- focus -----------------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "start_deep_work",
			Description: "Start a deep work session.",
			Parameters: params(nil, map[string]any{
				"minutes": num("Session length in minutes (default 50)."),
				"title":   str("Optional focus subject."),
			}),
		},
		Group: GroupFocus,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "stop_deep_work",
			Description: "Stop the running deep work session and log it.",
			Parameters:  params(nil, map[string]any{}),
		},
		Group: GroupFocus,
	},
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "extend_deep_work",
			Description: "Extend the running deep work session.",
			Parameters: params([]string{"minutes"}, map[string]any{
				"minutes": num("Minutes to add."),
			}),
		},
		Group: GroupFocus,
	},

	// ----- navigation ------------------------------------------------------
	{
		ToolDefinition: llm.ToolDefinition{
			Name:        "navigate",
			Description: "Ask the host surface to navigate to a view. The payload is opaque to Cosmo.",
			Parameters: params([]string{"view"}, map[string]any{
				"view": str("Destination view name, e.g. calendar, pipeline, journal."),
			}),
		},
		Group: GroupNavigation,
	},
}

// intentGroups maps each intent to the tool groups it exposes. Query is
// absent: its scope is unknown by construction, so it gets everything.
var intentGroups = map[intent.Intent][]Group{
	intent.Capture:    {GroupCreation, GroupRetrieval},
	intent.Brainstorm: {GroupCreation, GroupRetrieval},
	intent.Plan:       {GroupScheduling, GroupCreation, GroupRetrieval},
	intent.Execute:    {GroupFocus, GroupScheduling, GroupNavigation},
	intent.Debrief:    {GroupLogging, GroupAnalytics, GroupProgress},
	intent.Reflect:    {GroupAnalytics, GroupProgress, GroupRetrieval},
	intent.Correct:    {GroupMutation, GroupScheduling, GroupRetrieval},
	intent.Meta:       {GroupPreferences, GroupNavigation},
}

// Catalog is the compiled tool catalog. Construction compiles every
// parameter schema once; lookups and validation afterwards are cheap.
type Catalog struct {
	byName  map[string]Spec
	schemas map[string]*jsonschema.Schema
}

// NewCatalog compiles the static catalog. It fails only on a malformed
// parameter schema, which is a programming error caught at startup.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{
		byName:  make(map[string]Spec, len(specs)),
		schemas: make(map[string]*jsonschema.Schema, len(specs)),
	}
	for _, s := range specs {
		if _, dup := c.byName[s.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool name %q", s.Name)
		}
		c.byName[s.Name] = s

		raw, err := json.Marshal(s.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tools: marshal schema for %s: %w", s.Name, err)
		}
		compiler := jsonschema.NewCompiler()
		url := "cosmo://tools/" + s.Name + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("tools: add schema for %s: %w", s.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tools: compile schema for %s: %w", s.Name, err)
		}
		c.schemas[s.Name] = schema
	}
	return c, nil
}

// All returns every catalog entry in declaration order.
func (c *Catalog) All() []Spec {
	out := make([]Spec, 0, len(specs))
	out = append(out, specs...)
	return out
}

// Get looks up a tool by name.
func (c *Catalog) Get(name string) (Spec, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// IsIrreversible reports whether the named tool is confirmation-gated.
// Unknown names are not gated; they fail routing instead.
func (c *Catalog) IsIrreversible(name string) bool {
	return c.byName[name].Irreversible
}

// ForIntent returns the tool definitions exposed for the given intent: the
// union of its groups, or the whole catalog for query (and any unmapped
// intent, which is treated the same way).
func (c *Catalog) ForIntent(it intent.Intent) []llm.ToolDefinition {
	groups, ok := intentGroups[it]
	if !ok {
		all := make([]llm.ToolDefinition, 0, len(specs))
		for _, s := range specs {
			all = append(all, s.ToolDefinition)
		}
		return all
	}

	want := make(map[Group]bool, len(groups))
	for _, g := range groups {
		want[g] = true
	}
	var out []llm.ToolDefinition
	for _, s := range specs {
		if want[s.Group] {
			out = append(out, s.ToolDefinition)
		}
	}
	return out
}

// Validate checks args against the named tool's compiled parameter schema.
// An unknown tool name is a validation error too.
func (c *Catalog) Validate(name string, args map[string]any) error {
	schema, ok := c.schemas[name]
	if !ok {
		return fmt.Errorf("tools: unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := schema.Validate(normalize(args)); err != nil {
		return fmt.Errorf("tools: invalid arguments for %s: %w", name, err)
	}
	return nil
}

// normalize converts args into the plain decoded-JSON value shapes the
// schema validator expects (map[string]any / []any / float64 / ...).
// Arguments parsed straight from a provider response already have this
// shape; hand-built test arguments may not (e.g. int instead of float64).
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// Describe renders a short human description of a call for confirmation
// prompts: the tool name plus its salient arguments.
func Describe(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		if k == "confirmed" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	if len(keys) > 0 {
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, args[k])
		}
		sb.WriteString(")")
	}
	return sb.String()
}
