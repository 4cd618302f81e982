// Package orchestrator runs the conversational turn loop: classify the
// utterance, assemble the prompt, call the model, execute requested tools,
// and persist the conversation. It is the only package that sees a whole
// turn end to end.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cosmo-os/cosmo/common/trace"
	"github.com/cosmo-os/cosmo/internal/cosmo/intent"
	"github.com/cosmo-os/cosmo/internal/cosmo/llm"
	"github.com/cosmo-os/cosmo/internal/cosmo/prompt"
	"github.com/cosmo-os/cosmo/internal/cosmo/store"
	"github.com/cosmo-os/cosmo/internal/cosmo/tools"
)

// MaxIterations bounds the model round-trips within one turn. A model that
// keeps requesting tools past the bound gets cut off with a canned reply.
const MaxIterations = 5

const (
	exhaustedReply = "I hit my action limit for this request. Everything completed so far has been saved; tell me to continue if there is more to do."
	apologyReply   = "Sorry, I could not reach the language model just now. Anything already done this turn has been saved. Please try again in a moment."
)

// ToolRunner executes one tool call and always returns a result payload,
// never an error. Implemented by the dispatcher.
type ToolRunner interface {
	Dispatch(ctx context.Context, name string, args map[string]any) map[string]any
}

// Turn is the outcome of one ProcessTurn call.
type Turn struct {
	ConversationID string
	Intent         intent.Intent
	Reply          string
	LinkedAtoms    []string
	ToolCalls      int
	Duration       time.Duration
}

// Orchestrator drives turns against a single provider and store.
type Orchestrator struct {
	provider      llm.Provider
	model         string
	catalog       *tools.Catalog
	assembler     prompt.Assembler
	conversations *store.Conversations
	prefs         *store.Preferences
	runner        ToolRunner
}

// Deps carries the orchestrator's collaborators. All fields are required
// except Prefs, which may be nil when no preference store is configured.
type Deps struct {
	Provider      llm.Provider
	Model         string
	Catalog       *tools.Catalog
	Assembler     prompt.Assembler
	Conversations *store.Conversations
	Prefs         *store.Preferences
	Runner        ToolRunner
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		provider:      d.Provider,
		model:         d.Model,
		catalog:       d.Catalog,
		assembler:     d.Assembler,
		conversations: d.Conversations,
		prefs:         d.Prefs,
		runner:        d.Runner,
	}
}

// ProcessTurn handles one user utterance. The returned Turn always carries a
// reply fit to show the user, even when err is non-nil: a model failure
// produces an apology reply, and everything executed before the failure is
// already persisted.
func (o *Orchestrator) ProcessTurn(ctx context.Context, conversationID, channel, text string) (*Turn, error) {
	started := time.Now()
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	log := slog.With("trace_id", trace.FromContext(ctx), "conversation", conversationID)

	conv, err := o.conversations.GetOrCreate(ctx, conversationID, channel)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	it := intent.Classify(text)
	toolDefs := o.catalog.ForIntent(it)
	log.Info("turn started", "intent", string(it), "tools_in_scope", len(toolDefs))

	var prefs []store.Preference
	if o.prefs != nil {
		if prefs, err = o.prefs.List(ctx); err != nil {
			log.Warn("preference lookup failed", "error", err)
			prefs = nil
		}
	}
	system, err := o.assembler.Assemble(ctx, conv, prefs, toolDefs)
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}

	conv.Append(llm.Message{Role: llm.RoleUser, Content: text})
	turn := &Turn{ConversationID: conversationID, Intent: it}

	// wire is the message list sent to the provider. The system prompt is
	// rebuilt every turn from live state and never persisted, so it lives
	// only here; everything after it mirrors conv.Messages.
	wire := make([]llm.Message, 0, len(conv.Messages)+1)
	wire = append(wire, llm.Message{Role: llm.RoleSystem, Content: system})
	wire = append(wire, conv.Messages...)

	for i := 0; i < MaxIterations; i++ {
		resp, err := o.provider.Complete(ctx, wire, toolDefs, o.model)
		if err != nil {
			log.Error("provider call failed", "iteration", i, "error", err)
			turn.Reply = apologyReply
			conv.Append(llm.Message{Role: llm.RoleAssistant, Content: apologyReply})
			if saveErr := o.conversations.Save(ctx, conv); saveErr != nil {
				log.Error("failed to persist partial turn", "error", saveErr)
			}
			turn.Duration = time.Since(started)
			return turn, fmt.Errorf("complete turn: %w", err)
		}

		assistant := llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls}
		conv.Append(assistant)
		wire = append(wire, assistant)

		if len(resp.ToolCalls) == 0 {
			turn.Reply = resp.Text
			break
		}

		// Tool calls run sequentially in the order the model emitted them,
		// each result fed back before the next model round-trip.
		for _, call := range resp.ToolCalls {
			result := o.runner.Dispatch(ctx, call.Name, call.Args)
			turn.ToolCalls++
			o.linkEntities(conv, result)

			payload, err := json.Marshal(result)
			if err != nil {
				payload = []byte(`{"error":"unencodable tool result"}`)
			}
			toolMsg := llm.Message{Role: llm.RoleTool, Content: string(payload), ToolCallID: call.ID}
			conv.Append(toolMsg)
			wire = append(wire, toolMsg)
			log.Info("tool executed", "tool", call.Name, "iteration", i)
		}
	}

	if turn.Reply == "" {
		log.Warn("iteration bound reached", "tool_calls", turn.ToolCalls)
		turn.Reply = exhaustedReply
		conv.Append(llm.Message{Role: llm.RoleAssistant, Content: exhaustedReply})
	}

	if err := o.conversations.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("persist conversation: %w", err)
	}
	turn.LinkedAtoms = append(turn.LinkedAtoms, conv.LinkedAtoms...)
	turn.Duration = time.Since(started)
	log.Info("turn finished", "tool_calls", turn.ToolCalls, "linked_atoms", len(turn.LinkedAtoms), "duration", turn.Duration)
	return turn, nil
}

// linkEntities records atom uuids surfaced by successful tool results so the
// conversation stays associated with the atoms it touched. Results mention
// either a single uuid or a uuids list; anything else is ignored.
func (o *Orchestrator) linkEntities(conv *store.Conversation, result map[string]any) {
	if ok, _ := result["success"].(bool); !ok {
		return
	}
	if id, ok := result["uuid"].(string); ok && id != "" {
		conv.LinkAtom(id)
	}
	if ids, ok := result["uuids"].([]any); ok {
		for _, v := range ids {
			if id, ok := v.(string); ok && id != "" {
				conv.LinkAtom(id)
			}
		}
	}
}
