// Package prompt assembles the layered system prompt from live application
// state. The orchestrator depends on a single entry point; everything about
// how the snapshot is gathered and formatted stays behind it.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cosmo-os/cosmo/internal/cosmo/llm"
	"github.com/cosmo-os/cosmo/internal/cosmo/store"
)

// Assembler composes the system prompt for one turn from the conversation,
// the user's preferences, and the tools in scope.
type Assembler interface {
	Assemble(ctx context.Context, conv *store.Conversation, prefs []store.Preference, tools []llm.ToolDefinition) (string, error)
}

// persona is the fixed identity block that opens every prompt.
const persona = `You are Cosmo, a calm personal operating system for ideas, tasks, and time.
You help the user capture thoughts as atoms, shape them through a pipeline, schedule
focused work, and reflect on progress. Be brief and concrete. Use the provided tools
for any action or lookup; never invent atom uuids. When a tool reports that an action
needs confirmation, relay the confirmation id and wait for the user's approval.`

// toolGuidance closes the prompt with usage rules for the tool loop.
const toolGuidance = `Tool usage:
- Call tools for anything that touches stored state; answer from the context above only when it already contains the answer.
- Issue dependent calls one at a time and read each result before continuing.
- Destructive tools return a confirmation request instead of acting. Tell the user and stop; the approval arrives out of band.`

// Builder assembles prompts from a live read-only snapshot of the store.
type Builder struct {
	Atoms         *store.Atoms
	Quests        *store.Quests
	Conversations *store.Conversations
}

// Assemble builds the prompt text. Snapshot reads are best-effort: a failed
// section is logged and skipped rather than failing the turn, since a
// degraded prompt still beats no reply.
func (b *Builder) Assemble(ctx context.Context, conv *store.Conversation, prefs []store.Preference, tools []llm.ToolDefinition) (string, error) {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Today is %s.\n", time.Now().Format("Monday, January 2 2006"))

	b.writeSchedule(ctx, &sb)
	b.writeCounts(ctx, &sb)
	b.writeRecentCaptures(ctx, &sb)
	b.writePhases(ctx, &sb)
	b.writeQuests(ctx, &sb)
	writePreferences(&sb, prefs)
	b.writePriorSummary(ctx, &sb, conv)
	writeTools(&sb, tools)

	sb.WriteString("\n")
	sb.WriteString(toolGuidance)
	return sb.String(), nil
}

func (b *Builder) writeSchedule(ctx context.Context, sb *strings.Builder) {
	blocks, err := b.Atoms.ScheduledOn(ctx, time.Now())
	if err != nil {
		slog.Warn("prompt: schedule snapshot failed", "err", err)
		return
	}
	sb.WriteString("\nToday's schedule:\n")
	if len(blocks) == 0 {
		sb.WriteString("  (nothing scheduled)\n")
		return
	}
	for _, a := range blocks {
		end := ""
		if a.EndAt != nil {
			end = "–" + a.EndAt.Format("15:04")
		}
		fmt.Fprintf(sb, "  %s%s  %s [%s]\n", a.StartAt.Format("15:04"), end, a.Title, a.UUID)
	}
}

func (b *Builder) writeCounts(ctx context.Context, sb *strings.Builder) {
	counts, err := b.Atoms.CountsByType(ctx)
	if err != nil {
		slog.Warn("prompt: counts snapshot failed", "err", err)
		return
	}
	if len(counts) == 0 {
		return
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	sb.WriteString("\nActive atoms:")
	for _, t := range types {
		fmt.Fprintf(sb, " %s=%d", t, counts[t])
	}
	sb.WriteString("\n")
}

func (b *Builder) writeRecentCaptures(ctx context.Context, sb *strings.Builder) {
	recent, err := b.Atoms.RecentCaptures(ctx, 5)
	if err != nil {
		slog.Warn("prompt: recent captures snapshot failed", "err", err)
		return
	}
	if len(recent) == 0 {
		return
	}
	sb.WriteString("\nRecent captures:\n")
	for _, a := range recent {
		fmt.Fprintf(sb, "  [%s] %s (%s)\n", a.Type, a.Title, a.UUID)
	}
}

func (b *Builder) writePhases(ctx context.Context, sb *strings.Builder) {
	tallies, err := b.Atoms.PhaseTallies(ctx)
	if err != nil {
		slog.Warn("prompt: phase snapshot failed", "err", err)
		return
	}
	if len(tallies) == 0 {
		return
	}
	phases := make([]string, 0, len(tallies))
	for p := range tallies {
		phases = append(phases, p)
	}
	sort.Strings(phases)

	sb.WriteString("\nPipeline phases:")
	for _, p := range phases {
		fmt.Fprintf(sb, " %s=%d", p, tallies[p])
	}
	sb.WriteString("\n")
}

func (b *Builder) writeQuests(ctx context.Context, sb *strings.Builder) {
	quests, err := b.Quests.List(ctx)
	if err != nil {
		slog.Warn("prompt: quest snapshot failed", "err", err)
		return
	}
	var open []*store.Quest
	for _, q := range quests {
		if !q.Completed {
			open = append(open, q)
		}
	}
	if len(open) == 0 {
		return
	}
	sb.WriteString("\nOpen quests:\n")
	for _, q := range open {
		fmt.Fprintf(sb, "  %s (%d/%d)\n", q.Title, q.Progress, q.Target)
	}
}

func writePreferences(sb *strings.Builder, prefs []store.Preference) {
	if len(prefs) == 0 {
		return
	}
	sb.WriteString("\nUser preferences:\n")
	for _, p := range prefs {
		fmt.Fprintf(sb, "  %s: %s\n", p.Key, p.Value)
	}
}

func (b *Builder) writePriorSummary(ctx context.Context, sb *strings.Builder, conv *store.Conversation) {
	// Prefer the current thread's own summary; fall back to the most recent
	// sealed conversation so a fresh thread still has continuity.
	summary := ""
	if conv != nil {
		summary = conv.Summary
	}
	if summary == "" && b.Conversations != nil {
		prior, err := b.Conversations.LatestSummary(ctx)
		if err != nil {
			slog.Warn("prompt: summary snapshot failed", "err", err)
			return
		}
		summary = prior
	}
	if summary != "" {
		fmt.Fprintf(sb, "\nPrior conversation summary: %s\n", summary)
	}
}

func writeTools(sb *strings.Builder, tools []llm.ToolDefinition) {
	if len(tools) == 0 {
		return
	}
	sb.WriteString("\nTools in scope this turn:")
	for _, t := range tools {
		sb.WriteString(" " + t.Name)
	}
	sb.WriteString("\n")
}
