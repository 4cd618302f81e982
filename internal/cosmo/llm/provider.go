// Package llm provides the chat-completion provider layer for Cosmo.
//
// The provider layer sits between the orchestrator's internal message model
// and the three supported chat-completion backends. Its sole responsibility
// is translation: serialize the ordered message list plus tool definitions
// into one backend's request shape, and parse the response back into a
// backend-neutral Response. No backend-specific JSON crosses this boundary.
//
// Invariants (unchanged by any adapter):
//   - One outbound HTTP call per Complete invocation; adapters never retry.
//     Resilience is the caller's responsibility.
//   - Tool-call order within a Response matches the order the backend
//     returned it.
//   - A ToolCall ID is unique within its originating Response. When the
//     backend emits no id (local models), the adapter synthesizes one.
package llm

import (
	"context"
	"errors"
)

// ErrAuth is returned when the credential is missing or the backend rejects
// it (HTTP 401/403). Callers should not retry.
var ErrAuth = errors.New("llm: missing or invalid credential")

// ErrNetwork is returned on transport-level failure (dial, TLS, timeout).
// The current turn is aborted; the ingestion layer may retry with backoff.
var ErrNetwork = errors.New("llm: transport failure")

// ErrProtocol is returned when the backend answers with an unexpected shape,
// including any non-2xx status whose body could be read.
var ErrProtocol = errors.New("llm: unexpected response from backend")

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single turn in a conversation, in Cosmo's internal shape.
// Tool calls appear only on assistant messages; ToolCallID only on tool
// messages (it links a tool result back to the call that produced it).
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a structured request from the model to invoke a named tool.
// Args is an opaque JSON object; the orchestrator never interprets it.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolDefinition declares one tool the model may call. Parameters is a JSON
// Schema object. Definitions are immutable and declared once in the catalog.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Response is the backend-neutral result of one Complete call.
type Response struct {
	// Text is the assistant's visible reply. Empty when the model only
	// requested tools.
	Text string
	// ToolCalls are the tool invocations the model requested, in the order
	// the backend returned them.
	ToolCalls []ToolCall
	// InputTokens and OutputTokens are the usage counts reported by the
	// backend, zero when not reported.
	InputTokens  int
	OutputTokens int
}

// Provider translates Cosmo's message model to one backend's wire protocol.
//
// Implementations must be stateless and safe for concurrent use. model may
// be empty, in which case the adapter's configured default applies.
type Provider interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition, model string) (*Response, error)
}
