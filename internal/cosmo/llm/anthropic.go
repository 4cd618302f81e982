package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultAnthropicBase  = "https://api.anthropic.com"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	anthropicVersion      = "2023-06-01"
	anthropicMaxTokens    = 4096
)

// anthropicProvider implements Provider against the Anthropic Messages API.
//
// Wire idiosyncrasies handled here and nowhere else:
//   - The system prompt is a top-level request field, never a message.
//   - Assistant content is a list of typed blocks; tool requests arrive as
//     tool_use blocks mixed with text blocks.
//   - Tool results are sent back as a *user* message containing a
//     tool_result block keyed by tool_use_id.
type anthropicProvider struct {
	cfg    Config
	client *http.Client
}

// --- minimal Anthropic wire types ---

type antBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type antMessage struct {
	Role    string     `json:"role"`
	Content []antBlock `json:"content"`
}

type antTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type antRequest struct {
	Model     string       `json:"model"`
	System    string       `json:"system,omitempty"`
	Messages  []antMessage `json:"messages"`
	Tools     []antTool    `json:"tools,omitempty"`
	MaxTokens int          `json:"max_tokens"`
}

type antResponse struct {
	Content    []antBlock `json:"content"`
	StopReason string     `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one Messages API call and parses the blocks back into a
// Response. The system message (if present) is lifted out of the message
// list into the top-level system field.
func (p *anthropicProvider) Complete(ctx context.Context, messages []Message, tools []ToolDefinition, model string) (*Response, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic requires an API key", ErrAuth)
	}
	if model == "" {
		model = p.cfg.Model
	}

	req := antRequest{
		Model:     model,
		MaxTokens: anthropicMaxTokens,
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			req.System = m.Content

		case RoleAssistant:
			var blocks []antBlock
			if m.Content != "" {
				blocks = append(blocks, antBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, antBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Args,
				})
			}
			req.Messages = append(req.Messages, antMessage{Role: "assistant", Content: blocks})

		case RoleTool:
			// Tool results travel as user-role tool_result blocks.
			req.Messages = append(req.Messages, antMessage{
				Role: "user",
				Content: []antBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})

		default:
			req.Messages = append(req.Messages, antMessage{
				Role:    "user",
				Content: []antBlock{{Type: "text", Text: m.Content}},
			})
		}
	}

	for _, t := range tools {
		req.Tools = append(req.Tools, antTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("llm: create anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: anthropic returned HTTP %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: anthropic returned HTTP %d: %.200s", ErrProtocol, resp.StatusCode, body)
	}

	var ar antResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("%w: decode anthropic response: %v", ErrProtocol, err)
	}
	if ar.Error != nil {
		return nil, fmt.Errorf("%w: anthropic error (%s): %s", ErrProtocol, ar.Error.Type, ar.Error.Message)
	}

	return parseAnthropicBlocks(&ar)
}

// parseAnthropicBlocks flattens the mixed text/tool_use block list into a
// Response, preserving tool-call order.
func parseAnthropicBlocks(ar *antResponse) (*Response, error) {
	out := &Response{
		InputTokens:  ar.Usage.InputTokens,
		OutputTokens: ar.Usage.OutputTokens,
	}
	for _, b := range ar.Content {
		switch b.Type {
		case "text":
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += b.Text
		case "tool_use":
			if b.ID == "" || b.Name == "" {
				return nil, fmt.Errorf("%w: tool_use block missing id or name", ErrProtocol)
			}
			args := b.Input
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Args: args})
		default:
			// Unknown block types (thinking, citations, ...) are skipped.
		}
	}
	return out, nil
}
