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
	defaultOpenAIBase  = "https://api.openai.com/v1"
	defaultOpenAIModel = "gpt-4o-mini"
)

// openAIProvider implements Provider against the OpenAI chat completions API.
//
// Wire idiosyncrasies handled here and nowhere else:
//   - The system prompt stays a normal message in the list.
//   - Tool calls are a top-level array on the assistant message.
//   - Tool call arguments are a JSON-encoded *string*, both directions.
//   - Tool results are separate tool-role messages keyed by tool_call_id.
type openAIProvider struct {
	cfg    Config
	client *http.Client
}

// --- minimal OpenAI wire types ---

type oaiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type oaiRequest struct {
	Model    string       `json:"model"`
	Messages []oaiMessage `json:"messages"`
	Tools    []oaiToolDef `json:"tools,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one chat completions call and parses the first choice back
// into a Response.
func (p *openAIProvider) Complete(ctx context.Context, messages []Message, tools []ToolDefinition, model string) (*Response, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai requires an API key", ErrAuth)
	}
	if model == "" {
		model = p.cfg.Model
	}

	req := oaiRequest{Model: model}
	for _, m := range messages {
		om := oaiMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			argJSON, err := json.Marshal(tc.Args)
			if err != nil {
				return nil, fmt.Errorf("llm: marshal tool arguments for %s: %w", tc.Name, err)
			}
			om.ToolCalls = append(om.ToolCalls, oaiToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: oaiFunction{Name: tc.Name, Arguments: string(argJSON)},
			})
		}
		req.Messages = append(req.Messages, om)
	}
	for _, t := range tools {
		var def oaiToolDef
		def.Type = "function"
		def.Function.Name = t.Name
		def.Function.Description = t.Description
		def.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, def)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("llm: create openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

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
		return nil, fmt.Errorf("%w: openai returned HTTP %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: openai returned HTTP %d: %.200s", ErrProtocol, resp.StatusCode, body)
	}

	var or oaiResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, fmt.Errorf("%w: decode openai response: %v", ErrProtocol, err)
	}
	if or.Error != nil {
		return nil, fmt.Errorf("%w: openai error (%s): %s", ErrProtocol, or.Error.Type, or.Error.Message)
	}
	if len(or.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", ErrProtocol)
	}

	choice := or.Choices[0].Message
	out := &Response{
		Text:         choice.Content,
		InputTokens:  or.Usage.PromptTokens,
		OutputTokens: or.Usage.CompletionTokens,
	}
	for _, tc := range choice.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("%w: decode arguments for %s: %v", ErrProtocol, tc.Function.Name, err)
			}
		}
		if tc.ID == "" || tc.Function.Name == "" {
			return nil, fmt.Errorf("%w: tool call missing id or name", ErrProtocol)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out, nil
}
