package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const (
	defaultOllamaBase  = "http://localhost:11434"
	defaultOllamaModel = "qwen2.5:7b"
)

// ollamaProvider implements Provider against a local Ollama server.
//
// The wire shape is the flat tool_calls style, with two differences from the
// OpenAI dialect handled here and nowhere else:
//   - Arguments arrive as a native JSON object, not an encoded string.
//   - The backend never emits a call id; the adapter synthesizes one so the
//     orchestrator can key tool results the same way as for hosted backends.
type ollamaProvider struct {
	cfg    Config
	client *http.Client
}

// --- minimal Ollama wire types ---

type olmFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type olmToolCall struct {
	Function olmFunction `json:"function"`
}

type olmMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	ToolCalls []olmToolCall `json:"tool_calls,omitempty"`
}

type olmToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type olmRequest struct {
	Model    string       `json:"model"`
	Messages []olmMessage `json:"messages"`
	Tools    []olmToolDef `json:"tools,omitempty"`
	Stream   bool         `json:"stream"`
}

type olmResponse struct {
	Message         olmMessage `json:"message"`
	Done            bool       `json:"done"`
	PromptEvalCount int        `json:"prompt_eval_count"`
	EvalCount       int        `json:"eval_count"`
	Error           string     `json:"error,omitempty"`
}

// Complete sends one /api/chat call with streaming disabled and parses the
// reply. An API key is not required for local backends.
func (p *ollamaProvider) Complete(ctx context.Context, messages []Message, tools []ToolDefinition, model string) (*Response, error) {
	if model == "" {
		model = p.cfg.Model
	}

	req := olmRequest{Model: model, Stream: false}
	for _, m := range messages {
		om := olmMessage{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, olmToolCall{
				Function: olmFunction{Name: tc.Name, Arguments: tc.Args},
			})
		}
		req.Messages = append(req.Messages, om)
	}
	for _, t := range tools {
		var def olmToolDef
		def.Type = "function"
		def.Function.Name = t.Name
		def.Function.Description = t.Description
		def.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, def)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("llm: create ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: ollama returned HTTP %d: %.200s", ErrProtocol, resp.StatusCode, body)
	}

	var or olmResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %v", ErrProtocol, err)
	}
	if or.Error != "" {
		return nil, fmt.Errorf("%w: ollama error: %s", ErrProtocol, or.Error)
	}

	out := &Response{
		Text:         or.Message.Content,
		InputTokens:  or.PromptEvalCount,
		OutputTokens: or.EvalCount,
	}
	for _, tc := range or.Message.ToolCalls {
		if tc.Function.Name == "" {
			return nil, fmt.Errorf("%w: tool call missing function name", ErrProtocol)
		}
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			// Local models emit no call id; mint one client-side.
			ID:   "call-" + uuid.NewString(),
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out, nil
}
