package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newServerProvider spins up an httptest server returning body, and builds a
// provider of the given backend pointed at it.
func newServerProvider(t *testing.T, backend Backend, status int, body string, capture *[]byte) Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			data, _ := io.ReadAll(r.Body)
			*capture = data
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	p, err := New(Config{Backend: backend, APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// --- Variant A: Anthropic blocks style ---

func TestAnthropic_ParsesToolUseBlocks(t *testing.T) {
	body := `{
		"content": [
			{"type": "text", "text": "On it."},
			{"type": "tool_use", "id": "toolu_1", "name": "create_atom", "input": {"title": "Launch campaign", "type": "idea"}},
			{"type": "tool_use", "id": "toolu_2", "name": "search_atoms", "input": {"query": "campaign"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 120, "output_tokens": 45}
	}`
	p := newServerProvider(t, BackendAnthropic, http.StatusOK, body, nil)

	resp, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "capture this"}}, nil, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Text != "On it." {
		t.Errorf("text = %q, want %q", resp.Text, "On it.")
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "toolu_1" || resp.ToolCalls[0].Name != "create_atom" {
		t.Errorf("first call = %+v", resp.ToolCalls[0])
	}
	if got := resp.ToolCalls[0].Args["title"]; got != "Launch campaign" {
		t.Errorf("args title = %v", got)
	}
	if resp.ToolCalls[1].Name != "search_atoms" {
		t.Errorf("second call name = %q", resp.ToolCalls[1].Name)
	}
	if resp.InputTokens != 120 || resp.OutputTokens != 45 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestAnthropic_SystemIsTopLevelAndToolResultsAreUserBlocks(t *testing.T) {
	var captured []byte
	p := newServerProvider(t, BackendAnthropic, http.StatusOK,
		`{"content": [{"type": "text", "text": "ok"}], "usage": {}}`, &captured)

	messages := []Message{
		{Role: RoleSystem, Content: "You are Cosmo."},
		{Role: RoleUser, Content: "delete it"},
		{Role: RoleAssistant, Content: "", ToolCalls: []ToolCall{{ID: "toolu_9", Name: "delete_atom", Args: map[string]any{"uuid": "a1"}}}},
		{Role: RoleTool, ToolCallID: "toolu_9", Content: `{"success":true}`},
	}
	if _, err := p.Complete(context.Background(), messages, nil, ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	var req map[string]any
	if err := json.Unmarshal(captured, &req); err != nil {
		t.Fatalf("decode captured request: %v", err)
	}
	if req["system"] != "You are Cosmo." {
		t.Errorf("system = %v, want top-level field", req["system"])
	}
	msgs := req["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("got %d wire messages, want 3 (system lifted out)", len(msgs))
	}
	last := msgs[2].(map[string]any)
	if last["role"] != "user" {
		t.Errorf("tool result role = %v, want user", last["role"])
	}
	block := last["content"].([]any)[0].(map[string]any)
	if block["type"] != "tool_result" || block["tool_use_id"] != "toolu_9" {
		t.Errorf("tool result block = %v", block)
	}
}

// --- Variant B: OpenAI flat style ---

func TestOpenAI_ParsesToolCallsWithStringArguments(t *testing.T) {
	body := `{
		"choices": [{"message": {
			"role": "assistant",
			"content": "",
			"tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "schedule_block", "arguments": "{\"title\":\"Writing\",\"start\":\"10:00\"}"}},
				{"id": "call_2", "type": "function", "function": {"name": "get_preference", "arguments": "{\"key\":\"focus_length\"}"}},
				{"id": "call_3", "type": "function", "function": {"name": "navigate", "arguments": "{}"}}
			]
		}, "finish_reason": "tool_calls"}],
		"usage": {"prompt_tokens": 80, "completion_tokens": 30}
	}`
	p := newServerProvider(t, BackendOpenAI, http.StatusOK, body, nil)

	resp, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "plan my morning"}}, nil, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 3 {
		t.Fatalf("got %d tool calls, want 3", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "schedule_block" || resp.ToolCalls[0].Args["start"] != "10:00" {
		t.Errorf("first call = %+v", resp.ToolCalls[0])
	}
	if resp.ToolCalls[2].ID != "call_3" {
		t.Errorf("order not preserved: third id = %q", resp.ToolCalls[2].ID)
	}
}

func TestOpenAI_EncodesArgumentsAsJSONString(t *testing.T) {
	var captured []byte
	p := newServerProvider(t, BackendOpenAI, http.StatusOK,
		`{"choices": [{"message": {"role": "assistant", "content": "done"}}], "usage": {}}`, &captured)

	messages := []Message{
		{Role: RoleSystem, Content: "You are Cosmo."},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_7", Name: "create_atom", Args: map[string]any{"title": "x"}}}},
		{Role: RoleTool, ToolCallID: "call_7", Content: `{"success":true,"uuid":"u1"}`},
	}
	if _, err := p.Complete(context.Background(), messages, nil, ""); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	var req map[string]any
	if err := json.Unmarshal(captured, &req); err != nil {
		t.Fatalf("decode captured request: %v", err)
	}
	msgs := req["messages"].([]any)
	// System stays in the message list for this dialect.
	first := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("first wire role = %v, want system", first["role"])
	}
	assistant := msgs[1].(map[string]any)
	call := assistant["tool_calls"].([]any)[0].(map[string]any)
	args, ok := call["function"].(map[string]any)["arguments"].(string)
	if !ok {
		t.Fatalf("arguments not transmitted as a string: %v", call)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(args), &decoded); err != nil || decoded["title"] != "x" {
		t.Errorf("arguments string = %q", args)
	}
	toolMsg := msgs[2].(map[string]any)
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call_7" {
		t.Errorf("tool result message = %v", toolMsg)
	}
}

// --- Variant C: Ollama local style ---

func TestOllama_SynthesizesCallIDs(t *testing.T) {
	body := `{
		"message": {
			"role": "assistant",
			"content": "",
			"tool_calls": [
				{"function": {"name": "start_deep_work", "arguments": {"minutes": 50}}},
				{"function": {"name": "set_preference", "arguments": {"key": "focus_length", "value": "50"}}}
			]
		},
		"done": true,
		"prompt_eval_count": 40,
		"eval_count": 12
	}`
	p := newServerProvider(t, BackendOllama, http.StatusOK, body, nil)

	resp, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "start a session"}}, nil, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID == "" || resp.ToolCalls[1].ID == "" {
		t.Error("expected synthesized call ids")
	}
	if resp.ToolCalls[0].ID == resp.ToolCalls[1].ID {
		t.Error("synthesized ids must be unique within a response")
	}
	// Arguments arrive as a native object, not a string.
	if got := resp.ToolCalls[0].Args["minutes"]; got != float64(50) {
		t.Errorf("minutes = %v (%T)", got, got)
	}
}

func TestOllama_NoAPIKeyRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message": {"role": "assistant", "content": "hi"}, "done": true}`)
	}))
	t.Cleanup(srv.Close)

	p, err := New(Config{Backend: BackendOllama, BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hi" {
		t.Errorf("text = %q", resp.Text)
	}
}

// --- error taxonomy ---

func TestAdapters_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
		status  int
		body    string
		wantErr error
	}{
		{"anthropic 401 is auth", BackendAnthropic, http.StatusUnauthorized, `{}`, ErrAuth},
		{"openai 403 is auth", BackendOpenAI, http.StatusForbidden, `{}`, ErrAuth},
		{"anthropic 500 is protocol", BackendAnthropic, http.StatusInternalServerError, `boom`, ErrProtocol},
		{"openai garbage body is protocol", BackendOpenAI, http.StatusOK, `not json`, ErrProtocol},
		{"openai empty choices is protocol", BackendOpenAI, http.StatusOK, `{"choices": []}`, ErrProtocol},
		{"ollama error field is protocol", BackendOllama, http.StatusOK, `{"error": "model not found"}`, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newServerProvider(t, tt.backend, tt.status, tt.body, nil)
			_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil, "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdapters_MissingKeyIsAuthBeforeDialing(t *testing.T) {
	for _, backend := range []Backend{BackendAnthropic, BackendOpenAI} {
		p, err := New(Config{Backend: backend, BaseURL: "http://127.0.0.1:1"})
		if err != nil {
			t.Fatalf("New(%s): %v", backend, err)
		}
		_, err = p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil, "")
		if !errors.Is(err, ErrAuth) {
			t.Errorf("%s: err = %v, want ErrAuth", backend, err)
		}
	}
}

func TestAdapters_TransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listening anymore

	p, err := New(Config{Backend: BackendOpenAI, APIKey: "k", BaseURL: url})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil, "")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
}

func TestFactory_UnknownBackend(t *testing.T) {
	if _, err := New(Config{Backend: "gemini"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
