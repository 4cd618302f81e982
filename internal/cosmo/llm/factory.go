package llm

import (
	"fmt"
	"net/http"
	"time"
)

// defaultTimeout bounds every adapter HTTP call. Completions for long
// contexts can take a while, but a turn must never hang a channel.
const defaultTimeout = 30 * time.Second

// Backend identifies a supported chat-completion backend.
type Backend string

const (
	BackendAnthropic Backend = "anthropic"
	BackendOpenAI    Backend = "openai"
	BackendOllama    Backend = "ollama"
)

// Config configures a provider adapter. Backend selects the wire dialect;
// the remaining fields are credentials and defaults supplied opaquely by the
// surrounding application.
type Config struct {
	Backend Backend

	// APIKey is the bearer credential. Required for hosted backends,
	// ignored by ollama.
	APIKey string

	// BaseURL overrides the API endpoint (proxies, self-hosted gateways).
	// Defaults to the backend's canonical endpoint when empty.
	BaseURL string

	// Model is the default model id used when the caller passes none.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration
}

// New returns the adapter for the configured backend. Pure selection: no
// state, no side effects beyond building an http.Client.
func New(cfg Config) (Provider, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	client := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Backend {
	case BackendAnthropic:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultAnthropicBase
		}
		if cfg.Model == "" {
			cfg.Model = defaultAnthropicModel
		}
		return &anthropicProvider{cfg: cfg, client: client}, nil

	case BackendOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOpenAIBase
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
		return &openAIProvider{cfg: cfg, client: client}, nil

	case BackendOllama:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOllamaBase
		}
		if cfg.Model == "" {
			cfg.Model = defaultOllamaModel
		}
		return &ollamaProvider{cfg: cfg, client: client}, nil

	default:
		return nil, fmt.Errorf("llm: unknown backend %q", cfg.Backend)
	}
}
