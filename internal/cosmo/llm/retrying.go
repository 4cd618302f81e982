package llm

import (
	"context"
	"errors"

	"github.com/cosmo-os/cosmo/common/retry"
)

// retryingProvider decorates an adapter with backoff on transient failures.
// Credential failures are terminal and protocol failures are deterministic,
// so only network errors are retried.
type retryingProvider struct {
	inner Provider
	cfg   retry.Config
}

// WithRetry wraps p so transient network failures are retried with
// exponential backoff. Pass a zero Config to use retry.DefaultConfig.
func WithRetry(p Provider, cfg retry.Config) Provider {
	if cfg.MaxAttempts == 0 {
		cfg = retry.DefaultConfig
	}
	cfg.ShouldRetry = func(err error) bool {
		return errors.Is(err, ErrNetwork)
	}
	return &retryingProvider{inner: p, cfg: cfg}
}

func (r *retryingProvider) Complete(ctx context.Context, messages []Message, tools []ToolDefinition, model string) (*Response, error) {
	var resp *Response
	err := retry.Do(ctx, r.cfg, func() error {
		var callErr error
		resp, callErr = r.inner.Complete(ctx, messages, tools, model)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
