package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stegverse/stegagents/pkg/clog"
)

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Backoff returns the wait before attempt n+1 (n starts at 1).
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Runner dispatches requests to the provider they name.
type Runner struct {
	providers map[string]Generator
	policy    RetryPolicy
	timeout   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRunner(providers map[string]Generator, policy RetryPolicy, timeout time.Duration) *Runner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Runner{
		providers: providers,
		policy:    policy,
		timeout:   timeout,
		sleep:     sleepContext,
	}
}

// Generate implements Generator. Errors are always *GenerationError.
func (r *Runner) Generate(ctx context.Context, req Request) (string, error) {
	gen, ok := r.providers[req.Provider]
	if !ok {
		return "", &GenerationError{
			Agent:    req.Agent,
			Provider: req.Provider,
			Kind:     KindMalformed,
			Err:      fmt.Errorf("provider %q is not configured", req.Provider),
		}
	}

	var last *failure
	attempt := 0
	for attempt < r.policy.MaxAttempts {
		attempt++
		text, err := r.attempt(ctx, gen, req)
		if err == nil {
			return text, nil
		}
		last = classify(ctx, err)

		if !last.kind.Retryable() || attempt == r.policy.MaxAttempts {
			break
		}
		wait := r.policy.Backoff(attempt)
		slog.WarnContext(ctx, "generation attempt failed, retrying",
			"attempt", attempt,
			"kind", string(last.kind),
			"backoff", wait,
			clog.ErrorAttributeKey, err.Error(),
		)
		if err := r.sleep(ctx, wait); err != nil {
			last = fail(KindCanceled, 0, err)
			break
		}
	}

	return "", &GenerationError{
		Agent:    req.Agent,
		Provider: req.Provider,
		Kind:     last.kind,
		Attempts: attempt,
		Status:   last.status,
		Err:      last.err,
	}
}

func (r *Runner) attempt(ctx context.Context, gen Generator, req Request) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return gen.Generate(ctx, req)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
