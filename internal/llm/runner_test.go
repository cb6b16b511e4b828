package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stegverse/stegagents/pkg/cerr"
)

func newTestRunner(gen Generator, attempts int) (*Runner, *[]time.Duration) {
	r := NewRunner(map[string]Generator{"fake": gen}, RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
	}, time.Second)
	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return r, &waits
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second}
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 16*time.Second, p.Backoff(4))
	assert.Equal(t, 30*time.Second, p.Backoff(5))
	assert.Equal(t, 30*time.Second, p.Backoff(50))
}

func TestRunner_Success(t *testing.T) {
	r, waits := newTestRunner(GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		return "echo: " + req.Prompt, nil
	}), 3)

	text, err := r.Generate(context.Background(), Request{Agent: "X", Provider: "fake", Prompt: "Hello steg"})
	require.NoError(t, err)
	assert.Equal(t, "echo: Hello steg", text)
	assert.Empty(t, *waits)
}

func TestRunner_RetriesTransientFailures(t *testing.T) {
	calls := 0
	r, waits := newTestRunner(GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		if calls < 3 {
			return "", fail(KindRateLimit, 429, errors.New("slow down"))
		}
		return "ok", nil
	}), 3)

	text, err := r.Generate(context.Background(), Request{Agent: "X", Provider: "fake"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *waits)
}

func TestRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	r, _ := newTestRunner(GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		return "", fail(KindUpstream, 503, errors.New("unavailable"))
	}), 3)

	_, err := r.Generate(context.Background(), Request{Agent: "X", Provider: "fake"})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "X", genErr.Agent)
	assert.Equal(t, "fake", genErr.Provider)
	assert.Equal(t, KindUpstream, genErr.Kind)
	assert.Equal(t, 3, genErr.Attempts)
	assert.Equal(t, 503, genErr.Status)
	assert.Equal(t, cerr.Unavailable, cerr.CodeOf(err))
}

func TestRunner_DoesNotRetryAuth(t *testing.T) {
	calls := 0
	r, waits := newTestRunner(GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		return "", fail(KindAuth, 401, errors.New("bad key"))
	}), 3)

	_, err := r.Generate(context.Background(), Request{Agent: "X", Provider: "fake"})
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindAuth, genErr.Kind)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
}

func TestRunner_PerAttemptTimeout(t *testing.T) {
	r, _ := newTestRunner(GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 1)
	r.timeout = 10 * time.Millisecond

	_, err := r.Generate(context.Background(), Request{Agent: "X", Provider: "fake"})
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindTimeout, genErr.Kind)
}

func TestRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, _ := newTestRunner(GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		cancel()
		return "", fail(KindTimeout, 0, context.DeadlineExceeded)
	}), 3)

	_, err := r.Generate(ctx, Request{Agent: "X", Provider: "fake"})
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindCanceled, genErr.Kind)
}

func TestRunner_UnknownProvider(t *testing.T) {
	r, _ := newTestRunner(GeneratorFunc(func(ctx context.Context, req Request) (string, error) {
		return "", nil
	}), 3)

	_, err := r.Generate(context.Background(), Request{Agent: "X", Provider: "nope"})
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindMalformed, genErr.Kind)
}

func TestGenerationError_Error(t *testing.T) {
	err := &GenerationError{Agent: "X", Provider: "openai", Kind: KindRateLimit, Attempts: 3, Err: errors.New("slow down")}
	assert.Equal(t, `generation failed for agent "X" (openai, rate_limit, 3 attempts): slow down`, err.Error())
}
