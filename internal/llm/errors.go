package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/stegverse/stegagents/pkg/cerr"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindTimeout   Kind = "timeout"
	KindRateLimit Kind = "rate_limit"
	KindMalformed Kind = "malformed"
	KindUpstream  Kind = "upstream"
	KindCanceled  Kind = "canceled"
)

// Retryable reports whether another attempt may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimit, KindUpstream:
		return true
	default:
		return false
	}
}

func (k Kind) code() cerr.Code {
	switch k {
	case KindAuth:
		return cerr.Unauthenticated
	case KindTimeout:
		return cerr.DeadlineExceeded
	case KindRateLimit:
		return cerr.ResourceExhausted
	case KindMalformed:
		return cerr.Internal
	case KindUpstream:
		return cerr.Unavailable
	case KindCanceled:
		return cerr.Canceled
	default:
		return cerr.Unknown
	}
}

// GenerationError is returned when an agent's text could not be produced.
// It affects only that agent.
type GenerationError struct {
	Agent    string
	Provider string
	Kind     Kind
	Attempts int
	// Status is the HTTP status of the last response, if any.
	Status int
	Err    error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("generation failed for agent %q (%s, %s", e.Agent, e.Provider, e.Kind)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(", %d attempts", e.Attempts)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Code() cerr.Code {
	return e.Kind.code()
}

// failure is the provider level error before the agent context is known.
type failure struct {
	kind   Kind
	status int
	err    error
}

func (f *failure) Error() string {
	if f.status != 0 {
		return fmt.Sprintf("%s (status %d): %v", f.kind, f.status, f.err)
	}
	return fmt.Sprintf("%s: %v", f.kind, f.err)
}

func (f *failure) Unwrap() error {
	return f.err
}

func fail(kind Kind, status int, err error) *failure {
	return &failure{kind: kind, status: status, err: err}
}

// classify maps an arbitrary provider error to a failure.
func classify(ctx context.Context, err error) *failure {
	var f *failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return fail(KindCanceled, 0, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fail(KindTimeout, 0, err)
	}
	return fail(KindUpstream, 0, err)
}
