// Package llm turns rendered prompts into generated text.
//
// Providers implement Generator. Runner routes a Request to its provider,
// bounds each attempt with a timeout and retries transient failures.
package llm

import (
	"context"
)

// Request is one generation call for one agent.
type Request struct {
	Agent        string
	Provider     string
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
