package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stegverse/stegagents/internal/config"
	"github.com/stegverse/stegagents/internal/dispatch"
	"github.com/stegverse/stegagents/internal/hook"
	"github.com/stegverse/stegagents/internal/ledger"
	"github.com/stegverse/stegagents/internal/llm"
	"github.com/stegverse/stegagents/internal/output"
	"github.com/stegverse/stegagents/internal/registry"
	"github.com/stegverse/stegagents/pkg/clog"
	"github.com/stegverse/stegagents/pkg/storage"
)

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level), clog.WithColor(true))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func newStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		store, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return store, nil
	}
}

func newGenerator(env *config.Env) llm.Generator {
	workDir := filepath.Dir(env.Registry)
	return llm.NewRunner(map[string]llm.Generator{
		registry.ProviderOpenAI:     llm.NewOpenAI(env.OpenAIAPIKey, env.OpenAIBaseURL, env.DefaultModel),
		registry.ProviderClaudeCode: llm.NewClaudeCode(workDir),
	}, llm.RetryPolicy{
		MaxAttempts:    env.MaxAttempts,
		InitialBackoff: env.InitialBackoff,
		MaxBackoff:     env.MaxBackoff,
	}, env.RequestTimeout)
}

// components holds what a dispatcher was built from so commands can reuse
// and release them.
type components struct {
	dispatcher *dispatch.Dispatcher
	writer     *output.Writer
	ledger     *ledger.SQLiteLedger
}

func (c *components) Close() {
	if err := c.ledger.Close(); err != nil {
		slog.Warn("failed to close ledger", "error", err)
	}
}

func newComponents(ctx context.Context, env *config.Env) (*components, error) {
	store, err := newStorage(ctx, env)
	if err != nil {
		return nil, err
	}
	c := &components{writer: output.NewWriter(store)}

	opts := []dispatch.Option{
		dispatch.WithWindow(env.TickWindow),
		dispatch.WithConcurrency(env.Concurrency),
		dispatch.WithHooks(hook.NewRunner(filepath.Dir(env.Registry), env.HookEnv.Timeout)),
	}
	if env.LedgerEnv.Path != "" {
		l, err := ledger.Open(ctx, env.LedgerEnv.Path)
		if err != nil {
			return nil, err
		}
		c.ledger = l
		opts = append(opts, dispatch.WithRecorder(l))
	}

	c.dispatcher = dispatch.New(env.Registry, newGenerator(env), c.writer, opts...)
	return c, nil
}
