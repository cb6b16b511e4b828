// Package hook runs the after-write shell snippets declared in the registry.
// Snippets are interpreted in-process; no system shell is required.
package hook

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

const DefaultTimeout = 30 * time.Second

// Environment variables exposed to a hook.
const (
	EnvAgent     = "STEGAGENTS_AGENT"
	EnvOutput    = "STEGAGENTS_OUTPUT"
	EnvRunID     = "STEGAGENTS_RUN_ID"
	EnvTimestamp = "STEGAGENTS_TIMESTAMP"
)

// maxCapture bounds the hook output kept for logging.
const maxCapture = 4 << 10

// Validate reports whether script parses as a shell program.
func Validate(script string) error {
	_, err := parse(script)
	return err
}

func parse(script string) (*syntax.File, error) {
	f, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(script), "hooks.after")
	if err != nil {
		return nil, fmt.Errorf("parse hook: %w", err)
	}
	return f, nil
}

// Format pretty-prints script for logs and listings. Long && / || chains
// break onto continuation lines.
func Format(script string) (string, error) {
	f, err := parse(script)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	printer := syntax.NewPrinter(syntax.Indent(2), syntax.BinaryNextLine(true), syntax.SpaceRedirects(true))
	if err := printer.Print(&buf, f); err != nil {
		return "", fmt.Errorf("format hook: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// Params describes the artifact a hook is run for.
type Params struct {
	Agent     string
	Output    string
	RunID     string
	Timestamp string
}

func (p Params) environ() []string {
	return []string{
		EnvAgent + "=" + p.Agent,
		EnvOutput + "=" + p.Output,
		EnvRunID + "=" + p.RunID,
		EnvTimestamp + "=" + p.Timestamp,
	}
}

// Runner executes hook snippets.
type Runner struct {
	timeout time.Duration
	dir     string
}

// NewRunner returns a Runner that executes snippets in dir, bounded by
// timeout. A zero timeout selects DefaultTimeout.
func NewRunner(dir string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout, dir: dir}
}

// Result is the captured output of one hook execution.
type Result struct {
	Stdout string
	Stderr string
}

// Run executes script. A non zero exit status or a timeout is returned as
// an error together with whatever output was captured.
func (r *Runner) Run(ctx context.Context, script string, p Params) (*Result, error) {
	file, err := parse(script)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	env := append(os.Environ(), p.environ()...)
	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, &stdout, &stderr),
	}
	if r.dir != "" {
		opts = append(opts, interp.Dir(r.dir))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create hook interpreter: %w", err)
	}

	if pretty, err := Format(script); err == nil {
		slog.DebugContext(ctx, "running hook", "script", pretty)
	}

	start := time.Now()
	runErr := runner.Run(ctx, file)
	res := &Result{Stdout: truncate(stdout.String()), Stderr: truncate(stderr.String())}

	slog.DebugContext(ctx, "hook finished",
		"duration", time.Since(start),
		"stdout", res.Stdout,
		"stderr", res.Stderr,
	)

	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("hook timed out after %s", r.timeout)
	}
	if runErr != nil {
		return res, fmt.Errorf("run hook: %w", runErr)
	}
	return res, nil
}

func truncate(s string) string {
	if len(s) <= maxCapture {
		return s
	}
	return s[:maxCapture] + "...(truncated)"
}
