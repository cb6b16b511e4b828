// Package dispatch runs one invocation: load the registry, pick the agents
// that are due, generate their text and persist each result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/stegverse/stegagents/internal/hook"
	"github.com/stegverse/stegagents/internal/inputs"
	"github.com/stegverse/stegagents/internal/ledger"
	"github.com/stegverse/stegagents/internal/llm"
	"github.com/stegverse/stegagents/internal/output"
	"github.com/stegverse/stegagents/internal/prompt"
	"github.com/stegverse/stegagents/internal/registry"
	"github.com/stegverse/stegagents/internal/schedule"
	"github.com/stegverse/stegagents/pkg/cerr"
	"github.com/stegverse/stegagents/pkg/clog"
	"github.com/stegverse/stegagents/pkg/panicerr"
)

const (
	DefaultWindow      = time.Hour
	DefaultConcurrency = 4
)

// Invocation parameterizes one run.
type Invocation struct {
	// At is the invocation time; zero means now.
	At time.Time
	// Vars override every other placeholder source.
	Vars map[string]string
	// Only restricts the run to the named agents and treats them as due.
	Only []string
}

// Recorder appends run outcomes to a ledger.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// HookRunner executes after-write hooks.
type HookRunner interface {
	Run(ctx context.Context, script string, p hook.Params) (*hook.Result, error)
}

type Dispatcher struct {
	registryPath string
	generator    llm.Generator
	writer       *output.Writer
	inputs       *inputs.Reader
	hooks        HookRunner
	recorder     Recorder
	window       time.Duration
	concurrency  int
	now          func() time.Time
	newRunID     func() string
}

type Option func(*Dispatcher)

func WithHooks(h HookRunner) Option {
	return func(d *Dispatcher) { d.hooks = h }
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithWindow sets the tick window used by the schedule gate.
func WithWindow(w time.Duration) Option {
	return func(d *Dispatcher) {
		if w > 0 {
			d.window = w
		}
	}
}

func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(registryPath string, gen llm.Generator, writer *output.Writer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registryPath: registryPath,
		generator:    gen,
		writer:       writer,
		inputs:       inputs.NewReader(filepath.Dir(registryPath)),
		window:       DefaultWindow,
		concurrency:  DefaultConcurrency,
		now:          time.Now,
		newRunID:     func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegistryPath returns the registry file the dispatcher reads.
func (d *Dispatcher) RegistryPath() string {
	return d.registryPath
}

// Window returns the tick window used by the schedule gate.
func (d *Dispatcher) Window() time.Duration {
	return d.window
}

// Run executes one invocation. The returned error is non nil only when the
// invocation itself cannot proceed (the registry does not load or an --only
// name is unknown); in that case nothing is written. Per agent failures are
// reported in the Report.
func (d *Dispatcher) Run(ctx context.Context, inv Invocation) (*Report, error) {
	reg, err := registry.Load(d.registryPath)
	if err != nil {
		return nil, err
	}
	for _, name := range inv.Only {
		if _, ok := reg.Find(name); !ok {
			return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown agent %q", name), nil)
		}
	}

	at := inv.At
	if at.IsZero() {
		at = d.now()
	}
	at = at.UTC().Truncate(time.Second)

	report := &Report{
		RunID:    d.newRunID(),
		At:       at,
		Registry: reg.Source,
		Results:  make([]AgentResult, len(reg.Agents)),
	}

	ctx = clog.ContextWithAttributes(ctx, map[string]any{"run_id": report.RunID})
	slog.InfoContext(ctx, "invocation started", "agents", len(reg.Agents), "at", at.Format(time.RFC3339))

	p := pool.New().WithMaxGoroutines(d.concurrency)
	for i, def := range reg.Agents {
		p.Go(func() {
			agentCtx := clog.ContextWithAttributes(ctx, map[string]any{"agent": def.Name})
			var res AgentResult
			if perr := panicerr.Do(func() {
				res = d.runAgent(agentCtx, reg, def, report.RunID, at, inv)
			}); perr != nil {
				slog.ErrorContext(agentCtx, "agent panicked", clog.ErrorAttributeKey, perr.Error())
				res = AgentResult{Agent: def.Name, Status: StatusFailed, Error: perr.Error(), err: perr}
			}
			report.Results[i] = res
		})
	}
	p.Wait()

	slog.InfoContext(ctx, "invocation finished",
		"written", report.Count(StatusWritten),
		"skipped", report.Count(StatusSkipped),
		"failed", len(report.Failures()),
	)
	return report, nil
}

func (d *Dispatcher) runAgent(ctx context.Context, reg *registry.Registry, def registry.AgentDefinition, runID string, at time.Time, inv Invocation) AgentResult {
	start := time.Now()
	res := AgentResult{Agent: def.Name}

	if reason := d.skipReason(def, at, inv.Only); reason != "" {
		res.Status = StatusSkipped
		res.Reason = reason
		slog.DebugContext(ctx, "agent skipped", "reason", reason)
		return res
	}

	rec := output.RunRecord{
		RunID:     runID,
		AgentName: def.Name,
		Dir:       def.Dir(),
		Timestamp: at,
		Format:    def.Format,
	}
	// A taken artifact path fails the agent before any model call.
	if err := d.writer.Check(ctx, rec); err != nil {
		return d.fail(ctx, res, StatusWriteFailed, err, runID, at, start)
	}

	var inputValues map[string]string
	if len(def.Inputs) > 0 {
		loaded, err := d.inputs.Read(ctx, def.Inputs)
		if err != nil {
			return d.fail(ctx, res, StatusInputFailed, err, runID, at, start)
		}
		inputValues = loaded.Values
		res.Inputs = loaded.Files
		if len(loaded.Empty) > 0 {
			slog.WarnContext(ctx, "inputs matched no files", "inputs", loaded.Empty)
		}
		if len(loaded.Truncated) > 0 {
			slog.InfoContext(ctx, "inputs truncated", "inputs", loaded.Truncated)
		}
	}

	rendered := prompt.Render(def.PromptTemplate, inv.Vars, inputValues, def.Vars, reg.Vars, prompt.Builtins(def.Name, at))
	if len(rendered.Missing) > 0 {
		res.Missing = rendered.Missing
		slog.WarnContext(ctx, "prompt has unresolved placeholders", "missing", rendered.Missing)
	}
	text := rendered.Text
	if def.TimestampFooter {
		text = prompt.WithFooter(text, at)
	}

	generated, err := d.generator.Generate(ctx, llm.Request{
		Agent:        def.Name,
		Provider:     def.Provider,
		Model:        def.Model,
		SystemPrompt: def.SystemPrompt,
		Prompt:       text,
		Temperature:  def.Temperature,
		MaxTokens:    def.MaxTokens,
	})
	if err != nil {
		var genErr *llm.GenerationError
		if errors.As(err, &genErr) {
			res.Attempts = genErr.Attempts
		}
		return d.fail(ctx, res, StatusGenerationFailed, err, runID, at, start)
	}

	rec.GeneratedText = generated
	path, err := d.writer.Write(ctx, rec)
	if err != nil {
		return d.fail(ctx, res, StatusWriteFailed, err, runID, at, start)
	}
	res.Status = StatusWritten
	res.Path = path
	slog.InfoContext(ctx, "artifact written", "path", path)

	if def.AfterHook != "" && d.hooks != nil {
		if _, err := d.hooks.Run(ctx, def.AfterHook, hook.Params{
			Agent:     def.Name,
			Output:    path,
			RunID:     runID,
			Timestamp: at.Format(output.TimestampLayout),
		}); err != nil {
			res.Hook = err.Error()
			slog.WarnContext(ctx, "after hook failed", clog.ErrorAttributeKey, err.Error())
		}
	}

	d.record(ctx, runID, at, res)
	return finish(res, start)
}

func (d *Dispatcher) fail(ctx context.Context, res AgentResult, status Status, err error, runID string, at time.Time, start time.Time) AgentResult {
	res.Status = status
	res.Error = err.Error()
	res.err = err
	slog.ErrorContext(ctx, "agent failed", "status", string(status), clog.ErrorAttributeKey, err.Error())
	d.record(ctx, runID, at, res)
	return finish(res, start)
}

func (d *Dispatcher) skipReason(def registry.AgentDefinition, at time.Time, only []string) string {
	if len(only) > 0 {
		if slices.Contains(only, def.Name) {
			return ""
		}
		return "not selected"
	}
	if !def.Enabled {
		return "disabled"
	}
	// Schedules were validated when the registry loaded.
	sched, err := schedule.Parse(def.Schedule)
	if err != nil {
		return "invalid schedule"
	}
	if !sched.Due(at, d.window) {
		return "not due"
	}
	return ""
}

func (d *Dispatcher) record(ctx context.Context, runID string, at time.Time, res AgentResult) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.Record(ctx, ledger.Entry{
		RunID:     runID,
		Agent:     res.Agent,
		Timestamp: at,
		Status:    string(res.Status),
		Path:      res.Path,
		Attempts:  res.Attempts,
		Error:     res.Error,
	}); err != nil {
		slog.WarnContext(ctx, "failed to record run", clog.ErrorAttributeKey, err.Error())
	}
}

func finish(res AgentResult, start time.Time) AgentResult {
	res.Duration = time.Since(start)
	return res
}
