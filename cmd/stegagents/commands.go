package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sourcegraph/conc/pool"

	"github.com/stegverse/stegagents/internal/config"
	"github.com/stegverse/stegagents/internal/dispatch"
	"github.com/stegverse/stegagents/internal/output"
	"github.com/stegverse/stegagents/internal/registry"
	"github.com/stegverse/stegagents/internal/server"
	"github.com/stegverse/stegagents/pkg/cerr"
	agentcolor "github.com/stegverse/stegagents/pkg/color"
	"github.com/stegverse/stegagents/pkg/panicerr"
)

func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: %w", s, err)
	}
	return at, nil
}

func handleRun(ctx context.Context, env *config.Env) error {
	at, err := parseAt(*runAt)
	if err != nil {
		return err
	}
	if *runConcurrency > 0 {
		env.Concurrency = *runConcurrency
	}

	c, err := newComponents(ctx, env)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.dispatcher.Run(ctx, dispatch.Invocation{
		At:   at,
		Vars: *runVars,
		Only: *runOnly,
	})
	if err != nil {
		return err
	}

	// Per agent failures are logged by the dispatcher and do not change
	// the exit status.
	for _, res := range report.Results {
		switch res.Status {
		case dispatch.StatusWritten:
			fmt.Println(res.Path)
		case dispatch.StatusSkipped:
		default:
			fmt.Fprintf(os.Stderr, "%s %s (%s): %s\n", agentcolor.Prefix(res.Agent), res.Status, cerr.CodeOf(res.Err()), res.Error)
		}
	}
	return nil
}

func handleValidate(env *config.Env) error {
	reg, err := registry.Load(env.Registry)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d agents OK\n", reg.Source, len(reg.Agents))
	return nil
}

func handleList(ctx context.Context, env *config.Env) error {
	at, err := parseAt(*listAt)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}

	c, err := newComponents(ctx, env)
	if err != nil {
		return err
	}
	defer c.Close()

	plans, err := c.dispatcher.Plan(at)
	if err != nil {
		return err
	}

	due := color.New(color.FgGreen).SprintFunc()
	idle := color.New(color.FgHiBlack).SprintFunc()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCHEDULE\tPROVIDER\tOUTPUT\tSTATE")
	for _, p := range plans {
		state := due("due")
		if !p.Due {
			state = idle(p.Reason)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", agentcolor.Name(p.Name), scheduleLabel(p.Schedule), p.Provider, p.Dir, state)
	}
	return w.Flush()
}

func scheduleLabel(s string) string {
	if s == "" {
		return "always"
	}
	return s
}

func handleHistory(ctx context.Context, env *config.Env) error {
	c, err := newComponents(ctx, env)
	if err != nil {
		return err
	}
	defer c.Close()
	if c.ledger == nil {
		return errors.New("run ledger is disabled (STEGAGENTS_LEDGER_PATH is empty)")
	}

	entries, err := c.ledger.List(ctx, *historyAgent, *historyLimit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tAGENT\tSTATUS\tATTEMPTS\tRUN\tDETAIL")
	for _, e := range entries {
		detail := e.Path
		if e.Error != "" {
			detail = e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Timestamp.Format(output.TimestampLayout), agentcolor.Name(e.Agent), e.Status, e.Attempts, e.RunID, detail)
	}
	return w.Flush()
}

func handleDiff(ctx context.Context, env *config.Env) error {
	reg, err := registry.Load(env.Registry)
	if err != nil {
		return err
	}
	def, ok := reg.Find(*diffAgent)
	if !ok {
		return fmt.Errorf("unknown agent %q", *diffAgent)
	}

	store, err := newStorage(ctx, env)
	if err != nil {
		return err
	}
	diff, err := output.NewWriter(store).Diff(ctx, def.Dir())
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Println("no changes between the two newest artifacts")
		return nil
	}
	fmt.Print(diff)
	return nil
}

func handleServe(ctx context.Context, env *config.Env) error {
	c, err := newComponents(ctx, env)
	if err != nil {
		return err
	}
	defer c.Close()

	// The registry must be valid before serving.
	if _, err := registry.Load(c.dispatcher.RegistryPath()); err != nil {
		return err
	}

	srv := server.NewServer(&env.ServerEnv, c.dispatcher)
	p := pool.New().WithContext(ctx).WithCancelOnError()

	if *serveWatch {
		w := server.NewRegistryWatcher(c.dispatcher.RegistryPath(), server.LogReload)
		p.Go(panicerr.SafeContext(w.Run))
	}
	if *serveTick {
		t := server.NewTicker(c.dispatcher)
		p.Go(panicerr.SafeContext(t.Run))
	}
	p.Go(srv.ListenAndServe)

	return p.Wait()
}
