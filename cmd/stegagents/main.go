package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/stegverse/stegagents/internal/config"
)

var (
	app = kingpin.New("stegagents", "Registry-driven dispatcher for scheduled AI agents")

	registryFlag = app.Flag("registry", "Path to the agent registry (default $STEGAGENTS_REGISTRY)").Short('r').String()
	outFlag      = app.Flag("out", "Output root for local storage (default $STEGAGENTS_STORAGE_BASE_DIR)").Short('o').String()

	runCmd         = app.Command("run", "Run every agent that is due now").Default()
	runAt          = runCmd.Flag("at", "Invocation time (RFC3339), defaults to now").String()
	runVars        = runCmd.Flag("var", "Placeholder value, key=value (repeatable)").Short('v').StringMap()
	runOnly        = runCmd.Flag("only", "Run only the named agent and treat it as due (repeatable)").Strings()
	runConcurrency = runCmd.Flag("concurrency", "Maximum agents generating at once").Int()

	validateCmd = app.Command("validate", "Validate the registry and exit")

	listCmd = app.Command("list", "List agents and whether they are due")
	listAt  = listCmd.Flag("at", "Evaluate schedules at this time (RFC3339)").String()

	historyCmd   = app.Command("history", "Show recorded runs from the ledger")
	historyAgent = historyCmd.Flag("agent", "Only show runs of this agent").String()
	historyLimit = historyCmd.Flag("limit", "Maximum number of runs").Default("20").Int()

	diffCmd   = app.Command("diff", "Diff the two newest artifacts of an agent")
	diffAgent = diffCmd.Arg("agent", "Agent name").Required().String()

	serveCmd   = app.Command("serve", "Serve the HTTP trigger API")
	serveTick  = serveCmd.Flag("tick", "Also trigger invocations in-process every tick window").Bool()
	serveWatch = serveCmd.Flag("watch", "Re-validate the registry when it changes").Default("true").Bool()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env: %v\n", err)
		os.Exit(1)
	}
	if *registryFlag != "" {
		env.Registry = *registryFlag
	}
	if *outFlag != "" {
		env.StorageEnv.BaseDir = *outFlag
	}
	setupLogger(env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	switch command {
	case runCmd.FullCommand():
		err = handleRun(ctx, env)
	case validateCmd.FullCommand():
		err = handleValidate(env)
	case listCmd.FullCommand():
		err = handleList(ctx, env)
	case historyCmd.FullCommand():
		err = handleHistory(ctx, env)
	case diffCmd.FullCommand():
		err = handleDiff(ctx, env)
	case serveCmd.FullCommand():
		err = handleServe(ctx, env)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		cancel()
		os.Exit(1)
	}
}
