package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	specrunner "github.com/specrunner/specrunner"
	"github.com/specrunner/specrunner/exitcodes"
	"github.com/specrunner/specrunner/flags"
	"github.com/specrunner/specrunner/logging"
	"github.com/specrunner/specrunner/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "specrunner"
	app.Usage = "Distributed spec file test orchestrator"
	app.Description = "specrunner partitions spec files into work units and schedules them across a pool of worker processes"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitCodeForError(err)))
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup open telemetry: %v\n", err)
	} else {
		defer otelShutdown()
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

// exitCodeForError maps the typed run outcomes to process exit codes.
func exitCodeForError(err error) int {
	switch {
	case specrunner.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case specrunner.IsReporterSyncError(err):
		return exitcodes.ReporterStall
	case specrunner.IsTestFailureError(err):
		return exitcodes.TestFailure
	default:
		return exitcodes.TestFailure
	}
}

func run(ctx *cli.Context) error {
	logger := logging.New(&logging.Config{
		Level:    ctx.String(flags.LogLevel.Name),
		Format:   ctx.String(flags.LogFormat.Name),
		Output:   logOutput(ctx.String(flags.LogFile.Name)),
		FilePath: ctx.String(flags.LogFile.Name),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := specrunner.NewConfig(ctx, logger)
	if err != nil {
		return specrunner.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Serve {
		svc := service.New(logger)
		svc.Start(runCtx)
		defer svc.Shutdown()
	}

	orchestrator, err := specrunner.New(runCtx, cfg, Version, func(error) {})
	if err != nil {
		return specrunner.NewRuntimeError(fmt.Errorf("failed to create orchestrator: %w", err))
	}

	return orchestrator.Start(runCtx)
}

func logOutput(logFile string) string {
	if logFile != "" {
		return "both"
	}
	return "stdout"
}
