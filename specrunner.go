package specrunner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/specrunner/specrunner/capability"
	"github.com/specrunner/specrunner/exitcodes"
	"github.com/specrunner/specrunner/logging"
	"github.com/specrunner/specrunner/partition"
	"github.com/specrunner/specrunner/registry"
	"github.com/specrunner/specrunner/reporting"
	"github.com/specrunner/specrunner/runner"
	"github.com/specrunner/specrunner/types"
)

// Orchestrator drives one run of the configured spec files: partitioning,
// sharding, capability expansion, scheduling and reporting.
type Orchestrator struct {
	ctx      context.Context
	config   *Config
	version  string
	registry *registry.Registry
	metrics  MetricsReporter
	result   *runner.RunResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*Orchestrator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debugw("Creating orchestrator with config",
		"definitionFile", config.DefinitionFile,
		"suites", config.Suites,
		"shardTotal", config.ShardTotal,
		"shardCurrent", config.ShardCurrent)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		DefinitionFile: config.DefinitionFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	config.Log.Infow("Loaded run definition", "file", config.DefinitionFile)

	return &Orchestrator{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		metrics:          NewDefaultMetricsReporter(),
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the configured spec files once and classifies the outcome.
func (o *Orchestrator) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			o.config.Log.Errorw("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	o.ctx = ctx
	o.done = make(chan struct{})
	o.running.Store(true)
	defer o.running.Store(false)

	o.config.Log.Infow("Starting specrunner", "version", o.version)

	err := o.run(ctx)
	if err != nil {
		if IsTestFailureError(err) || IsReporterSyncError(err) {
			return err
		}
		o.config.Log.Errorw("Runtime error running specs", "error", err)
		return NewRuntimeError(err)
	}

	go func() {
		o.shutdownCallback(nil)
	}()
	return nil
}

// run executes one complete run and returns the classified outcome.
func (o *Orchestrator) run(ctx context.Context) error {
	ctx, span := otel.Tracer("specrunner").Start(ctx, "specrunner.run",
		trace.WithAttributes(attribute.String("run.definition", o.config.DefinitionFile)))
	defer span.End()

	def := o.registry.Definition()
	log := o.config.Log

	entries, err := o.resolveEntries(def)
	if err != nil {
		return err
	}

	baseDir := filepath.Dir(o.config.DefinitionFile)
	part := partition.New(log, baseDir, def.StrictSpecResolution)
	units, err := part.Partition(entries, def.Exclude)
	if err != nil {
		return fmt.Errorf("resolving spec files: %w", err)
	}

	shard := def.Shard
	if o.config.ShardTotal > 0 {
		shard = types.ShardOptions{Total: o.config.ShardTotal, Current: o.config.ShardCurrent}
		if err := shard.Validate(); err != nil {
			return fmt.Errorf("invalid shard override: %w", err)
		}
	}
	owned, skipped := partition.SelectShard(units, shard)
	log.Infow("Partitioned spec files",
		"units", len(units), "owned", len(owned), "skipped", len(skipped),
		"shardTotal", shard.Total, "shardCurrent", shard.Current)

	sessions := capability.Expand(def.Capabilities)

	bail := def.Bail
	if o.config.Bail >= 0 {
		bail = o.config.Bail
	}

	outputDir := def.OutputDir
	if o.config.OutputDir != "" {
		outputDir = o.config.OutputDir
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(baseDir, outputDir)
	}

	runID := uuid.New().String()
	runDir, err := logging.RunDir(outputDir, runID)
	if err != nil {
		return fmt.Errorf("preparing run directory: %w", err)
	}
	log.Infow("Run directory created", "dir", runDir)

	launcher, err := runner.NewProcessLauncher(runner.ProcessLauncherConfig{
		Log:      log,
		Command:  def.RunnerCommand,
		ExecArgv: def.ExecArgv,
		Env:      def.RunnerEnv,
		Sink:     logging.NewWorkerLogSink(runDir, def.GroupLogsByTestSpec),
	})
	if err != nil {
		return fmt.Errorf("creating worker launcher: %w", err)
	}

	jsonl, err := reporting.NewJSONLReporter(log, runDir)
	if err != nil {
		return fmt.Errorf("creating event reporter: %w", err)
	}
	reporters := []reporting.Reporter{
		jsonl,
		reporting.NewTextSummaryReporter(runDir),
	}

	coordinator, err := runner.NewCoordinator(runner.Config{
		RunID:                     runID,
		Log:                       log,
		Launcher:                  launcher,
		Sinks:                     reporting.Sinks(reporters),
		MaxInstances:              def.MaxInstances,
		MaxInstancesPerCapability: def.MaxInstancesPerCapability,
		SpecFileRetries:           def.SpecFileRetries,
		RetriesDeferred:           def.RetriesDeferred(),
		RetryDelay:                def.RetryDelay(),
		Bail:                      bail,
		DrainGrace:                def.DrainGrace(),
		RetryDrained:              def.RetryDrainedSpecs,
	})
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}

	result, err := coordinator.Run(ctx, owned, skipped, sessions)
	if err != nil {
		return fmt.Errorf("running spec files: %w", err)
	}
	o.result = result
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.status", string(result.Status)),
		attribute.Int("run.failed", result.Stats.Failed),
	)

	o.printResultsTable(result)
	fmt.Println(result.String())

	o.metrics.ReportResults(runID, result)

	for _, r := range reporters {
		if err := r.RunCompleted(result); err != nil {
			log.Warnw("Reporter failed to record run completion", "reporter", r.Name(), "error", err)
		}
	}

	// Flushing uses a fresh context: a cancelled run still deserves its
	// reported output, bounded by the sync timeout.
	syncErr := reporting.WaitForSync(context.Background(), log, reporters, def.SyncInterval(), def.SyncTimeout())
	for _, r := range reporters {
		if err := r.Close(); err != nil {
			log.Warnw("Reporter close failed", "reporter", r.Name(), "error", err)
		}
	}

	result.Phase = runner.PhaseCompleted
	log.Infow("Run completed", "run_id", runID, "status", result.Status)

	if result.Status == types.UnitStateFailed {
		return NewTestFailureError(result.String())
	}
	if syncErr != nil && reporting.IsSyncTimeout(syncErr) {
		return NewReporterSyncError(syncErr)
	}
	return nil
}

// resolveEntries merges the top-level specs, any named suites and the CLI's
// extra patterns into the entry list handed to the partitioner.
func (o *Orchestrator) resolveEntries(def *registry.Definition) ([]registry.SpecEntry, error) {
	entries := append([]registry.SpecEntry{}, def.Specs...)

	if len(o.config.Suites) > 0 {
		suiteEntries, err := o.registry.ResolveSuites(o.config.Suites)
		if err != nil {
			return nil, err
		}
		entries = append(entries, suiteEntries...)
	}

	for _, pattern := range o.config.ExtraSpecs {
		entries = append(entries, registry.SpecEntry{Patterns: []string{pattern}})
	}

	if len(entries) == 0 {
		return nil, errors.New("no spec files configured: set specs or name a suite")
	}
	return entries, nil
}

// Stop stops the orchestrator.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.config.Log.Infow("Stopping specrunner")

	if !o.running.Load() {
		o.config.Log.Debugw("Service already stopped, nothing to do")
		return nil
	}

	o.running.Store(false)

	o.config.Log.Debugw("Sending done signal to goroutines")
	close(o.done)

	o.config.Log.Infow("specrunner stopped successfully")
	return nil
}

// Stopped returns true if the orchestrator is stopped.
func (o *Orchestrator) Stopped() bool {
	return !o.running.Load()
}

// Result returns the result of the most recent run, or nil before the first
// run completes.
func (o *Orchestrator) Result() *runner.RunResult {
	return o.result
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (o *Orchestrator) WaitForShutdown(ctx context.Context) error {
	o.config.Log.Debugw("Waiting for all goroutines to terminate")

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.config.Log.Debugw("All goroutines terminated successfully")
		return nil
	case <-ctx.Done():
		o.config.Log.Warnw("Timed out waiting for goroutines to terminate", "error", ctx.Err())
		return ctx.Err()
	}
}
