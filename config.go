package specrunner

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/specrunner/specrunner/flags"
)

// Config holds the application configuration
type Config struct {
	DefinitionFile string   // Path to the runner definition file
	Suites         []string // Named suites to run; empty means the top-level specs
	ExtraSpecs     []string // Extra spec patterns merged into the run
	Bail           int      // Bail override; -1 means use the definition's value
	ShardTotal     int      // Shard override; 0 means use the definition's value
	ShardCurrent   int
	OutputDir      string // Output directory override; empty means use the definition's value
	Serve          bool   // Expose healthz and metrics endpoints during the run

	Log *zap.SugaredLogger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log *zap.SugaredLogger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	definitionFile := ctx.String(flags.Config.Name)
	absDefinition, err := filepath.Abs(definitionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for definition file '%s': %w", definitionFile, err)
	}

	shardTotal := ctx.Int(flags.ShardTotal.Name)
	shardCurrent := ctx.Int(flags.ShardCurrent.Name)
	if (shardTotal == 0) != (shardCurrent == 0) {
		return nil, fmt.Errorf("shard-total and shard-current must be set together")
	}

	outputDir := ctx.String(flags.OutputDir.Name)
	if outputDir != "" {
		outputDir, err = filepath.Abs(outputDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for output directory '%s': %w", outputDir, err)
		}
	}

	return &Config{
		DefinitionFile: absDefinition,
		Suites:         ctx.StringSlice(flags.Suite.Name),
		ExtraSpecs:     ctx.StringSlice(flags.Spec.Name),
		Bail:           ctx.Int(flags.Bail.Name),
		ShardTotal:     shardTotal,
		ShardCurrent:   shardCurrent,
		OutputDir:      outputDir,
		Serve:          ctx.Bool(flags.Serve.Name),
		Log:            log,
	}, nil
}
