package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "SPECRUNNER"

// prefixEnvVars adds the app prefix to the environment variable name.
func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Config = &cli.StringFlag{
		Name:     "config",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("CONFIG"),
		Usage:    "Path to the runner definition file (eg. 'specrunner.yaml')",
	}
	Suite = &cli.StringSliceFlag{
		Name:    "suite",
		EnvVars: prefixEnvVars("SUITE"),
		Usage:   "Named suite(s) to run; spec patterns from all named suites are combined",
	}
	Spec = &cli.StringSliceFlag{
		Name:    "spec",
		EnvVars: prefixEnvVars("SPEC"),
		Usage:   "Additional spec file patterns, merged with the configured ones",
	}
	Bail = &cli.IntFlag{
		Name:    "bail",
		Value:   -1,
		EnvVars: prefixEnvVars("BAIL"),
		Usage:   "Stop scheduling new work after this many failed spec files (overrides config)",
	}
	ShardTotal = &cli.IntFlag{
		Name:    "shard-total",
		Value:   0,
		EnvVars: prefixEnvVars("SHARD_TOTAL"),
		Usage:   "Total number of shards splitting this run (overrides config)",
	}
	ShardCurrent = &cli.IntFlag{
		Name:    "shard-current",
		Value:   0,
		EnvVars: prefixEnvVars("SHARD_CURRENT"),
		Usage:   "1-based index of the shard this invocation owns (overrides config)",
	}
	OutputDir = &cli.StringFlag{
		Name:    "output-dir",
		Value:   "",
		EnvVars: prefixEnvVars("OUTPUT_DIR"),
		Usage:   "Directory for run artifacts and worker logs (overrides config)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level: debug, info, warn, error",
	}
	LogFormat = &cli.StringFlag{
		Name:    "log-format",
		Value:   "console",
		EnvVars: prefixEnvVars("LOG_FORMAT"),
		Usage:   "Log format: console or json",
	}
	LogFile = &cli.StringFlag{
		Name:    "log-file",
		Value:   "",
		EnvVars: prefixEnvVars("LOG_FILE"),
		Usage:   "Also write orchestrator logs to this file (rotated)",
	}
	Serve = &cli.BoolFlag{
		Name:    "serve",
		Value:   false,
		EnvVars: prefixEnvVars("SERVE"),
		Usage:   "Expose healthz and metrics HTTP endpoints for the duration of the run",
	}
)

var requiredFlags = []cli.Flag{
	Config,
}

var optionalFlags = []cli.Flag{
	Suite,
	Spec,
	Bail,
	ShardTotal,
	ShardCurrent,
	OutputDir,
	LogLevel,
	LogFormat,
	LogFile,
	Serve,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
