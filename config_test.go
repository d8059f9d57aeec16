package specrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/specrunner/specrunner/flags"
)

func parseConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error

	app := cli.NewApp()
	app.Flags = flags.Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, zap.NewNop().Sugar())
		return nil
	}
	require.NoError(t, app.Run(append([]string{"specrunner"}, args...)))
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(t, "--config", "specrunner.yaml")
	require.NoError(t, err)

	assert.True(t, len(cfg.DefinitionFile) > 0)
	assert.NotEqual(t, "specrunner.yaml", cfg.DefinitionFile, "definition path should be absolute")
	assert.Empty(t, cfg.Suites)
	assert.Equal(t, -1, cfg.Bail)
	assert.Zero(t, cfg.ShardTotal)
	assert.False(t, cfg.Serve)
}

func TestNewConfigOverrides(t *testing.T) {
	cfg, err := parseConfig(t,
		"--config", "specrunner.yaml",
		"--suite", "smoke",
		"--suite", "regression",
		"--spec", "extra/*.spec.js",
		"--bail", "3",
		"--shard-total", "4",
		"--shard-current", "2",
		"--serve",
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"smoke", "regression"}, cfg.Suites)
	assert.Equal(t, []string{"extra/*.spec.js"}, cfg.ExtraSpecs)
	assert.Equal(t, 3, cfg.Bail)
	assert.Equal(t, 4, cfg.ShardTotal)
	assert.Equal(t, 2, cfg.ShardCurrent)
	assert.True(t, cfg.Serve)
}

func TestNewConfigShardFlagsMustPair(t *testing.T) {
	_, err := parseConfig(t, "--config", "specrunner.yaml", "--shard-total", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard-total and shard-current must be set together")
}
