package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.Equal(t, 60, cfg.BreakerTimeoutS)
	assert.Equal(t, 60, cfg.AgentTimeoutS)
	assert.Equal(t, 600, cfg.RunDeadlineS)
	assert.Equal(t, 1024, cfg.StreamHWM)
	assert.Equal(t, CheckpointMemory, cfg.CheckpointStore)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	t.Setenv("MAX_CONCURRENT", "7")
	t.Setenv("RETRY_POLICY", "fibonacci")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxConcurrent)
	assert.Equal(t, "fibonacci", string(cfg.RetryPolicy))
}

func TestLoad_YAMLFileOverlay(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("max_concurrent: 9\nstream_hwm: 2048\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxConcurrent)
	assert.Equal(t, 2048, cfg.StreamHWM)
}

func TestValidate_RejectsUnknownRetryPolicy(t *testing.T) {
	cfg := Default()
	cfg.RetryPolicy = "quadratic"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidate_RequiresDSNForLocalDurable(t *testing.T) {
	cfg := Default()
	cfg.CheckpointStore = CheckpointLocalDurable
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.PostgresDSN = "postgres://localhost/swarmkernel"
	assert.NoError(t, cfg.Validate())
}
