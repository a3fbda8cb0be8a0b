package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.LineTolerance)
	assert.Equal(t, 20, cfg.GapThreshold)
	assert.Equal(t, 1.2, cfg.HeadingRatio)
	assert.Equal(t, 5, cfg.TableRowTolerance)
	assert.Equal(t, 50, cfg.ColumnTolerance)
	assert.Equal(t, 5, cfg.RedactionPadding)
	assert.Equal(t, "black", cfg.RedactionColor)
	assert.Equal(t, 1800, cfg.NormalizeWidth)
	assert.Equal(t, "asynq", cfg.QueueBackend)
	assert.False(t, cfg.DedupeTables)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HEADING_RATIO", "1.5")
	t.Setenv("DEDUPE_TABLES", "true")
	t.Setenv("REDACTION_COLOR", "red")
	t.Setenv("QUEUE_BACKEND", "LIST")
	t.Setenv("LINE_TOLERANCE", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1.5, cfg.HeadingRatio)
	assert.True(t, cfg.DedupeTables)
	assert.Equal(t, "red", cfg.RedactionColor)
	assert.Equal(t, "list", cfg.QueueBackend)
	assert.Equal(t, 10, cfg.LineTolerance)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad backend", func(c *Config) { c.QueueBackend = "kafka" }, "QUEUE_BACKEND"},
		{"zero workers", func(c *Config) { c.WorkerConcurrency = 0 }, "WORKER_CONCURRENCY"},
		{"flat heading ratio", func(c *Config) { c.HeadingRatio = 1.0 }, "HEADING_RATIO"},
		{"negative padding", func(c *Config) { c.RedactionPadding = -1 }, "REDACTION_PADDING"},
		{"no redis", func(c *Config) { c.RedisURL = "" }, "REDIS_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.redact")
	require.NoError(t, os.WriteFile(path, []byte("GAP_THRESHOLD=33\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GAP_THRESHOLD") })

	require.NoError(t, LoadEnvFile(path))
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 33, cfg.GapThreshold)

	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing")))
}
