package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jongio/procscope/logutil"
	"github.com/jongio/procscope/testutil"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvProfile, EnvLogLevel, EnvLogFormat, EnvRateLimit, EnvCircuitBreaker, EnvSweepBudget, EnvMetricsPerProcess} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(testutil.TempDir(t) + "/nope.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	clearEnv(t)
	path := testutil.WriteFile(t, "procscope.yaml", `
log:
  level: debug
backend:
  rateLimit: 20
wait:
  sweepBudget: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, logutil.FormatText, cfg.Log.Format, "unset fields keep defaults")
	assert.Equal(t, 20, cfg.Backend.RateLimit)
	assert.Equal(t, 5, cfg.Backend.CircuitBreakerFailures)
	assert.Equal(t, 250*time.Millisecond, cfg.Wait.SweepBudget)
}

func TestLoadProfile(t *testing.T) {
	clearEnv(t)
	path := testutil.WriteFile(t, "procscope.yaml", `
profile: production
backend:
  rateLimit: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Profile)
	assert.Equal(t, logutil.FormatJSON, cfg.Log.Format)
	assert.True(t, cfg.Backend.CircuitBreaker)
	assert.Equal(t, 3, cfg.Backend.RateLimit, "file overrides the profile")

	t.Setenv(EnvProfile, "development")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Profile)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestForProfileUnknown(t *testing.T) {
	_, err := ForProfile("staging")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ci, development, production")
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvRateLimit, "7")
	t.Setenv(EnvCircuitBreaker, "true")
	t.Setenv(EnvSweepBudget, "2s")
	t.Setenv(EnvMetricsPerProcess, "1")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 7, cfg.Backend.RateLimit)
	assert.True(t, cfg.Backend.CircuitBreaker)
	assert.Equal(t, 2*time.Second, cfg.Wait.SweepBudget)
	assert.True(t, cfg.Metrics.PerProcess)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvRateLimit, "lots"},
		{EnvCircuitBreaker, "maybe"},
		{EnvSweepBudget, "soon"},
		{EnvMetricsPerProcess, "perhaps"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			err := Default().ApplyEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"rate limit", func(c *Config) { c.Backend.RateLimit = -1 }, "backend.rateLimit"},
		{"breaker timeout", func(c *Config) {
			c.Backend.CircuitBreaker = true
			c.Backend.CircuitBreakerTimeout = 0
		}, "circuitBreakerTimeout"},
		{"sweep budget", func(c *Config) { c.Wait.SweepBudget = 0 }, "wait.sweepBudget"},
		{"namespace", func(c *Config) { c.Metrics.Namespace = "" }, "metrics.namespace"},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := testutil.WriteFile(t, "procscope.yaml", "log: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestSampleRoundTrips(t *testing.T) {
	clearEnv(t)
	cfg, err := ForProfile("production")
	require.NoError(t, err)

	data, err := cfg.Sample()
	require.NoError(t, err)
	path := testutil.WriteFile(t, "sample.yaml", string(data))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "DEBUG"
	cfg.Backend.RateLimit = 4
	cfg.Backend.CircuitBreaker = true

	opts := cfg.LogOptions()
	assert.Equal(t, logutil.LevelDebug, opts.Level)
	assert.Equal(t, logutil.FormatText, opts.Format)

	g := cfg.GuardOptions()
	assert.Equal(t, 4, g.RateLimit)
	assert.True(t, g.CircuitBreaker)
	assert.Equal(t, 5, g.BreakerFailures)
	assert.Equal(t, time.Minute, g.BreakerTimeout)
}
