// Package config loads procscope settings from a YAML file, named profiles and
// PROCSCOPE_* environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jongio/procscope/backend"
	"github.com/jongio/procscope/logutil"
)

// Environment variables read by ApplyEnv.
const (
	EnvProfile           = "PROCSCOPE_PROFILE"
	EnvLogLevel          = "PROCSCOPE_LOG_LEVEL"
	EnvLogFormat         = "PROCSCOPE_LOG_FORMAT"
	EnvRateLimit         = "PROCSCOPE_RATE_LIMIT"
	EnvCircuitBreaker    = "PROCSCOPE_CIRCUIT_BREAKER"
	EnvSweepBudget       = "PROCSCOPE_SWEEP_BUDGET"
	EnvMetricsPerProcess = "PROCSCOPE_METRICS_PER_PROCESS"
)

// Config is the complete procscope configuration.
type Config struct {
	Profile string        `yaml:"profile"`
	Log     LogConfig     `yaml:"log"`
	Backend BackendConfig `yaml:"backend"`
	Wait    WaitConfig    `yaml:"wait"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BackendConfig tunes the guard around system-wide backend calls.
type BackendConfig struct {
	RateLimit              int           `yaml:"rateLimit"`
	CircuitBreaker         bool          `yaml:"circuitBreaker"`
	CircuitBreakerFailures int           `yaml:"circuitBreakerFailures"`
	CircuitBreakerTimeout  time.Duration `yaml:"circuitBreakerTimeout"`
}

// WaitConfig tunes multi-process waits.
type WaitConfig struct {
	SweepBudget time.Duration `yaml:"sweepBudget"`
}

// MetricsConfig tunes the Prometheus collector.
type MetricsConfig struct {
	Namespace  string `yaml:"namespace"`
	PerProcess bool   `yaml:"perProcess"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: logutil.FormatText},
		Backend: BackendConfig{
			CircuitBreakerFailures: 5,
			CircuitBreakerTimeout:  60 * time.Second,
		},
		Wait:    WaitConfig{SweepBudget: time.Second},
		Metrics: MetricsConfig{Namespace: "procscope"},
	}
}

var profiles = map[string]func(*Config){
	"development": func(c *Config) {
		c.Log = LogConfig{Level: "debug", Format: logutil.FormatText}
		c.Backend.CircuitBreaker = false
		c.Backend.RateLimit = 0
		c.Metrics.PerProcess = true
	},
	"production": func(c *Config) {
		c.Log = LogConfig{Level: "info", Format: logutil.FormatJSON}
		c.Backend.CircuitBreaker = true
		c.Backend.RateLimit = 10
		c.Metrics.PerProcess = false
	},
	"ci": func(c *Config) {
		c.Log = LogConfig{Level: "info", Format: logutil.FormatJSON}
		c.Backend.CircuitBreaker = false
		c.Wait.SweepBudget = 250 * time.Millisecond
	},
}

// Profiles lists the built-in profile names.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForProfile returns the defaults with the named profile applied.
func ForProfile(name string) (*Config, error) {
	cfg := Default()
	if name == "" {
		return cfg, nil
	}
	apply, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile '%s' not found. Available profiles: %s", name, strings.Join(Profiles(), ", "))
	}
	apply(cfg)
	cfg.Profile = name
	return cfg, nil
}

// Load reads path over the defaults (or over the profile the file or
// PROCSCOPE_PROFILE names), applies environment overrides and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var head struct {
		Profile string `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	profile := head.Profile
	if env := os.Getenv(EnvProfile); env != "" {
		profile = env
	}

	cfg, err := ForProfile(profile)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Profile = profile

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PROCSCOPE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRateLimit, err)
		}
		c.Backend.RateLimit = n
	}
	if v := os.Getenv(EnvCircuitBreaker); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCircuitBreaker, err)
		}
		c.Backend.CircuitBreaker = on
	}
	if v := os.Getenv(EnvSweepBudget); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSweepBudget, err)
		}
		c.Wait.SweepBudget = d
	}
	if v := os.Getenv(EnvMetricsPerProcess); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMetricsPerProcess, err)
		}
		c.Metrics.PerProcess = on
	}
	return nil
}

var logLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate reports the first setting that is out of range.
func (c *Config) Validate() error {
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level %q is not one of %s", c.Log.Level, strings.Join(logLevels, ", "))
	}
	switch strings.ToLower(c.Log.Format) {
	case logutil.FormatText, logutil.FormatJSON:
	default:
		return fmt.Errorf("log.format %q must be %q or %q", c.Log.Format, logutil.FormatText, logutil.FormatJSON)
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("backend.rateLimit must not be negative (got %d)", c.Backend.RateLimit)
	}
	if c.Backend.CircuitBreaker && c.Backend.CircuitBreakerTimeout <= 0 {
		return fmt.Errorf("backend.circuitBreakerTimeout must be positive when the circuit breaker is on")
	}
	if c.Wait.SweepBudget <= 0 {
		return fmt.Errorf("wait.sweepBudget must be positive (got %s)", c.Wait.SweepBudget)
	}
	if c.Metrics.Namespace == "" {
		return fmt.Errorf("metrics.namespace must not be empty")
	}
	return nil
}

// LogOptions converts the log section for logutil.Setup.
func (c *Config) LogOptions() logutil.Options {
	return logutil.Options{
		Level:  logutil.ParseLevel(c.Log.Level),
		Format: strings.ToLower(c.Log.Format),
	}
}

// GuardOptions converts the backend section for backend.NewGuarded.
func (c *Config) GuardOptions() backend.GuardOptions {
	return backend.GuardOptions{
		RateLimit:       c.Backend.RateLimit,
		CircuitBreaker:  c.Backend.CircuitBreaker,
		BreakerFailures: c.Backend.CircuitBreakerFailures,
		BreakerTimeout:  c.Backend.CircuitBreakerTimeout,
	}
}

// Sample renders c as YAML, suitable as a starting config file.
func (c *Config) Sample() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
