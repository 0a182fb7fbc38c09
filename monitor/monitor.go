// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jongio/procscope/backend"
	"github.com/jongio/procscope/config"
	"github.com/jongio/procscope/cpuacct"
	"github.com/jongio/procscope/logutil"
	"github.com/jongio/procscope/procmetrics"
	"github.com/jongio/procscope/procutil"
	"github.com/jongio/procscope/registry"
	"github.com/jongio/procscope/version"
)

const shutdownTimeout = 5 * time.Second

type settings struct {
	backend   backend.Backend
	info      *version.Info
	logWriter io.Writer
}

// Option customizes New.
type Option func(*settings)

// WithBackend replaces the platform backend, e.g. with a backend.Fake.
func WithBackend(b backend.Backend) Option {
	return func(s *settings) { s.backend = b }
}

// WithInfo sets the build information exported by the metrics collector.
func WithInfo(info *version.Info) Option {
	return func(s *settings) { s.info = info }
}

// WithLogWriter sends log output to w instead of stderr.
func WithLogWriter(w io.Writer) Option {
	return func(s *settings) { s.logWriter = w }
}

// Monitor wires a configured backend to a registry, a CPU accountant and a
// metrics collector.
type Monitor struct {
	cfg       *config.Config
	guarded   *backend.Guarded
	registry  *registry.Registry
	cpu       *cpuacct.Accountant
	collector *procmetrics.Collector
	log       *logutil.ComponentLogger
}

// Open loads the config file at path and builds a Monitor from it.
func Open(path string, opts ...Option) (*Monitor, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// New builds a Monitor from cfg. A nil cfg means config.Default(). New
// configures the global logger from cfg.Log.
func New(cfg *config.Config, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := settings{info: version.New("procscope")}
	for _, opt := range opts {
		opt(&s)
	}
	if s.backend == nil {
		s.backend = backend.Default()
	}

	logOpts := cfg.LogOptions()
	logOpts.Writer = s.logWriter
	if err := logutil.Setup(logOpts); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	guarded := backend.NewGuarded(s.backend, cfg.GuardOptions())
	reg := registry.New(guarded)
	cpu := cpuacct.New(guarded)
	m := &Monitor{
		cfg:      cfg,
		guarded:  guarded,
		registry: reg,
		cpu:      cpu,
		collector: procmetrics.NewCollector(reg, guarded, procmetrics.Options{
			Namespace:    cfg.Metrics.Namespace,
			PerProcess:   cfg.Metrics.PerProcess,
			BreakerState: guarded.BreakerState,
			Info:         s.info,
		}),
		log: logutil.NewLogger("monitor"),
	}
	m.log.Debug("monitor ready",
		"profile", cfg.Profile,
		"rateLimit", cfg.Backend.RateLimit,
		"circuitBreaker", cfg.Backend.CircuitBreaker,
		"sweepBudget", cfg.Wait.SweepBudget)
	return m, nil
}

// Config returns the effective configuration.
func (m *Monitor) Config() *config.Config { return m.cfg }

// Backend returns the guarded backend every component reads through.
func (m *Monitor) Backend() backend.Backend { return m.guarded }

// Registry returns the process registry.
func (m *Monitor) Registry() *registry.Registry { return m.registry }

// CPU returns the system CPU accountant.
func (m *Monitor) CPU() *cpuacct.Accountant { return m.cpu }

// Collector returns the Prometheus collector.
func (m *Monitor) Collector() *procmetrics.Collector { return m.collector }

// Process returns a handle for pid.
func (m *Monitor) Process(ctx context.Context, pid int32) (*procutil.Process, error) {
	return procutil.New(ctx, m.guarded, pid)
}

// Processes refreshes the registry and returns every live process.
func (m *Monitor) Processes(ctx context.Context) ([]*procutil.Process, error) {
	return m.registry.Processes(ctx)
}

// WaitProcs is procutil.WaitProcs with the configured sweep budget. Options
// passed by the caller take precedence.
func (m *Monitor) WaitProcs(ctx context.Context, procs []*procutil.Process, opts ...procutil.WaitOption) ([]procutil.Exited, []*procutil.Process, error) {
	all := append([]procutil.WaitOption{procutil.WithSweepBudget(m.cfg.Wait.SweepBudget)}, opts...)
	return procutil.WaitProcs(ctx, procs, all...)
}

// MetricsServer returns an HTTP server exposing /metrics and /health on addr.
func (m *Monitor) MetricsServer(addr string) (*http.Server, error) {
	reg, err := procmetrics.NewRegistry(m.collector)
	if err != nil {
		return nil, fmt.Errorf("failed to register collectors: %w", err)
	}
	return procmetrics.NewServer(addr, reg), nil
}

// Serve runs the metrics server on l until ctx is done, then shuts it down.
func (m *Monitor) Serve(ctx context.Context, l net.Listener) error {
	srv, err := m.MetricsServer(l.Addr().String())
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()
	m.log.Info("serving metrics", "addr", l.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		<-errCh
		return nil
	}
}
