// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procmetrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/jongio/procscope/backend"
	"github.com/jongio/procscope/cpuacct"
	"github.com/jongio/procscope/logutil"
	"github.com/jongio/procscope/procutil"
	"github.com/jongio/procscope/registry"
	"github.com/jongio/procscope/version"
)

// DefaultScrapeTimeout bounds the backend calls made by one Collect.
const DefaultScrapeTimeout = 5 * time.Second

// Options configures a Collector.
type Options struct {
	// Namespace prefixes every metric name. Defaults to "procscope".
	Namespace string
	// PerProcess adds per-process CPU and memory series labeled by pid and name.
	PerProcess bool
	// BreakerState reports the backend circuit breaker, if any.
	BreakerState func() gobreaker.State
	// Info is exported as the build_info series when set.
	Info *version.Info
	// Timeout bounds one scrape. Defaults to DefaultScrapeTimeout.
	Timeout time.Duration
}

var buildInfoLabels = []string{"name", "version", "commit", "build_date", "goversion"}

// Collector exports registry, system CPU and optional per-process gauges.
// Every scrape refreshes the registry and reads CPU utilization non-blocking,
// so the first scrape reports 0% and later scrapes report the utilization
// since the previous one. The Collector owns its CPU window; other readers of
// src never move its baseline.
type Collector struct {
	registry *registry.Registry
	src      backend.SystemSource
	acct     *cpuacct.Accountant
	opts     Options
	log      *logutil.ComponentLogger

	processes    *prometheus.Desc
	cpuPercent   *prometheus.Desc
	perCPU       *prometheus.Desc
	registryOps  *prometheus.Desc
	breaker      *prometheus.Desc
	buildInfo    *prometheus.Desc
	procCPU      *prometheus.Desc
	procRSS      *prometheus.Desc
	scrapeErrors *prometheus.CounterVec
}

// NewCollector returns a Collector over reg reading system figures from src.
func NewCollector(reg *registry.Registry, src backend.SystemSource, opts Options) *Collector {
	if opts.Namespace == "" {
		opts.Namespace = "procscope"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultScrapeTimeout
	}
	ns := opts.Namespace
	return &Collector{
		registry: reg,
		src:      src,
		acct:     cpuacct.New(src),
		opts:     opts,
		log:      logutil.NewLogger("procmetrics"),

		processes: prometheus.NewDesc(ns+"_processes",
			"Number of live processes in the registry", nil, nil),
		cpuPercent: prometheus.NewDesc(ns+"_cpu_percent",
			"System-wide CPU utilization since the previous scrape", nil, nil),
		perCPU: prometheus.NewDesc(ns+"_cpu_core_percent",
			"Per-CPU utilization since the previous scrape", []string{"cpu"}, nil),
		registryOps: prometheus.NewDesc(ns+"_registry_handles_total",
			"Registry handle operations by outcome", []string{"outcome"}, nil),
		breaker: prometheus.NewDesc(ns+"_backend_circuit_breaker_state",
			"Backend circuit breaker state (0=closed, 1=half-open, 2=open)", nil, nil),
		buildInfo: prometheus.NewDesc(ns+"_build_info",
			"Build information", buildInfoLabels, nil),
		procCPU: prometheus.NewDesc(ns+"_process_cpu_percent",
			"Process CPU utilization since the previous scrape", []string{"pid", "name"}, nil),
		procRSS: prometheus.NewDesc(ns+"_process_resident_memory_bytes",
			"Process resident set size", []string{"pid", "name"}, nil),
		scrapeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "scrape_errors_total",
			Help:      "Backend errors encountered while scraping",
		}, []string{"source"}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.processes
	ch <- c.cpuPercent
	ch <- c.perCPU
	ch <- c.registryOps
	ch <- c.breaker
	ch <- c.buildInfo
	ch <- c.procCPU
	ch <- c.procRSS
	c.scrapeErrors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()

	if pct, err := c.acct.Percent(ctx, 0); err != nil {
		c.fail("cpu", err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.cpuPercent, prometheus.GaugeValue, pct)
	}

	if per, err := c.acct.PerCPUPercent(ctx, 0); err != nil {
		c.fail("cpu_core", err)
	} else {
		for i, v := range per {
			ch <- prometheus.MustNewConstMetric(c.perCPU, prometheus.GaugeValue, v, strconv.Itoa(i))
		}
	}

	if procs, err := c.registry.Processes(ctx); err != nil {
		c.fail("processes", err)
	} else {
		ch <- prometheus.MustNewConstMetric(c.processes, prometheus.GaugeValue, float64(len(procs)))
		if c.opts.PerProcess {
			c.collectProcesses(ctx, ch, procs)
		}
	}

	c.collectStats(ch)

	if c.opts.BreakerState != nil {
		ch <- prometheus.MustNewConstMetric(c.breaker, prometheus.GaugeValue, breakerValue(c.opts.BreakerState()))
	}

	if c.opts.Info != nil {
		labels := c.opts.Info.Labels()
		values := make([]string, len(buildInfoLabels))
		for i, name := range buildInfoLabels {
			values[i] = labels[name]
		}
		ch <- prometheus.MustNewConstMetric(c.buildInfo, prometheus.GaugeValue, 1, values...)
	}

	c.scrapeErrors.Collect(ch)
}

func (c *Collector) collectStats(ch chan<- prometheus.Metric) {
	s := c.registry.Stats()
	for _, op := range []struct {
		outcome string
		n       uint64
	}{
		{"added", s.Added},
		{"reused", s.Reused},
		{"replaced", s.Replaced},
		{"evicted", s.Evicted},
		{"skipped", s.Skipped},
	} {
		ch <- prometheus.MustNewConstMetric(c.registryOps, prometheus.CounterValue, float64(op.n), op.outcome)
	}
}

// collectProcesses reads the system sample and CPU count once per scrape and
// shares them across every process, keeping a scrape to a fixed number of
// system-wide backend calls.
func (c *Collector) collectProcesses(ctx context.Context, ch chan<- prometheus.Metric, procs []*procutil.Process) {
	sys, err := c.src.SystemTimes(ctx)
	if err != nil {
		c.fail("process", err)
		return
	}
	numCPU, err := c.src.NumCPU(ctx)
	if err != nil {
		c.fail("process", err)
		return
	}
	for _, p := range procs {
		c.collectProcess(ctx, ch, p, sys, numCPU)
	}
}

func (c *Collector) collectProcess(ctx context.Context, ch chan<- prometheus.Metric, p *procutil.Process, sys backend.CPUTimes, numCPU int) {
	pid := strconv.Itoa(int(p.Pid()))
	name, err := p.Name(ctx)
	if err != nil && !expected(err) {
		c.fail("process", err)
	}

	if pct, err := p.CPUPercentFrom(ctx, sys, numCPU); err == nil {
		ch <- prometheus.MustNewConstMetric(c.procCPU, prometheus.GaugeValue, pct, pid, name)
	} else if !expected(err) {
		c.fail("process", err)
	}

	if mem, err := p.MemoryInfo(ctx); err == nil {
		ch <- prometheus.MustNewConstMetric(c.procRSS, prometheus.GaugeValue, float64(mem.RSS), pid, name)
	} else if !expected(err) {
		c.fail("process", err)
	}
}

func (c *Collector) fail(source string, err error) {
	c.scrapeErrors.WithLabelValues(source).Inc()
	c.log.WithOperation("collect").Debug("scrape failed", "source", source, "error", err)
}

// expected reports per-process outcomes that are normal during a scrape: the
// process exited or belongs to another user.
func expected(err error) bool {
	switch backend.KindOf(err) {
	case backend.KindNoSuchProcess, backend.KindAccessDenied:
		return true
	}
	return false
}

func breakerValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
