package procmetrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jongio/procscope/backend"
	"github.com/jongio/procscope/cpuacct"
	"github.com/jongio/procscope/registry"
	"github.com/jongio/procscope/version"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newFake() *backend.Fake {
	f := backend.NewFake()
	f.Add(
		backend.FakeProcess{Pid: 1, CreateTime: epoch, Name: "init", Times: backend.CPUTimes{User: 1}, Memory: backend.MemoryInfo{RSS: 4096}},
		backend.FakeProcess{Pid: 2, Ppid: 1, CreateTime: epoch.Add(time.Second), Name: "worker", Memory: backend.MemoryInfo{RSS: 8192}},
	)
	f.SetSystemTimes(backend.CPUTimes{User: 10, Idle: 90})
	return f
}

func newCollector(b backend.Backend, opts Options) *Collector {
	return NewCollector(registry.New(b), b, opts)
}

func TestCollectFirstScrape(t *testing.T) {
	c := newCollector(newFake(), Options{})

	expected := `
# HELP procscope_processes Number of live processes in the registry
# TYPE procscope_processes gauge
procscope_processes 2
# HELP procscope_cpu_percent System-wide CPU utilization since the previous scrape
# TYPE procscope_cpu_percent gauge
procscope_cpu_percent 0
`
	err := promtestutil.CollectAndCompare(c, strings.NewReader(expected), "procscope_processes", "procscope_cpu_percent")
	require.NoError(t, err)
}

func TestCollectUtilizationBetweenScrapes(t *testing.T) {
	f := newFake()
	c := newCollector(f, Options{PerProcess: true})

	promtestutil.CollectAndCount(c)
	f.SetSystemTimes(backend.CPUTimes{User: 30, Idle: 170})
	f.SetTimes(1, backend.CPUTimes{User: 11})

	expected := `
# HELP procscope_cpu_percent System-wide CPU utilization since the previous scrape
# TYPE procscope_cpu_percent gauge
procscope_cpu_percent 20
# HELP procscope_process_cpu_percent Process CPU utilization since the previous scrape
# TYPE procscope_process_cpu_percent gauge
procscope_process_cpu_percent{name="init",pid="1"} 10
procscope_process_cpu_percent{name="worker",pid="2"} 0
# HELP procscope_process_resident_memory_bytes Process resident set size
# TYPE procscope_process_resident_memory_bytes gauge
procscope_process_resident_memory_bytes{name="init",pid="1"} 4096
procscope_process_resident_memory_bytes{name="worker",pid="2"} 8192
# HELP procscope_registry_handles_total Registry handle operations by outcome
# TYPE procscope_registry_handles_total counter
procscope_registry_handles_total{outcome="added"} 2
procscope_registry_handles_total{outcome="evicted"} 0
procscope_registry_handles_total{outcome="replaced"} 0
procscope_registry_handles_total{outcome="reused"} 2
procscope_registry_handles_total{outcome="skipped"} 0
`
	err := promtestutil.CollectAndCompare(c, strings.NewReader(expected),
		"procscope_cpu_percent",
		"procscope_process_cpu_percent",
		"procscope_process_resident_memory_bytes",
		"procscope_registry_handles_total",
	)
	require.NoError(t, err)
}

func TestCollectPerProcessOff(t *testing.T) {
	c := newCollector(newFake(), Options{})

	assert.Equal(t, 0, promtestutil.CollectAndCount(c, "procscope_process_cpu_percent"))
	assert.Equal(t, 0, promtestutil.CollectAndCount(c, "procscope_process_resident_memory_bytes"))
}

func TestCollectSkipsDeniedProcessFields(t *testing.T) {
	f := newFake()
	f.Deny(2, backend.OpMemoryInfo)
	c := newCollector(f, Options{PerProcess: true})

	assert.Equal(t, 1, promtestutil.CollectAndCount(c, "procscope_process_resident_memory_bytes"))
	assert.Equal(t, 0, promtestutil.CollectAndCount(c, "procscope_scrape_errors_total"))
}

func TestCollectBuildInfoAndBreaker(t *testing.T) {
	info := &version.Info{Name: "procscope", Version: "1.2.3", GitCommit: "abc123", BuildDate: "2026-01-01", GoVersion: "go1.26.0"}
	c := newCollector(newFake(), Options{
		Namespace:    "node",
		Info:         info,
		BreakerState: func() gobreaker.State { return gobreaker.StateOpen },
	})

	expected := `
# HELP node_build_info Build information
# TYPE node_build_info gauge
node_build_info{build_date="2026-01-01",commit="abc123",goversion="go1.26.0",name="procscope",version="1.2.3"} 1
# HELP node_backend_circuit_breaker_state Backend circuit breaker state (0=closed, 1=half-open, 2=open)
# TYPE node_backend_circuit_breaker_state gauge
node_backend_circuit_breaker_state 2
`
	err := promtestutil.CollectAndCompare(c, strings.NewReader(expected), "node_build_info", "node_backend_circuit_breaker_state")
	require.NoError(t, err)
}

func TestBreakerValue(t *testing.T) {
	assert.Equal(t, 0.0, breakerValue(gobreaker.StateClosed))
	assert.Equal(t, 1.0, breakerValue(gobreaker.StateHalfOpen))
	assert.Equal(t, 2.0, breakerValue(gobreaker.StateOpen))
}

type failingPids struct {
	backend.Backend
}

func (failingPids) Pids(context.Context) ([]int32, error) {
	return nil, errors.New("listing failed")
}

func TestCollectCountsScrapeErrors(t *testing.T) {
	c := newCollector(failingPids{Backend: newFake()}, Options{})

	assert.Equal(t, 0, promtestutil.CollectAndCount(c, "procscope_processes"))
	promtestutil.CollectAndCount(c)
	assert.Equal(t, 2.0, promtestutil.ToFloat64(c.scrapeErrors.WithLabelValues("processes")))
}

func TestServer(t *testing.T) {
	reg, err := NewRegistry(newCollector(newFake(), Options{}))
	require.NoError(t, err)
	srv := NewServer(":0", reg)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "procscope_processes 2")
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCollectPerProcessUnderRateLimit(t *testing.T) {
	f := backend.NewFake()
	for pid := int32(1); pid <= 60; pid++ {
		f.Add(backend.FakeProcess{Pid: pid, CreateTime: epoch.Add(time.Duration(pid) * time.Second)})
	}
	g := backend.NewGuarded(f, backend.GuardOptions{RateLimit: 10})
	c := newCollector(g, Options{PerProcess: true, Timeout: time.Second})

	start := time.Now()
	for range 2 {
		assert.Equal(t, 60, promtestutil.CollectAndCount(c, "procscope_process_cpu_percent"))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, promtestutil.CollectAndCount(c, "procscope_scrape_errors_total"))
}

func TestCollectorOwnsCPUWindow(t *testing.T) {
	f := newFake()
	c := newCollector(f, Options{})
	other := cpuacct.New(f)

	promtestutil.CollectAndCount(c)
	f.SetSystemTimes(backend.CPUTimes{User: 30, Idle: 170})
	_, err := other.Percent(context.Background(), 0)
	require.NoError(t, err)
	_, err = other.Percent(context.Background(), 0)
	require.NoError(t, err)

	expected := `
# HELP procscope_cpu_percent System-wide CPU utilization since the previous scrape
# TYPE procscope_cpu_percent gauge
procscope_cpu_percent 20
`
	require.NoError(t, promtestutil.CollectAndCompare(c, strings.NewReader(expected), "procscope_cpu_percent"))
}
