// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package procmetrics exports procscope state as Prometheus metrics.
//
// A Collector refreshes a registry.Registry on every scrape and reports:
//   - procscope_processes: live processes
//   - procscope_cpu_percent and procscope_cpu_core_percent: utilization since the previous scrape
//   - procscope_registry_handles_total{outcome}: registry Stats counters
//   - procscope_backend_circuit_breaker_state: when a breaker is wired in
//   - procscope_build_info: when version info is set
//   - procscope_process_cpu_percent and procscope_process_resident_memory_bytes,
//     labeled by pid and name, when PerProcess is on
//   - procscope_scrape_errors_total{source}
//
// Example Usage:
//
//	c := procmetrics.NewCollector(reg, b, procmetrics.Options{PerProcess: true})
//	promReg, err := procmetrics.NewRegistry(c)
//	if err != nil {
//	    return err
//	}
//	srv := procmetrics.NewServer(":9256", promReg)
//	return srv.ListenAndServe()
package procmetrics
