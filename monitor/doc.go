// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package monitor assembles procscope from configuration.
//
// New applies the log settings, wraps the platform backend in a rate-limited,
// circuit-broken backend.Guarded, and builds the registry, the CPU accountant
// and the Prometheus collector on top of it.
//
// Example Usage:
//
//	m, err := monitor.Open("procscope.yaml", monitor.WithInfo(version.New("myagent")))
//	if err != nil {
//	    return err
//	}
//	procs, err := m.Processes(ctx)
//	...
//	gone, alive, err := m.WaitProcs(ctx, procs, procutil.WithTimeout(3*time.Second))
package monitor
