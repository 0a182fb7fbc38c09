// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package cpuacct computes CPU utilization from successive CPU time samples.
//
// Utilization is always a ratio of deltas between two samples. In blocking mode
// (interval > 0) both samples are taken within the call; in non-blocking mode
// (interval == 0) the previous call's sample is the baseline, so the first call
// for a given window returns 0 and only records the baseline.
//
//	acct := cpuacct.New(backend.Default())
//	_, _ = acct.Percent(ctx, 0)           // 0, records baseline
//	time.Sleep(time.Second)
//	pct, _ := acct.Percent(ctx, 0)        // utilization over the last second
//
// Per-process utilization uses the same math through ProcessPercent and is
// exposed by procutil.Process.CPUPercent.
package cpuacct
