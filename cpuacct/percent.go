// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package cpuacct

import (
	"math"
	"runtime"

	"github.com/jongio/procscope/backend"
)

// ClampPercents reports whether this platform's counters can regress between
// samples, in which case percentages are forced into [0, 100].
var ClampPercents = runtime.GOOS == "windows"

// BusyPercent returns the share of elapsed time t1→t2 that was not idle,
// rounded to one decimal. A non-increasing busy time or a zero elapsed total
// yields 0.
func BusyPercent(t1, t2 backend.CPUTimes) float64 {
	busy1, busy2 := t1.Busy(), t2.Busy()
	if busy2 <= busy1 {
		return 0
	}
	all := t2.Total() - t1.Total()
	if all <= 0 {
		return 0
	}
	return clamp(round1((busy2-busy1)/all*100), ClampPercents)
}

// FieldPercents expresses each time-mode delta as a percentage of the total
// elapsed time. With clampValues every field is forced into [0, 100].
func FieldPercents(t1, t2 backend.CPUTimes, clampValues bool) backend.CPUTimes {
	f1, f2 := t1.Fields(), t2.Fields()
	all := t2.Total() - t1.Total()
	out := make([]float64, len(f1))
	for i := range f1 {
		if all == 0 {
			continue
		}
		out[i] = clamp(round1(100*(f2[i]-f1[i])/all), clampValues)
	}
	return backend.FromFields(out)
}

// ProcessSample pairs the system-wide total with a process's CPU times, both
// read at (approximately) the same instant.
type ProcessSample struct {
	SystemTotal float64
	Process     backend.CPUTimes
}

// ProcessPercent returns the process's CPU usage between two samples as a
// percentage of one CPU, so a process saturating two of eight cores reports
// about 200. The result is never negative; with capAt100 it never exceeds 100.
func ProcessPercent(prev, cur ProcessSample, numCPU int, capAt100 bool) float64 {
	elapsed := cur.SystemTotal - prev.SystemTotal
	if elapsed <= 0 {
		return 0
	}
	used := (cur.Process.User - prev.Process.User) + (cur.Process.System - prev.Process.System)
	if used <= 0 {
		return 0
	}
	if numCPU < 1 {
		numCPU = 1
	}
	pct := used / elapsed * 100 * float64(numCPU)
	if capAt100 && pct > 100 {
		return 100
	}
	return round1(pct)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v float64, on bool) float64 {
	if !on {
		return v
	}
	return math.Min(math.Max(v, 0), 100)
}
