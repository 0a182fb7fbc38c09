// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package cpuacct

import (
	"context"
	"sync"
	"time"

	"github.com/jongio/procscope/backend"
)

// window is one independent non-blocking baseline: the aggregate sample and the
// per-CPU samples stored by the previous call.
type window struct {
	mu      sync.Mutex
	last    *backend.CPUTimes
	lastPer []backend.CPUTimes
}

// Accountant turns successive system CPU samples into utilization percentages.
//
// It keeps two windows: one for Percent/PerCPUPercent and one for
// TimesPercent/PerCPUTimesPercent, so callers of one pair never disturb the
// baseline of the other. A call with interval > 0 blocks for that long between
// two samples; interval == 0 compares against the window's previous sample and
// returns zeros on the first call. Each window is safe for concurrent use, but
// concurrent non-blocking callers of the same window share one baseline.
type Accountant struct {
	src      backend.SystemSource
	simple   window
	detailed window
	sleep    func(context.Context, time.Duration) error
}

// New returns an Accountant reading from src.
func New(src backend.SystemSource) *Accountant {
	return &Accountant{src: src, sleep: Sleep}
}

// Percent returns system-wide CPU utilization.
func (a *Accountant) Percent(ctx context.Context, interval time.Duration) (float64, error) {
	t1, t2, ok, err := a.pair(ctx, &a.simple, interval)
	if err != nil || !ok {
		return 0, err
	}
	return BusyPercent(t1, t2), nil
}

// PerCPUPercent returns utilization for every logical CPU, in a stable order.
func (a *Accountant) PerCPUPercent(ctx context.Context, interval time.Duration) ([]float64, error) {
	p1, p2, err := a.perPair(ctx, &a.simple, interval)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(p2))
	if p1 == nil {
		return out, nil
	}
	out = out[:min(len(p1), len(p2))]
	for i := range out {
		out[i] = BusyPercent(p1[i], p2[i])
	}
	return out, nil
}

// TimesPercent returns every time-mode field as a percentage of elapsed time.
func (a *Accountant) TimesPercent(ctx context.Context, interval time.Duration) (backend.CPUTimes, error) {
	t1, t2, ok, err := a.pair(ctx, &a.detailed, interval)
	if err != nil || !ok {
		return backend.CPUTimes{}, err
	}
	return FieldPercents(t1, t2, ClampPercents), nil
}

// PerCPUTimesPercent is TimesPercent for every logical CPU.
func (a *Accountant) PerCPUTimesPercent(ctx context.Context, interval time.Duration) ([]backend.CPUTimes, error) {
	p1, p2, err := a.perPair(ctx, &a.detailed, interval)
	if err != nil {
		return nil, err
	}
	out := make([]backend.CPUTimes, len(p2))
	if p1 == nil {
		return out, nil
	}
	out = out[:min(len(p1), len(p2))]
	for i := range out {
		out[i] = FieldPercents(p1[i], p2[i], ClampPercents)
	}
	return out, nil
}

// pair returns the before/after aggregate samples. ok is false on the first
// non-blocking call, after the baseline has been stored.
func (a *Accountant) pair(ctx context.Context, w *window, interval time.Duration) (t1, t2 backend.CPUTimes, ok bool, err error) {
	if interval < 0 {
		return t1, t2, false, backend.InvalidArgument("interval must not be negative (got %s)", interval)
	}
	if interval > 0 {
		if t1, err = a.src.SystemTimes(ctx); err != nil {
			return t1, t2, false, err
		}
		if err = a.sleep(ctx, interval); err != nil {
			return t1, t2, false, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t2, err = a.src.SystemTimes(ctx); err != nil {
		return t1, t2, false, err
	}
	prev := w.last
	w.last = &t2
	if interval > 0 {
		return t1, t2, true, nil
	}
	if prev == nil {
		return t1, t2, false, nil
	}
	return *prev, t2, true, nil
}

// perPair is pair for per-CPU samples. p1 is nil on the first non-blocking call.
func (a *Accountant) perPair(ctx context.Context, w *window, interval time.Duration) (p1, p2 []backend.CPUTimes, err error) {
	if interval < 0 {
		return nil, nil, backend.InvalidArgument("interval must not be negative (got %s)", interval)
	}
	if interval > 0 {
		if p1, err = a.src.PerCPUTimes(ctx); err != nil {
			return nil, nil, err
		}
		if err = a.sleep(ctx, interval); err != nil {
			return nil, nil, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if p2, err = a.src.PerCPUTimes(ctx); err != nil {
		return nil, nil, err
	}
	prev := w.lastPer
	w.lastPer = p2
	if interval > 0 {
		return p1, p2, nil
	}
	return prev, p2, nil
}

// Sleep blocks for d or until ctx is done. It is the accountant's only
// suspension point and is exported for callers that pace their own samples.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
