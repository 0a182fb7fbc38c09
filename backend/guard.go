// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/jongio/procscope/logutil"
)

var guardLog = logutil.NewLogger("backend")

// GuardOptions configures a Guarded backend.
type GuardOptions struct {
	// RateLimit caps bulk calls per second. Zero or less disables limiting.
	RateLimit int
	// CircuitBreaker enables the breaker around bulk calls.
	CircuitBreaker bool
	// BreakerFailures is the minimum number of requests in an interval before the
	// failure ratio can trip the breaker. Negative never trips.
	BreakerFailures int
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
	// OnStateChange is called whenever the breaker changes state.
	OnStateChange func(from, to gobreaker.State)
}

// Guarded wraps a Backend and protects its system-wide calls (Pids, ParentMap,
// SystemTimes, PerCPUTimes, NumCPU, TotalMemory) with a rate limiter and a
// circuit breaker. Per-process calls pass straight through: their failures are
// per-pid facts, not backend health.
type Guarded struct {
	Backend
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps inner with the limiter and breaker described by opts.
func NewGuarded(inner Backend, opts GuardOptions) *Guarded {
	g := &Guarded{Backend: inner}
	if opts.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit*2)
	}
	if opts.CircuitBreaker {
		failures := opts.BreakerFailures
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "procscope-backend",
			MaxRequests: 1,
			Interval:    opts.BreakerTimeout,
			Timeout:     opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if failures < 0 || counts.Requests == 0 {
					return false
				}
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= uint32(failures) && ratio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				// Process-level outcomes and caller cancellation say nothing about
				// whether the platform is healthy.
				switch KindOf(err) {
				case KindNoSuchProcess, KindAccessDenied, KindTimeoutExpired, KindNotImplemented, KindInvalidArgument:
					return true
				}
				return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				guardLog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
				if opts.OnStateChange != nil {
					opts.OnStateChange(from, to)
				}
			},
		})
	}
	return g
}

// BreakerState returns the breaker state, or StateClosed when no breaker is configured.
func (g *Guarded) BreakerState() gobreaker.State {
	if g.breaker == nil {
		return gobreaker.StateClosed
	}
	return g.breaker.State()
}

func guard[T any](ctx context.Context, g *Guarded, op string, fn func() (T, error)) (T, error) {
	var zero T
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("rate limit %s: %w", op, err)
		}
	}
	if g.breaker == nil {
		return fn()
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &Error{Kind: KindOther, Msg: "backend unavailable: " + op, Err: err}
		}
		// The breaker hands back fn's own error unchanged.
		if v, ok := out.(T); ok {
			return v, err
		}
		return zero, err
	}
	return out.(T), nil
}

// Pids lists live pids through the guard.
func (g *Guarded) Pids(ctx context.Context) ([]int32, error) {
	return guard(ctx, g, "pids", func() ([]int32, error) { return g.Backend.Pids(ctx) })
}

// ParentMap forwards to the inner backend when it implements ParentMapper.
func (g *Guarded) ParentMap(ctx context.Context) (map[int32]int32, error) {
	pm, ok := g.Backend.(ParentMapper)
	if !ok {
		return nil, NotImplemented(0, "parent map")
	}
	return guard(ctx, g, "parent map", func() (map[int32]int32, error) { return pm.ParentMap(ctx) })
}

// SystemTimes reads aggregate CPU times through the guard.
func (g *Guarded) SystemTimes(ctx context.Context) (CPUTimes, error) {
	return guard(ctx, g, "system times", func() (CPUTimes, error) { return g.Backend.SystemTimes(ctx) })
}

// PerCPUTimes reads per-CPU times through the guard.
func (g *Guarded) PerCPUTimes(ctx context.Context) ([]CPUTimes, error) {
	return guard(ctx, g, "per-cpu times", func() ([]CPUTimes, error) { return g.Backend.PerCPUTimes(ctx) })
}

// NumCPU reads the logical CPU count through the guard.
func (g *Guarded) NumCPU(ctx context.Context) (int, error) {
	return guard(ctx, g, "cpu count", func() (int, error) { return g.Backend.NumCPU(ctx) })
}

// TotalMemory reads physical memory size through the guard.
func (g *Guarded) TotalMemory(ctx context.Context) (uint64, error) {
	return guard(ctx, g, "total memory", func() (uint64, error) { return g.Backend.TotalMemory(ctx) })
}
