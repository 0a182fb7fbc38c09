// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procutil

import (
	"context"
	"time"

	"github.com/jongio/procscope/backend"
)

// DefaultSweepBudget is how long one WaitProcs sweep spends waiting across all
// processes that are still alive.
const DefaultSweepBudget = time.Second

// Exited is a process WaitProcs saw terminate. ExitCode is nil when the code
// could not be collected.
type Exited struct {
	Process  *Process
	ExitCode *int
}

type waitConfig struct {
	timeout  time.Duration
	bounded  bool
	callback func(Exited)
	budget   time.Duration
}

// WaitOption configures WaitProcs.
type WaitOption func(*waitConfig)

// WithTimeout bounds WaitProcs. Without it WaitProcs returns only once every
// process has terminated.
func WithTimeout(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.timeout = d
		c.bounded = true
	}
}

// WithCallback registers fn to run once for every process as soon as it is
// seen to terminate.
func WithCallback(fn func(Exited)) WaitOption {
	return func(c *waitConfig) {
		c.callback = fn
	}
}

// WithSweepBudget overrides DefaultSweepBudget.
func WithSweepBudget(d time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.budget = d
	}
}

// WaitProcs waits for several processes at once and partitions them into
// those that terminated and those still alive.
//
// Each sweep gives every live process an equal share of the sweep budget,
// clipped to whatever is left of the timeout, so one long-lived process cannot
// starve the others. Once the timeout expires one last non-blocking check runs
// over the survivors. Every input handle ends up in exactly one of the two
// results; duplicates are collapsed.
func WaitProcs(ctx context.Context, procs []*Process, opts ...WaitOption) (gone []Exited, alive []*Process, err error) {
	cfg := waitConfig{budget: DefaultSweepBudget}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.bounded && cfg.timeout < 0 {
		return nil, nil, backend.InvalidArgument("timeout must be a positive duration (got %s)", cfg.timeout)
	}
	if cfg.budget <= 0 {
		return nil, nil, backend.InvalidArgument("sweep budget must be positive (got %s)", cfg.budget)
	}

	seen := make(map[*Process]bool, len(procs))
	for _, p := range procs {
		if p != nil && !seen[p] {
			seen[p] = true
			alive = append(alive, p)
		}
	}
	deadline := time.Now().Add(cfg.timeout)
	exited := make(map[*Process]bool)

	check := func(p *Process, timeout time.Duration) error {
		code, err := p.WaitTimeout(ctx, timeout)
		if err != nil {
			if backend.IsTimeout(err) {
				return nil
			}
			return err
		}
		if code == nil {
			// Only a definite "not running" moves the handle to gone.
			if running, err := p.IsRunning(ctx); err != nil || running {
				return nil
			}
		}
		exited[p] = true
		e := Exited{Process: p, ExitCode: code}
		gone = append(gone, e)
		if cfg.callback != nil {
			cfg.callback(e)
		}
		return nil
	}
	prune := func() {
		kept := alive[:0]
		for _, p := range alive {
			if !exited[p] {
				kept = append(kept, p)
			}
		}
		alive = kept
	}

	for len(alive) > 0 {
		if cfg.bounded && time.Until(deadline) <= 0 {
			break
		}
		expired := false
		before := len(gone)
		for _, p := range alive {
			remaining := max(len(alive)-(len(gone)-before), 1)
			slice := cfg.budget / time.Duration(remaining)
			if cfg.bounded {
				left := time.Until(deadline)
				if left <= 0 {
					expired = true
					break
				}
				slice = min(slice, left)
			}
			if err := check(p, slice); err != nil {
				prune()
				return gone, alive, err
			}
		}
		prune()
		if expired {
			break
		}
	}

	for _, p := range alive {
		if err := check(p, 0); err != nil {
			prune()
			return gone, alive, err
		}
	}
	prune()
	return gone, alive, nil
}
