// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"context"
	"time"
)

const (
	minPollDelay = 100 * time.Microsecond
	maxPollDelay = 40 * time.Millisecond
)

// poller paces a wait loop with exponential back-off, bounded by an optional deadline.
type poller struct {
	pid      int32
	timeout  time.Duration
	deadline time.Time
	bounded  bool
	delay    time.Duration
}

func newPoller(pid int32, timeout time.Duration) *poller {
	p := &poller{pid: pid, timeout: timeout, delay: minPollDelay}
	if timeout >= 0 {
		p.bounded = true
		p.deadline = time.Now().Add(timeout)
	}
	return p
}

// sleep waits for the next poll, or fails once the deadline passed or ctx is done.
func (p *poller) sleep(ctx context.Context) error {
	d := p.delay
	if p.bounded {
		remaining := time.Until(p.deadline)
		if remaining <= 0 {
			return TimeoutExpired(p.pid, p.timeout)
		}
		d = min(d, remaining)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	p.delay = min(p.delay*2, maxPollDelay)
	return nil
}

// pollExit waits for a process that is not our child: only disappearance is
// observable, so the exit code is always nil.
func pollExit(ctx context.Context, p *poller, exists func() (bool, error)) (*int, error) {
	for {
		ok, err := exists()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if err := p.sleep(ctx); err != nil {
			return nil, err
		}
	}
}
