// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

//go:build unix

package backend

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// waitPid reaps pid with WNOHANG when it is our child, which yields its exit
// status, and falls back to polling for its disappearance otherwise.
func waitPid(ctx context.Context, pid int32, timeout time.Duration, exists func() (bool, error)) (*int, error) {
	p := newPoller(pid, timeout)
	if pid <= 0 {
		// wait4 treats these as process-group selectors.
		return pollExit(ctx, p, exists)
	}
	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(int(pid), &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			return pollExit(ctx, p, exists)
		case err != nil:
			return nil, err
		case wpid == int(pid):
			code := exitStatus(ws)
			return &code, nil
		}
		if err := p.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

// exitStatus follows the shell convention of reporting death by signal as the
// negated signal number.
func exitStatus(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return -int(ws.Signal())
	}
	return ws.ExitStatus()
}
