// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

//go:build windows

package backend

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/windows"
)

// waitSlice bounds each WaitForSingleObject call so ctx cancellation is noticed.
const waitSlice = 50 * time.Millisecond

// waitPid waits on a process handle; Windows exposes the exit code of any process
// we can open, child or not.
func waitPid(ctx context.Context, pid int32, timeout time.Duration, exists func() (bool, error)) (*int, error) {
	p := newPoller(pid, timeout)
	h, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		switch {
		case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
			return nil, nil
		case errors.Is(err, windows.ERROR_ACCESS_DENIED):
			return pollExit(ctx, p, exists)
		}
		return nil, err
	}
	defer func() { _ = windows.CloseHandle(h) }()

	for {
		slice := waitSlice
		if p.bounded {
			slice = min(slice, max(time.Until(p.deadline), 0))
		}
		ev, err := windows.WaitForSingleObject(h, uint32(slice.Milliseconds()))
		if err != nil {
			return nil, err
		}
		if ev == windows.WAIT_OBJECT_0 {
			var code uint32
			if err := windows.GetExitCodeProcess(h, &code); err != nil {
				return nil, nil
			}
			c := int(code)
			return &c, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.bounded && !time.Now().Before(p.deadline) {
			return nil, TimeoutExpired(pid, timeout)
		}
	}
}
