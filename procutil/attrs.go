// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jongio/procscope/backend"
	"github.com/jongio/procscope/cpuacct"
)

// Cached attribute names.
const (
	attrName = "name"
	attrExe  = "exe"
)

// truncatedNameLen is the length at which platforms cut process names short
// (TASK_COMM_LEN - 1 on Linux).
const truncatedNameLen = 15

// Ppid returns the parent pid. It is read fresh on every call because a
// process is re-parented when its parent exits.
func (p *Process) Ppid(ctx context.Context) (int32, error) {
	return p.backend.Ppid(ctx, p.pid)
}

// Name returns the process name. Names cut to the platform limit are extended
// from the first command-line argument when it starts with the short name.
func (p *Process) Name(ctx context.Context) (string, error) {
	if v, ok := p.cached(attrName); ok {
		return v.(string), nil
	}
	name, err := p.backend.Name(ctx, p.pid)
	if err != nil {
		return "", err
	}
	if runtime.GOOS != "windows" && len(name) >= truncatedNameLen {
		args, err := p.backend.Cmdline(ctx, p.pid)
		switch {
		case err == nil && len(args) > 0:
			if ext := filepath.Base(args[0]); strings.HasPrefix(ext, name) {
				name = ext
			}
		case err != nil && !backend.IsAccessDenied(err):
			return "", err
		}
	}
	p.store(attrName, name)
	return name, nil
}

// Exe returns the absolute path of the executable. When the platform refuses
// or reports nothing, an absolute executable first argument is used instead.
func (p *Process) Exe(ctx context.Context) (string, error) {
	if v, ok := p.cached(attrExe); ok {
		return v.(string), nil
	}
	exe, err := p.backend.Exe(ctx, p.pid)
	if err != nil {
		if !backend.IsAccessDenied(err) {
			return "", err
		}
		guess := p.guessExe(ctx)
		if guess == "" {
			return "", err
		}
		exe = guess
	} else if exe == "" {
		exe = p.guessExe(ctx)
	}
	p.store(attrExe, exe)
	return exe, nil
}

func (p *Process) guessExe(ctx context.Context) string {
	args, err := p.backend.Cmdline(ctx, p.pid)
	if err != nil || len(args) == 0 {
		return ""
	}
	exe := args[0]
	if !filepath.IsAbs(exe) {
		return ""
	}
	info, err := os.Stat(exe)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return ""
	}
	return exe
}

// Cmdline returns the argument vector.
func (p *Process) Cmdline(ctx context.Context) ([]string, error) {
	return p.backend.Cmdline(ctx, p.pid)
}

// Status returns the scheduler state, for example "running" or "sleep".
func (p *Process) Status(ctx context.Context) (string, error) {
	return p.backend.Status(ctx, p.pid)
}

// Username returns the name of the user owning the process.
func (p *Process) Username(ctx context.Context) (string, error) {
	return p.backend.Username(ctx, p.pid)
}

// Cwd returns the current working directory.
func (p *Process) Cwd(ctx context.Context) (string, error) {
	return p.backend.Cwd(ctx, p.pid)
}

// CPUTimes returns accumulated user and system time.
func (p *Process) CPUTimes(ctx context.Context) (backend.CPUTimes, error) {
	return p.backend.Times(ctx, p.pid)
}

// CPUPercent returns CPU utilization as a percentage of one CPU; a process
// using two full cores reports about 200.
//
// With interval > 0 it samples, sleeps for interval and samples again. With
// interval == 0 it compares against the sample stored by the previous call on
// this handle; the first such call returns 0.
func (p *Process) CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	if interval < 0 {
		return 0, backend.InvalidArgument("interval must not be negative (got %s)", interval)
	}
	numCPU, err := p.backend.NumCPU(ctx)
	if err != nil {
		return 0, err
	}

	var prev *cpuacct.ProcessSample
	if interval > 0 {
		s, err := p.sample(ctx)
		if err != nil {
			return 0, err
		}
		prev = &s
		if err := cpuacct.Sleep(ctx, interval); err != nil {
			return 0, err
		}
	}

	cur, err := p.sample(ctx)
	if err != nil {
		return 0, err
	}
	return p.advance(prev, cur, numCPU), nil
}

// CPUPercentFrom is the non-blocking form of CPUPercent measured against a
// system sample and CPU count the caller already holds, so one system read can
// serve many processes. It shares its baseline with CPUPercent(ctx, 0).
func (p *Process) CPUPercentFrom(ctx context.Context, sys backend.CPUTimes, numCPU int) (float64, error) {
	t, err := p.backend.Times(ctx, p.pid)
	if err != nil {
		return 0, err
	}
	return p.advance(nil, cpuacct.ProcessSample{SystemTotal: sys.Total(), Process: t}, numCPU), nil
}

// advance stores cur as the non-blocking baseline and returns the percent
// since prev, or since the stored baseline when prev is nil.
func (p *Process) advance(prev *cpuacct.ProcessSample, cur cpuacct.ProcessSample, numCPU int) float64 {
	p.mu.Lock()
	if prev == nil {
		prev = p.lastSample
	}
	p.lastSample = &cur
	p.mu.Unlock()

	if prev == nil {
		return 0
	}
	return cpuacct.ProcessPercent(*prev, cur, numCPU, cpuacct.ClampPercents)
}

func (p *Process) sample(ctx context.Context) (cpuacct.ProcessSample, error) {
	sys, err := p.backend.SystemTimes(ctx)
	if err != nil {
		return cpuacct.ProcessSample{}, err
	}
	t, err := p.backend.Times(ctx, p.pid)
	if err != nil {
		return cpuacct.ProcessSample{}, err
	}
	return cpuacct.ProcessSample{SystemTotal: sys.Total(), Process: t}, nil
}

// MemoryInfo returns resident and virtual memory sizes.
func (p *Process) MemoryInfo(ctx context.Context) (backend.MemoryInfo, error) {
	return p.backend.MemoryInfo(ctx, p.pid)
}

// MemoryPercent returns resident memory as a percentage of physical memory.
func (p *Process) MemoryPercent(ctx context.Context) (float64, error) {
	m, err := p.backend.MemoryInfo(ctx, p.pid)
	if err != nil {
		return 0, err
	}
	total, err := p.backend.TotalMemory(ctx)
	if err != nil || total == 0 {
		return 0, err
	}
	return float64(m.RSS) / float64(total) * 100, nil
}

// NumThreads returns the number of threads.
func (p *Process) NumThreads(ctx context.Context) (int32, error) {
	return p.backend.NumThreads(ctx, p.pid)
}

// NumFDs returns the number of open file descriptors.
func (p *Process) NumFDs(ctx context.Context) (int32, error) {
	return p.backend.NumFDs(ctx, p.pid)
}

// IOCounters returns cumulative I/O counters.
func (p *Process) IOCounters(ctx context.Context) (backend.IOCounters, error) {
	return p.backend.IOCounters(ctx, p.pid)
}

// NumCtxSwitches returns voluntary and involuntary context switch counts.
func (p *Process) NumCtxSwitches(ctx context.Context) (backend.CtxSwitches, error) {
	return p.backend.NumCtxSwitches(ctx, p.pid)
}

// Nice returns the scheduling priority.
func (p *Process) Nice(ctx context.Context) (int32, error) {
	return p.backend.Nice(ctx, p.pid)
}

// Rlimit returns the soft and hard limits for resource (one of the
// unix.RLIMIT_* constants).
func (p *Process) Rlimit(ctx context.Context, resource int) (backend.Rlimit, error) {
	if p.pid == 0 {
		return backend.Rlimit{}, backend.InvalidArgument("can't use rlimit on pid 0")
	}
	return p.backend.Rlimit(ctx, p.pid, resource)
}

// Wait blocks until the process exits or ctx is done. The exit code is nil
// when it cannot be known, which includes every process that is not a child of
// the caller and a process this handle already saw terminate.
func (p *Process) Wait(ctx context.Context) (*int, error) {
	return p.wait(ctx, backend.NoTimeout)
}

// WaitTimeout is Wait bounded by timeout. Expiry fails with KindTimeoutExpired;
// a zero timeout checks once without blocking.
func (p *Process) WaitTimeout(ctx context.Context, timeout time.Duration) (*int, error) {
	if timeout < 0 {
		return nil, backend.InvalidArgument("timeout must be a positive duration (got %s)", timeout)
	}
	return p.wait(ctx, timeout)
}

func (p *Process) wait(ctx context.Context, timeout time.Duration) (*int, error) {
	p.mu.Lock()
	gone := p.gone
	p.mu.Unlock()
	if gone {
		return nil, nil
	}
	code, err := p.backend.Wait(ctx, p.pid, timeout)
	if err != nil {
		return nil, err
	}
	p.markGone()
	return code, nil
}
