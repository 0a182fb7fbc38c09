// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"context"
	"errors"
	"io/fs"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// gopsutil keeps its not-implemented sentinel in an internal package, so it can
// only be recognised by message.
const gopsutilNotImplemented = "not implemented yet"

// Gopsutil is the production Backend. Per-process reads and signals go through
// github.com/shirou/gopsutil/v4; exit-status waits, priority and resource-limit
// changes use golang.org/x/sys directly because gopsutil does not offer them.
type Gopsutil struct{}

var defaultBackend Backend = NewGopsutil()

// NewGopsutil returns a Backend for the local machine.
func NewGopsutil() *Gopsutil {
	return &Gopsutil{}
}

// Default returns the shared local-machine backend.
func Default() Backend {
	return defaultBackend
}

// proc returns a gopsutil handle without the existence probe that
// process.NewProcess performs; the caller's own call reports a vanished pid.
func (g *Gopsutil) proc(pid int32) *process.Process {
	return &process.Process{Pid: pid}
}

// translate maps a gopsutil or OS error onto the Kind taxonomy.
func (g *Gopsutil) translate(ctx context.Context, pid int32, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	switch {
	case errors.Is(err, process.ErrorProcessNotRunning), errors.Is(err, syscall.ESRCH):
		return &Error{Kind: KindNoSuchProcess, Pid: pid, Err: err}
	case errors.Is(err, process.ErrorNotPermitted),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.EACCES):
		return &Error{Kind: KindAccessDenied, Pid: pid, Err: err}
	case errors.Is(err, fs.ErrNotExist):
		// A missing file under /proc usually means the process is gone, but some
		// entries are simply absent on older kernels.
		if exists, perr := process.PidExistsWithContext(ctx, pid); perr == nil && exists {
			return &Error{Kind: KindOther, Pid: pid, Err: err}
		}
		return &Error{Kind: KindNoSuchProcess, Pid: pid, Err: err}
	case err.Error() == gopsutilNotImplemented:
		return &Error{Kind: KindNotImplemented, Pid: pid, Err: err}
	}
	return &Error{Kind: KindOther, Pid: pid, Err: err}
}

// Pids lists every live pid.
func (g *Gopsutil) Pids(ctx context.Context) ([]int32, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, g.translate(ctx, 0, err)
	}
	return pids, nil
}

// ParentMap returns the parent of every live pid. Pids that vanish or deny
// access while the table is read are left out.
func (g *Gopsutil) ParentMap(ctx context.Context) (map[int32]int32, error) {
	pids, err := g.Pids(ctx)
	if err != nil {
		return nil, err
	}
	parents := make(map[int32]int32, len(pids))
	for _, pid := range pids {
		ppid, err := g.Ppid(ctx, pid)
		if err != nil {
			switch KindOf(err) {
			case KindNoSuchProcess, KindAccessDenied:
				continue
			}
			return nil, err
		}
		parents[pid] = ppid
	}
	return parents, nil
}

// PidExists reports whether pid is present in the process table.
func (g *Gopsutil) PidExists(ctx context.Context, pid int32) (bool, error) {
	ok, err := process.PidExistsWithContext(ctx, pid)
	return ok, g.translate(ctx, pid, err)
}

// CreateTime returns the process start time.
func (g *Gopsutil) CreateTime(ctx context.Context, pid int32) (time.Time, error) {
	ms, err := g.proc(pid).CreateTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, g.translate(ctx, pid, err)
	}
	return time.UnixMilli(ms), nil
}

// Ppid returns the parent pid.
func (g *Gopsutil) Ppid(ctx context.Context, pid int32) (int32, error) {
	ppid, err := g.proc(pid).PpidWithContext(ctx)
	return ppid, g.translate(ctx, pid, err)
}

// Name returns the process name as reported by the platform.
func (g *Gopsutil) Name(ctx context.Context, pid int32) (string, error) {
	name, err := g.proc(pid).NameWithContext(ctx)
	return name, g.translate(ctx, pid, err)
}

// Exe returns the executable path, possibly empty.
func (g *Gopsutil) Exe(ctx context.Context, pid int32) (string, error) {
	exe, err := g.proc(pid).ExeWithContext(ctx)
	return exe, g.translate(ctx, pid, err)
}

// Cmdline returns the argument vector.
func (g *Gopsutil) Cmdline(ctx context.Context, pid int32) ([]string, error) {
	args, err := g.proc(pid).CmdlineSliceWithContext(ctx)
	return args, g.translate(ctx, pid, err)
}

// Status returns the first status reported by gopsutil ("running", "sleep", ...).
func (g *Gopsutil) Status(ctx context.Context, pid int32) (string, error) {
	st, err := g.proc(pid).StatusWithContext(ctx)
	if err != nil {
		return "", g.translate(ctx, pid, err)
	}
	if len(st) == 0 {
		return "", nil
	}
	return st[0], nil
}

// Username returns the owning user.
func (g *Gopsutil) Username(ctx context.Context, pid int32) (string, error) {
	u, err := g.proc(pid).UsernameWithContext(ctx)
	return u, g.translate(ctx, pid, err)
}

// Cwd returns the working directory.
func (g *Gopsutil) Cwd(ctx context.Context, pid int32) (string, error) {
	cwd, err := g.proc(pid).CwdWithContext(ctx)
	return cwd, g.translate(ctx, pid, err)
}

// Times returns the process user and system CPU time.
func (g *Gopsutil) Times(ctx context.Context, pid int32) (CPUTimes, error) {
	t, err := g.proc(pid).TimesWithContext(ctx)
	if err != nil {
		return CPUTimes{}, g.translate(ctx, pid, err)
	}
	return fromTimesStat(*t), nil
}

// MemoryInfo returns RSS, VMS and swap usage.
func (g *Gopsutil) MemoryInfo(ctx context.Context, pid int32) (MemoryInfo, error) {
	m, err := g.proc(pid).MemoryInfoWithContext(ctx)
	if err != nil {
		return MemoryInfo{}, g.translate(ctx, pid, err)
	}
	return MemoryInfo{RSS: m.RSS, VMS: m.VMS, Swap: m.Swap}, nil
}

// NumThreads returns the thread count.
func (g *Gopsutil) NumThreads(ctx context.Context, pid int32) (int32, error) {
	n, err := g.proc(pid).NumThreadsWithContext(ctx)
	return n, g.translate(ctx, pid, err)
}

// NumFDs returns the number of open file descriptors.
func (g *Gopsutil) NumFDs(ctx context.Context, pid int32) (int32, error) {
	n, err := g.proc(pid).NumFDsWithContext(ctx)
	return n, g.translate(ctx, pid, err)
}

// IOCounters returns cumulative I/O statistics.
func (g *Gopsutil) IOCounters(ctx context.Context, pid int32) (IOCounters, error) {
	io, err := g.proc(pid).IOCountersWithContext(ctx)
	if err != nil {
		return IOCounters{}, g.translate(ctx, pid, err)
	}
	return IOCounters{
		ReadCount:  io.ReadCount,
		WriteCount: io.WriteCount,
		ReadBytes:  io.ReadBytes,
		WriteBytes: io.WriteBytes,
	}, nil
}

// NumCtxSwitches returns context switch counters.
func (g *Gopsutil) NumCtxSwitches(ctx context.Context, pid int32) (CtxSwitches, error) {
	cs, err := g.proc(pid).NumCtxSwitchesWithContext(ctx)
	if err != nil {
		return CtxSwitches{}, g.translate(ctx, pid, err)
	}
	return CtxSwitches{Voluntary: cs.Voluntary, Involuntary: cs.Involuntary}, nil
}

// Nice returns the scheduling priority.
func (g *Gopsutil) Nice(ctx context.Context, pid int32) (int32, error) {
	n, err := g.proc(pid).NiceWithContext(ctx)
	return n, g.translate(ctx, pid, err)
}

// Rlimit returns the soft/hard limit for resource.
func (g *Gopsutil) Rlimit(ctx context.Context, pid int32, resource int) (Rlimit, error) {
	lim, err := getRlimit(pid, resource)
	return lim, g.translate(ctx, pid, err)
}

// SendSignal delivers sig to pid.
func (g *Gopsutil) SendSignal(ctx context.Context, pid int32, sig syscall.Signal) error {
	return g.translate(ctx, pid, g.proc(pid).SendSignalWithContext(ctx, sig))
}

// Suspend stops the process (SIGSTOP on POSIX, thread suspension on Windows).
func (g *Gopsutil) Suspend(ctx context.Context, pid int32) error {
	return g.translate(ctx, pid, g.proc(pid).SuspendWithContext(ctx))
}

// Resume continues a suspended process.
func (g *Gopsutil) Resume(ctx context.Context, pid int32) error {
	return g.translate(ctx, pid, g.proc(pid).ResumeWithContext(ctx))
}

// Terminate asks the process to exit (SIGTERM on POSIX).
func (g *Gopsutil) Terminate(ctx context.Context, pid int32) error {
	return g.translate(ctx, pid, g.proc(pid).TerminateWithContext(ctx))
}

// Kill forcibly ends the process.
func (g *Gopsutil) Kill(ctx context.Context, pid int32) error {
	return g.translate(ctx, pid, g.proc(pid).KillWithContext(ctx))
}

// SetNice changes the scheduling priority.
func (g *Gopsutil) SetNice(ctx context.Context, pid int32, value int) error {
	return g.translate(ctx, pid, setPriority(pid, value))
}

// SetRlimit changes the soft/hard limit for resource.
func (g *Gopsutil) SetRlimit(ctx context.Context, pid int32, resource int, limit Rlimit) error {
	return g.translate(ctx, pid, setRlimit(pid, resource, limit))
}

// Wait blocks until pid exits. See Controller.Wait.
func (g *Gopsutil) Wait(ctx context.Context, pid int32, timeout time.Duration) (*int, error) {
	code, err := waitPid(ctx, pid, timeout, func() (bool, error) {
		return process.PidExistsWithContext(ctx, pid)
	})
	if err != nil && KindOf(err) == KindOther {
		return nil, g.translate(ctx, pid, err)
	}
	return code, err
}

// SystemTimes returns the aggregate CPU time vector.
func (g *Gopsutil) SystemTimes(ctx context.Context) (CPUTimes, error) {
	ts, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUTimes{}, g.translate(ctx, 0, err)
	}
	if len(ts) == 0 {
		return CPUTimes{}, &Error{Kind: KindOther, Msg: "no aggregate cpu times reported"}
	}
	return fromTimesStat(ts[0]), nil
}

// PerCPUTimes returns one vector per logical CPU, in a stable order.
func (g *Gopsutil) PerCPUTimes(ctx context.Context) ([]CPUTimes, error) {
	ts, err := cpu.TimesWithContext(ctx, true)
	if err != nil {
		return nil, g.translate(ctx, 0, err)
	}
	out := make([]CPUTimes, len(ts))
	for i, t := range ts {
		out[i] = fromTimesStat(t)
	}
	return out, nil
}

// NumCPU returns the logical CPU count.
func (g *Gopsutil) NumCPU(ctx context.Context) (int, error) {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, g.translate(ctx, 0, err)
	}
	return n, nil
}

// TotalMemory returns total physical memory in bytes.
func (g *Gopsutil) TotalMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, g.translate(ctx, 0, err)
	}
	return vm.Total, nil
}

func fromTimesStat(t cpu.TimesStat) CPUTimes {
	return CPUTimes{
		User:      t.User,
		System:    t.System,
		Idle:      t.Idle,
		Nice:      t.Nice,
		Iowait:    t.Iowait,
		Irq:       t.Irq,
		Softirq:   t.Softirq,
		Steal:     t.Steal,
		Guest:     t.Guest,
		GuestNice: t.GuestNice,
	}
}
