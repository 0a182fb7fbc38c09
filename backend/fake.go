// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"context"
	"maps"
	"slices"
	"sync"
	"syscall"
	"time"
)

// Operation names understood by Fake.Deny and Fake.Unsupport.
const (
	OpCreateTime     = "create_time"
	OpPpid           = "ppid"
	OpName           = "name"
	OpExe            = "exe"
	OpCmdline        = "cmdline"
	OpStatus         = "status"
	OpUsername       = "username"
	OpCwd            = "cwd"
	OpTimes          = "cpu_times"
	OpMemoryInfo     = "memory_info"
	OpNumThreads     = "num_threads"
	OpNumFDs         = "num_fds"
	OpIOCounters     = "io_counters"
	OpNumCtxSwitches = "num_ctx_switches"
	OpNice           = "nice"
	OpRlimit         = "rlimit"
	OpSignal         = "signal"
	OpSetNice        = "set_nice"
	OpSetRlimit      = "set_rlimit"
)

// FakeProcess is one row of a Fake process table.
type FakeProcess struct {
	Pid         int32
	Ppid        int32
	CreateTime  time.Time
	Name        string
	Exe         string
	Cmdline     []string
	Status      string
	Username    string
	Cwd         string
	Times       CPUTimes
	Memory      MemoryInfo
	NumThreads  int32
	NumFDs      int32
	IO          IOCounters
	CtxSwitches CtxSwitches
	Nice        int32
	Rlimits     map[int]Rlimit
}

// Fake is an in-memory Backend for tests and simulations. It is safe for
// concurrent use. Processes that leave through Exit behave like reaped children
// (their exit code is reported by Wait); processes that leave through Vanish
// behave like foreign processes (Wait reports a nil code).
type Fake struct {
	mu          sync.Mutex
	procs       map[int32]*FakeProcess
	denied      map[int32]map[string]bool
	unsupported map[string]bool
	exited      map[int32]*int
	waiters     map[int32]chan struct{}
	signals     map[int32][]syscall.Signal
	calls       map[string]int
	system      CPUTimes
	perCPU      []CPUTimes
	numCPU      int
	totalMemory uint64
	bulkParents bool
}

// NewFake returns an empty process table on a single-CPU machine.
func NewFake() *Fake {
	return &Fake{
		procs:       make(map[int32]*FakeProcess),
		denied:      make(map[int32]map[string]bool),
		unsupported: make(map[string]bool),
		exited:      make(map[int32]*int),
		waiters:     make(map[int32]chan struct{}),
		signals:     make(map[int32][]syscall.Signal),
		calls:       make(map[string]int),
		numCPU:      1,
	}
}

// Add inserts or replaces processes. Replacing a pid with a different
// CreateTime simulates pid reuse.
func (f *Fake) Add(procs ...FakeProcess) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range procs {
		cp := p
		cp.Cmdline = slices.Clone(p.Cmdline)
		cp.Rlimits = maps.Clone(p.Rlimits)
		if cp.Status == "" {
			cp.Status = "running"
		}
		f.procs[p.Pid] = &cp
		delete(f.exited, p.Pid)
	}
}

// Exit removes pid from the table as a child that exited with code.
func (f *Fake) Exit(pid int32, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(pid, &code)
}

// Vanish removes pid from the table without a known exit code.
func (f *Fake) Vanish(pid int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(pid, nil)
}

func (f *Fake) removeLocked(pid int32, code *int) {
	delete(f.procs, pid)
	f.exited[pid] = code
	if ch, ok := f.waiters[pid]; ok {
		close(ch)
		delete(f.waiters, pid)
	}
}

// Deny makes the listed operations on pid fail with KindAccessDenied.
func (f *Fake) Deny(pid int32, ops ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied[pid] == nil {
		f.denied[pid] = make(map[string]bool)
	}
	for _, op := range ops {
		f.denied[pid][op] = true
	}
}

// Unsupport makes the listed operations fail with KindNotImplemented for every pid.
func (f *Fake) Unsupport(ops ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range ops {
		f.unsupported[op] = true
	}
}

// SetTimes replaces the CPU times of pid.
func (f *Fake) SetTimes(pid int32, t CPUTimes) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.procs[pid]; ok {
		p.Times = t
	}
}

// SetSystemTimes replaces the aggregate CPU time vector.
func (f *Fake) SetSystemTimes(t CPUTimes) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system = t
}

// SetPerCPUTimes replaces the per-CPU vectors and the CPU count.
func (f *Fake) SetPerCPUTimes(ts []CPUTimes) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perCPU = slices.Clone(ts)
	if len(ts) > 0 {
		f.numCPU = len(ts)
	}
}

// SetNumCPU sets the logical CPU count.
func (f *Fake) SetNumCPU(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.numCPU = n
}

// SetTotalMemory sets physical memory size in bytes.
func (f *Fake) SetTotalMemory(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalMemory = n
}

// SetBulkParents toggles support for ParentMap.
func (f *Fake) SetBulkParents(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkParents = on
}

// Calls returns how many times op was invoked. Ops are the Op* constants plus
// "pids", "pid_exists", "wait", "parent_map", "system_times" and "per_cpu_times".
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Signals returns the signals delivered to pid, in order.
func (f *Fake) Signals(pid int32) []syscall.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.signals[pid])
}

// Get returns a copy of pid's row.
func (f *Fake) Get(pid int32) (FakeProcess, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[pid]
	if !ok {
		return FakeProcess{}, false
	}
	return *p, true
}

// lookup counts the call and resolves pid, applying injected failures.
// Caller must hold f.mu.
func (f *Fake) lookupLocked(op string, pid int32) (*FakeProcess, error) {
	f.calls[op]++
	p, ok := f.procs[pid]
	if !ok {
		return nil, NoSuchProcess(pid, "", "")
	}
	if f.unsupported[op] {
		return nil, NotImplemented(pid, op)
	}
	if f.denied[pid][op] {
		return nil, AccessDenied(pid, p.Name, "")
	}
	return p, nil
}

func read[T any](f *Fake, op string, pid int32, get func(*FakeProcess) T) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.lookupLocked(op, pid)
	if err != nil {
		var zero T
		return zero, err
	}
	return get(p), nil
}

// Pids lists live pids in ascending order.
func (f *Fake) Pids(context.Context) ([]int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["pids"]++
	return slices.Sorted(maps.Keys(f.procs)), nil
}

// PidExists reports whether pid is in the table.
func (f *Fake) PidExists(_ context.Context, pid int32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["pid_exists"]++
	_, ok := f.procs[pid]
	return ok, nil
}

// ParentMap returns pid → ppid for every row when bulk parents are enabled.
func (f *Fake) ParentMap(context.Context) (map[int32]int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["parent_map"]++
	if !f.bulkParents {
		return nil, NotImplemented(0, "parent map")
	}
	out := make(map[int32]int32, len(f.procs))
	for pid, p := range f.procs {
		out[pid] = p.Ppid
	}
	return out, nil
}

func (f *Fake) CreateTime(_ context.Context, pid int32) (time.Time, error) {
	return read(f, OpCreateTime, pid, func(p *FakeProcess) time.Time { return p.CreateTime })
}

func (f *Fake) Ppid(_ context.Context, pid int32) (int32, error) {
	return read(f, OpPpid, pid, func(p *FakeProcess) int32 { return p.Ppid })
}

func (f *Fake) Name(_ context.Context, pid int32) (string, error) {
	return read(f, OpName, pid, func(p *FakeProcess) string { return p.Name })
}

func (f *Fake) Exe(_ context.Context, pid int32) (string, error) {
	return read(f, OpExe, pid, func(p *FakeProcess) string { return p.Exe })
}

func (f *Fake) Cmdline(_ context.Context, pid int32) ([]string, error) {
	return read(f, OpCmdline, pid, func(p *FakeProcess) []string { return slices.Clone(p.Cmdline) })
}

func (f *Fake) Status(_ context.Context, pid int32) (string, error) {
	return read(f, OpStatus, pid, func(p *FakeProcess) string { return p.Status })
}

func (f *Fake) Username(_ context.Context, pid int32) (string, error) {
	return read(f, OpUsername, pid, func(p *FakeProcess) string { return p.Username })
}

func (f *Fake) Cwd(_ context.Context, pid int32) (string, error) {
	return read(f, OpCwd, pid, func(p *FakeProcess) string { return p.Cwd })
}

func (f *Fake) Times(_ context.Context, pid int32) (CPUTimes, error) {
	return read(f, OpTimes, pid, func(p *FakeProcess) CPUTimes { return p.Times })
}

func (f *Fake) MemoryInfo(_ context.Context, pid int32) (MemoryInfo, error) {
	return read(f, OpMemoryInfo, pid, func(p *FakeProcess) MemoryInfo { return p.Memory })
}

func (f *Fake) NumThreads(_ context.Context, pid int32) (int32, error) {
	return read(f, OpNumThreads, pid, func(p *FakeProcess) int32 { return p.NumThreads })
}

func (f *Fake) NumFDs(_ context.Context, pid int32) (int32, error) {
	return read(f, OpNumFDs, pid, func(p *FakeProcess) int32 { return p.NumFDs })
}

func (f *Fake) IOCounters(_ context.Context, pid int32) (IOCounters, error) {
	return read(f, OpIOCounters, pid, func(p *FakeProcess) IOCounters { return p.IO })
}

func (f *Fake) NumCtxSwitches(_ context.Context, pid int32) (CtxSwitches, error) {
	return read(f, OpNumCtxSwitches, pid, func(p *FakeProcess) CtxSwitches { return p.CtxSwitches })
}

func (f *Fake) Nice(_ context.Context, pid int32) (int32, error) {
	return read(f, OpNice, pid, func(p *FakeProcess) int32 { return p.Nice })
}

func (f *Fake) Rlimit(_ context.Context, pid int32, resource int) (Rlimit, error) {
	return read(f, OpRlimit, pid, func(p *FakeProcess) Rlimit { return p.Rlimits[resource] })
}

// SendSignal records sig. SIGKILL and SIGTERM end the process with the negated
// signal number as exit code; SIGSTOP and SIGCONT toggle its status.
func (f *Fake) SendSignal(_ context.Context, pid int32, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.lookupLocked(OpSignal, pid)
	if err != nil {
		return err
	}
	f.signals[pid] = append(f.signals[pid], sig)
	switch sig {
	case syscall.SIGKILL, syscall.SIGTERM:
		code := -int(sig)
		f.removeLocked(pid, &code)
	case sigStop:
		p.Status = "stopped"
	case sigCont:
		p.Status = "running"
	}
	return nil
}

func (f *Fake) Suspend(ctx context.Context, pid int32) error {
	return f.SendSignal(ctx, pid, sigStop)
}

func (f *Fake) Resume(ctx context.Context, pid int32) error {
	return f.SendSignal(ctx, pid, sigCont)
}

func (f *Fake) Terminate(ctx context.Context, pid int32) error {
	return f.SendSignal(ctx, pid, syscall.SIGTERM)
}

func (f *Fake) Kill(ctx context.Context, pid int32) error {
	return f.SendSignal(ctx, pid, syscall.SIGKILL)
}

func (f *Fake) SetNice(_ context.Context, pid int32, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.lookupLocked(OpSetNice, pid)
	if err != nil {
		return err
	}
	p.Nice = int32(value)
	return nil
}

func (f *Fake) SetRlimit(_ context.Context, pid int32, resource int, limit Rlimit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.lookupLocked(OpSetRlimit, pid)
	if err != nil {
		return err
	}
	if p.Rlimits == nil {
		p.Rlimits = make(map[int]Rlimit)
	}
	p.Rlimits[resource] = limit
	return nil
}

// Wait blocks until Exit, Vanish or a terminating signal removes pid.
func (f *Fake) Wait(ctx context.Context, pid int32, timeout time.Duration) (*int, error) {
	f.mu.Lock()
	f.calls["wait"]++
	if _, live := f.procs[pid]; !live {
		code := copyCode(f.exited[pid])
		f.mu.Unlock()
		return code, nil
	}
	ch, ok := f.waiters[pid]
	if !ok {
		ch = make(chan struct{})
		f.waiters[pid] = ch
	}
	f.mu.Unlock()

	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-ch:
		f.mu.Lock()
		defer f.mu.Unlock()
		return copyCode(f.exited[pid]), nil
	case <-expired:
		return nil, TimeoutExpired(pid, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func copyCode(code *int) *int {
	if code == nil {
		return nil
	}
	c := *code
	return &c
}

func (f *Fake) SystemTimes(context.Context) (CPUTimes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["system_times"]++
	return f.system, nil
}

func (f *Fake) PerCPUTimes(context.Context) ([]CPUTimes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["per_cpu_times"]++
	return slices.Clone(f.perCPU), nil
}

func (f *Fake) NumCPU(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numCPU, nil
}

func (f *Fake) TotalMemory(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalMemory, nil
}
