// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"context"
	"syscall"
	"time"
)

// NoTimeout passed to Controller.Wait waits until the process exits or ctx is done.
const NoTimeout time.Duration = -1

// CPUTimes is a per-mode CPU time vector in seconds. For a process only User and
// System are meaningful; system-wide samples fill whatever the platform reports.
type CPUTimes struct {
	User      float64 `json:"user"`
	System    float64 `json:"system"`
	Idle      float64 `json:"idle"`
	Nice      float64 `json:"nice"`
	Iowait    float64 `json:"iowait"`
	Irq       float64 `json:"irq"`
	Softirq   float64 `json:"softirq"`
	Steal     float64 `json:"steal"`
	Guest     float64 `json:"guest"`
	GuestNice float64 `json:"guestNice"`
}

// CPUTimeFields lists the CPUTimes field names in the order used by Fields.
var CPUTimeFields = []string{
	"user", "system", "idle", "nice", "iowait",
	"irq", "softirq", "steal", "guest", "guest_nice",
}

// Fields returns the vector in CPUTimeFields order.
func (t CPUTimes) Fields() []float64 {
	return []float64{
		t.User, t.System, t.Idle, t.Nice, t.Iowait,
		t.Irq, t.Softirq, t.Steal, t.Guest, t.GuestNice,
	}
}

// FromFields is the inverse of Fields. Missing trailing values stay zero.
func FromFields(v []float64) CPUTimes {
	var f [10]float64
	copy(f[:], v)
	return CPUTimes{
		User: f[0], System: f[1], Idle: f[2], Nice: f[3], Iowait: f[4],
		Irq: f[5], Softirq: f[6], Steal: f[7], Guest: f[8], GuestNice: f[9],
	}
}

// Total is the sum of every time-mode bucket.
func (t CPUTimes) Total() float64 {
	var sum float64
	for _, v := range t.Fields() {
		sum += v
	}
	return sum
}

// Busy is Total minus Idle.
func (t CPUTimes) Busy() float64 {
	return t.Total() - t.Idle
}

// MemoryInfo is the resident and virtual memory of a process, in bytes.
type MemoryInfo struct {
	RSS  uint64 `json:"rss"`
	VMS  uint64 `json:"vms"`
	Swap uint64 `json:"swap"`
}

// IOCounters are cumulative process I/O statistics.
type IOCounters struct {
	ReadCount  uint64 `json:"readCount"`
	WriteCount uint64 `json:"writeCount"`
	ReadBytes  uint64 `json:"readBytes"`
	WriteBytes uint64 `json:"writeBytes"`
}

// CtxSwitches counts voluntary and involuntary context switches.
type CtxSwitches struct {
	Voluntary   int64 `json:"voluntary"`
	Involuntary int64 `json:"involuntary"`
}

// Rlimit is a soft/hard resource limit pair.
type Rlimit struct {
	Soft uint64 `json:"soft"`
	Hard uint64 `json:"hard"`
}

// ProcessSource reads per-process attributes. Every method fails with a
// KindNoSuchProcess or KindAccessDenied *Error when that is what the platform says.
type ProcessSource interface {
	Pids(ctx context.Context) ([]int32, error)
	PidExists(ctx context.Context, pid int32) (bool, error)
	CreateTime(ctx context.Context, pid int32) (time.Time, error)
	Ppid(ctx context.Context, pid int32) (int32, error)
	Name(ctx context.Context, pid int32) (string, error)
	Exe(ctx context.Context, pid int32) (string, error)
	Cmdline(ctx context.Context, pid int32) ([]string, error)
	Status(ctx context.Context, pid int32) (string, error)
	Username(ctx context.Context, pid int32) (string, error)
	Cwd(ctx context.Context, pid int32) (string, error)
	Times(ctx context.Context, pid int32) (CPUTimes, error)
	MemoryInfo(ctx context.Context, pid int32) (MemoryInfo, error)
	NumThreads(ctx context.Context, pid int32) (int32, error)
	NumFDs(ctx context.Context, pid int32) (int32, error)
	IOCounters(ctx context.Context, pid int32) (IOCounters, error)
	NumCtxSwitches(ctx context.Context, pid int32) (CtxSwitches, error)
	Nice(ctx context.Context, pid int32) (int32, error)
	Rlimit(ctx context.Context, pid int32, resource int) (Rlimit, error)
}

// Controller mutates process state and waits for exit.
type Controller interface {
	SendSignal(ctx context.Context, pid int32, sig syscall.Signal) error
	Suspend(ctx context.Context, pid int32) error
	Resume(ctx context.Context, pid int32) error
	Terminate(ctx context.Context, pid int32) error
	Kill(ctx context.Context, pid int32) error
	SetNice(ctx context.Context, pid int32, value int) error
	SetRlimit(ctx context.Context, pid int32, resource int, limit Rlimit) error

	// Wait blocks until pid exits, timeout elapses or ctx is done. The exit code is
	// nil when it cannot be known (the process is not a child of the caller or had
	// already been reaped). A negative timeout waits without bound. Expiry yields a
	// KindTimeoutExpired error.
	Wait(ctx context.Context, pid int32, timeout time.Duration) (*int, error)
}

// SystemSource reads system-wide aggregates.
type SystemSource interface {
	SystemTimes(ctx context.Context) (CPUTimes, error)
	PerCPUTimes(ctx context.Context) ([]CPUTimes, error)
	NumCPU(ctx context.Context) (int, error)
	TotalMemory(ctx context.Context) (uint64, error)
}

// Backend is the full platform contract consumed by procutil, registry and cpuacct.
type Backend interface {
	ProcessSource
	Controller
	SystemSource
}

// ParentMapper is implemented by backends that can return every pid's parent in
// one call. Implementations may still report KindNotImplemented at run time.
type ParentMapper interface {
	ParentMap(ctx context.Context) (map[int32]int32, error)
}
