// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jongio/procscope/backend"
	"github.com/jongio/procscope/cpuacct"
)

// Identity is the reuse-proof identity of a process instance: the pid alone can
// be recycled by the OS, the (pid, creation time) pair cannot. CreateTime is the
// zero time when it could not be read. Identity is comparable and safe to use
// as a map key.
type Identity struct {
	Pid        int32
	CreateTime time.Time
}

// Process is a handle to one OS process instance across its lifetime.
//
// The identity block (pid and creation time) is fixed when the handle is built.
// Immutable attributes (name, executable) are cached on first read and only
// refreshed after an explicit Invalidate. Most reads go straight to the backend
// and may describe a different process if the pid was reused in the meantime;
// Parent, Children and every state-changing method first confirm the handle
// still denotes a live process and fail with KindNoSuchProcess otherwise.
//
// A Process is safe for concurrent use.
type Process struct {
	pid           int32
	createTime    time.Time
	hasCreateTime bool
	backend       backend.Backend

	mu         sync.Mutex
	gone       bool
	cache      map[string]any
	lastSample *cpuacct.ProcessSample
}

// New returns a handle for pid, reading and caching its creation time.
//
// It fails with KindNoSuchProcess when pid does not exist. If the creation time
// cannot be read for lack of permission the handle is still returned and its
// identity degrades to the pid alone.
func New(ctx context.Context, b backend.Backend, pid int32) (*Process, error) {
	if pid < 0 {
		return nil, backend.InvalidArgument("pid must be a positive integer (got %d)", pid)
	}
	p := &Process{
		pid:     pid,
		backend: b,
		cache:   make(map[string]any),
	}
	ct, err := b.CreateTime(ctx, pid)
	switch {
	case err == nil:
		p.createTime = ct
		p.hasCreateTime = true
	case backend.IsAccessDenied(err):
	case backend.IsNoSuchProcess(err):
		return nil, backend.NoSuchProcess(pid, "", fmt.Sprintf("no process found with pid %d", pid))
	default:
		return nil, fmt.Errorf("failed to read creation time of pid %d: %w", pid, err)
	}
	return p, nil
}

// Self returns a handle for the calling process.
func Self(ctx context.Context, b backend.Backend) (*Process, error) {
	return New(ctx, b, int32(os.Getpid()))
}

// Pid returns the process id.
func (p *Process) Pid() int32 {
	return p.pid
}

// CreateTime returns the cached creation time and whether it is known.
func (p *Process) CreateTime() (time.Time, bool) {
	return p.createTime, p.hasCreateTime
}

// Identity returns the (pid, creation time) pair.
func (p *Process) Identity() Identity {
	return Identity{Pid: p.pid, CreateTime: p.createTime}
}

// Equal reports whether p and o denote the same process instance.
func (p *Process) Equal(o *Process) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Identity() == o.Identity()
}

// String describes the handle without touching the backend.
func (p *Process) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone {
		return fmt.Sprintf("pid=%d (terminated)", p.pid)
	}
	if name, ok := p.cache[attrName].(string); ok {
		return fmt.Sprintf("pid=%d, name=%q", p.pid, name)
	}
	return fmt.Sprintf("pid=%d", p.pid)
}

// IsRunning reports whether the process this handle was built for still exists.
//
// Once it returns false it always returns false, even if the OS later hands the
// same pid to a new process. When the handle knows its creation time but the
// current occupant of the pid does not reveal one, identity cannot be verified:
// the result is false with a KindAccessDenied error and the handle is not
// marked gone.
func (p *Process) IsRunning(ctx context.Context) (bool, error) {
	p.mu.Lock()
	gone := p.gone
	p.mu.Unlock()
	if gone {
		return false, nil
	}

	current, err := New(ctx, p.backend, p.pid)
	if err != nil {
		if backend.IsNoSuchProcess(err) {
			p.markGone()
			return false, nil
		}
		return false, err
	}
	if p.hasCreateTime && !current.hasCreateTime {
		return false, backend.AccessDenied(p.pid, p.cachedName(), "cannot verify process identity")
	}
	if !p.Equal(current) {
		p.markGone()
		return false, nil
	}
	return true, nil
}

// ensureRunning is the guard called first by every operation that must not act
// on a reused pid.
func (p *Process) ensureRunning(ctx context.Context) error {
	running, err := p.IsRunning(ctx)
	if err != nil {
		return err
	}
	if !running {
		return backend.NoSuchProcess(p.pid, p.cachedName(), "process no longer exists or its pid was reused")
	}
	return nil
}

func (p *Process) markGone() {
	p.mu.Lock()
	p.gone = true
	p.mu.Unlock()
}

// Invalidate drops cached attributes so the next read refetches them. With no
// names every cached attribute is dropped.
func (p *Process) Invalidate(names ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(names) == 0 {
		clear(p.cache)
		return
	}
	for _, n := range names {
		delete(p.cache, n)
	}
}

func (p *Process) cached(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.cache[name]
	return v, ok
}

func (p *Process) store(name string, v any) {
	p.mu.Lock()
	p.cache[name] = v
	p.mu.Unlock()
}

func (p *Process) cachedName() string {
	if v, ok := p.cached(attrName); ok {
		return v.(string)
	}
	return ""
}
