// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procutil

import (
	"context"
	"syscall"

	"github.com/jongio/procscope/backend"
)

// Parent returns a handle for the parent process, or nil when there is none:
// the parent already exited, or its pid now belongs to a process started after
// this one.
func (p *Process) Parent(ctx context.Context) (*Process, error) {
	if err := p.ensureRunning(ctx); err != nil {
		return nil, err
	}
	ppid, err := p.Ppid(ctx)
	if err != nil {
		return nil, err
	}
	parent, err := New(ctx, p.backend, ppid)
	if err != nil {
		if backend.IsNoSuchProcess(err) {
			return nil, nil
		}
		return nil, err
	}
	if p.hasCreateTime && parent.hasCreateTime && parent.createTime.After(p.createTime) {
		return nil, nil
	}
	return parent, nil
}

// SendSignal delivers sig to the process.
func (p *Process) SendSignal(ctx context.Context, sig syscall.Signal) error {
	if err := p.ensureRunning(ctx); err != nil {
		return err
	}
	return p.observe(p.backend.SendSignal(ctx, p.pid, sig))
}

// Suspend stops the process.
func (p *Process) Suspend(ctx context.Context) error {
	if err := p.ensureRunning(ctx); err != nil {
		return err
	}
	return p.observe(p.backend.Suspend(ctx, p.pid))
}

// Resume continues a suspended process.
func (p *Process) Resume(ctx context.Context) error {
	if err := p.ensureRunning(ctx); err != nil {
		return err
	}
	return p.observe(p.backend.Resume(ctx, p.pid))
}

// Terminate asks the process to exit (SIGTERM on POSIX).
func (p *Process) Terminate(ctx context.Context) error {
	if err := p.ensureRunning(ctx); err != nil {
		return err
	}
	return p.observe(p.backend.Terminate(ctx, p.pid))
}

// Kill forcibly ends the process.
func (p *Process) Kill(ctx context.Context) error {
	if err := p.ensureRunning(ctx); err != nil {
		return err
	}
	return p.observe(p.backend.Kill(ctx, p.pid))
}

// SetNice changes the scheduling priority.
func (p *Process) SetNice(ctx context.Context, value int) error {
	if err := p.ensureRunning(ctx); err != nil {
		return err
	}
	return p.observe(p.backend.SetNice(ctx, p.pid, value))
}

// SetRlimit changes the soft and hard limits for resource.
func (p *Process) SetRlimit(ctx context.Context, resource int, limit backend.Rlimit) error {
	if p.pid == 0 {
		return backend.InvalidArgument("can't use rlimit on pid 0")
	}
	if err := p.ensureRunning(ctx); err != nil {
		return err
	}
	return p.observe(p.backend.SetRlimit(ctx, p.pid, resource, limit))
}

// observe marks the handle gone when a state change failed because the
// process no longer exists.
func (p *Process) observe(err error) error {
	if backend.IsNoSuchProcess(err) {
		p.markGone()
	}
	return err
}
