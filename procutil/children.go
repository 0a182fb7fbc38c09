// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procutil

import (
	"context"
	"maps"
	"slices"

	"github.com/jongio/procscope/backend"
)

// Children returns the processes started by this one. With recursive set it
// returns every descendant in breadth-first order.
//
// A pid is accepted as a child only if it was created no earlier than the
// parent it was resolved against, so a pid reused after the real child exited
// is not mistaken for it. A node that vanishes or fails that check is dropped
// together with everything below it.
func (p *Process) Children(ctx context.Context, recursive bool) ([]*Process, error) {
	if err := p.ensureRunning(ctx); err != nil {
		return nil, err
	}
	kids, err := p.childTable(ctx)
	if err != nil {
		return nil, err
	}

	var out []*Process
	visited := map[int32]bool{p.pid: true}
	queue := []*Process{p}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, pid := range kids[parent.pid] {
			if visited[pid] {
				continue
			}
			visited[pid] = true
			child, err := New(ctx, p.backend, pid)
			if err != nil {
				if backend.IsNoSuchProcess(err) {
					continue
				}
				return nil, err
			}
			if !bornAfter(parent, child) {
				continue
			}
			out = append(out, child)
			if recursive {
				queue = append(queue, child)
			}
		}
	}
	return out, nil
}

// childTable maps each ppid to its child pids in ascending order.
func (p *Process) childTable(ctx context.Context) (map[int32][]int32, error) {
	parents, err := p.parentMap(ctx)
	if err != nil {
		return nil, err
	}
	kids := make(map[int32][]int32)
	for _, pid := range slices.Sorted(maps.Keys(parents)) {
		ppid := parents[pid]
		kids[ppid] = append(kids[ppid], pid)
	}
	return kids, nil
}

func (p *Process) parentMap(ctx context.Context) (map[int32]int32, error) {
	if pm, ok := p.backend.(backend.ParentMapper); ok {
		parents, err := pm.ParentMap(ctx)
		if err == nil {
			return parents, nil
		}
		if !backend.IsNotImplemented(err) {
			return nil, err
		}
	}

	pids, err := p.backend.Pids(ctx)
	if err != nil {
		return nil, err
	}
	parents := make(map[int32]int32, len(pids))
	for _, pid := range pids {
		ppid, err := p.backend.Ppid(ctx, pid)
		if err != nil {
			switch backend.KindOf(err) {
			case backend.KindNoSuchProcess, backend.KindAccessDenied:
				continue
			}
			return nil, err
		}
		parents[pid] = ppid
	}
	return parents, nil
}

// bornAfter reports whether child could have been started by parent. Unknown
// creation times are given the benefit of the doubt.
func bornAfter(parent, child *Process) bool {
	if !parent.hasCreateTime || !child.hasCreateTime {
		return true
	}
	return !child.createTime.Before(parent.createTime)
}
