// Package registry enumerates live processes while keeping one handle per pid
// across calls, so per-handle state such as the CPU baseline survives between
// enumerations.
// NOTE: This package uses in-memory storage only. Nothing is persisted.
package registry

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/jongio/procscope/backend"
	"github.com/jongio/procscope/logutil"
	"github.com/jongio/procscope/procutil"
)

// Stats counts what enumerations did to the registry since it was created.
type Stats struct {
	Added    uint64 `json:"added"`    // handles built for pids seen for the first time
	Reused   uint64 `json:"reused"`   // cached handles yielded again
	Replaced uint64 `json:"replaced"` // cached handles swapped after pid reuse
	Evicted  uint64 `json:"evicted"`  // handles dropped because their pid vanished
	Skipped  uint64 `json:"skipped"`  // pids that could not be resolved during a walk
}

// Registry maps each live pid to the most recently built handle for it.
// It is safe for concurrent use; the lock is never held while yielding.
type Registry struct {
	backend backend.Backend
	log     *logutil.ComponentLogger

	mu    sync.Mutex
	procs map[int32]*procutil.Process
	stats Stats
}

// New returns an empty registry over b.
func New(b backend.Backend) *Registry {
	return &Registry{
		backend: b,
		log:     logutil.NewLogger("registry"),
		procs:   make(map[int32]*procutil.Process),
	}
}

// Iter refreshes the registry against the live pid set and returns a sequence
// of handles, one per live pid, in ascending pid order.
//
// Listing pids and evicting vanished ones happen before Iter returns; failing
// to list pids is the only error reported. Every other pid is resolved lazily
// while the sequence is walked: pids that vanish in the meantime are skipped,
// cached handles whose pid was reused are replaced, and a cached handle whose
// identity cannot be verified for lack of permission is yielded as is. The walk
// stops early when ctx is done.
func (r *Registry) Iter(ctx context.Context) (iter.Seq[*procutil.Process], error) {
	pids, err := r.backend.Pids(ctx)
	if err != nil {
		return nil, err
	}
	current := make(map[int32]bool, len(pids))
	for _, pid := range pids {
		current[pid] = true
	}

	r.mu.Lock()
	evicted := 0
	for pid := range r.procs {
		if !current[pid] {
			delete(r.procs, pid)
			evicted++
		}
	}
	r.stats.Evicted += uint64(evicted)
	r.mu.Unlock()
	if evicted > 0 {
		r.log.Debug("evicted vanished pids", "count", evicted)
	}

	order := slices.Sorted(maps.Keys(current))
	return func(yield func(*procutil.Process) bool) {
		for _, pid := range order {
			if ctx.Err() != nil {
				return
			}
			p := r.resolve(ctx, pid)
			if p == nil {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}, nil
}

// Processes collects Iter into a slice.
func (r *Registry) Processes(ctx context.Context) ([]*procutil.Process, error) {
	seq, err := r.Iter(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), ctx.Err()
}

// resolve returns the handle to yield for pid, or nil to skip it.
func (r *Registry) resolve(ctx context.Context, pid int32) *procutil.Process {
	r.mu.Lock()
	cached := r.procs[pid]
	r.mu.Unlock()

	if cached != nil {
		running, err := cached.IsRunning(ctx)
		switch {
		case err == nil && running:
			r.count(func(s *Stats) { s.Reused++ })
			return cached
		case backend.IsAccessDenied(err):
			r.count(func(s *Stats) { s.Reused++ })
			return cached
		case err != nil:
			r.log.WithPid(pid).Debug("liveness check failed", "error", err)
			r.count(func(s *Stats) { s.Skipped++ })
			return nil
		}
	}

	fresh, err := procutil.New(ctx, r.backend, pid)
	if err != nil {
		r.mu.Lock()
		if cached != nil && r.procs[pid] == cached {
			delete(r.procs, pid)
			r.stats.Evicted++
		}
		r.stats.Skipped++
		r.mu.Unlock()
		if !backend.IsNoSuchProcess(err) {
			r.log.WithPid(pid).Debug("failed to build process handle", "error", err)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.procs[pid]; existing != nil && existing != cached && existing.Equal(fresh) {
		// Another enumeration registered the same process first.
		r.stats.Reused++
		return existing
	}
	r.procs[pid] = fresh
	if cached != nil {
		r.stats.Replaced++
		r.log.WithPid(pid).Debug("pid reused, handle replaced")
	} else {
		r.stats.Added++
	}
	return fresh
}

func (r *Registry) count(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// Get returns the cached handle for pid without touching the backend.
func (r *Registry) Get(pid int32) (*procutil.Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[pid]
	return p, ok
}

// Len returns the number of cached handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// Stats returns a snapshot of the counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Clear drops every cached handle. Counters are kept.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.procs)
	r.log.Debug("cleared registry")
}
