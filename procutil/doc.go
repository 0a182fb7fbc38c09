// Package procutil provides process handles that stay correct across pid reuse.
//
// A Process is identified by its pid together with its creation time, so a
// handle never silently starts describing an unrelated process that was given
// the same pid after the original exited. Reads go through a backend.Backend
// (github.com/shirou/gopsutil/v4 in production, backend.Fake in tests).
//
// # Key Features
//
//   - Reuse-proof identity and a monotonic "gone" state (IsRunning)
//   - Lazily cached immutable attributes (Name, Exe) with explicit Invalidate
//   - Signals, suspend/resume, priority and resource limits, each refused with
//     KindNoSuchProcess once the process is gone
//   - Bulk introspection through a fixed attribute table (AsDict)
//   - Descendant resolution that filters reused pids by creation time (Children)
//   - Waiting on many processes at once with a fair per-process budget (WaitProcs)
//
// # Errors
//
// Every failure is a *backend.Error; branch on backend.KindOf(err) or compare
// with the sentinels in package backend:
//
//	if errors.Is(err, backend.ErrNoSuchProcess) {
//	    // process exited
//	}
//
// # Example Usage
//
//	p, err := procutil.New(ctx, backend.Default(), pid)
//	if err != nil {
//	    return err
//	}
//	kids, err := p.Children(ctx, true)
//	if err != nil {
//	    return err
//	}
//	for _, k := range kids {
//	    _ = k.Terminate(ctx)
//	}
//	gone, alive, err := procutil.WaitProcs(ctx, kids, procutil.WithTimeout(3*time.Second))
//	for _, p := range alive {
//	    _ = p.Kill(ctx)
//	}
//
// IsProcessRunning remains available for a quick pid-only existence check.
package procutil
