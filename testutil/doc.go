// Package testutil provides common testing utilities for procscope.
//
// This package includes helpers for:
//   - Starting real child processes for backend integration tests (StartSleeper)
//   - Capturing log output (CaptureLogs)
//   - Creating temporary directories and files with automatic cleanup (TempDir, WriteFile)
//
// All functions use t.Helper() for proper test line reporting.
//
// Example usage:
//
//	func TestWaitOnRealChild(t *testing.T) {
//	    cmd := testutil.StartSleeper(t, 50*time.Millisecond)
//	    p, err := procutil.New(ctx, backend.Default(), int32(cmd.Process.Pid))
//	    require.NoError(t, err)
//	    code, err := p.Wait(ctx)
//	    require.NoError(t, err)
//	}
package testutil
