// Package testutil provides helpers shared by procscope tests: real child
// processes for backend integration tests, log capture, and temporary files.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jongio/procscope/logutil"
)

// StartSleeper starts a child process that sleeps for d and returns it.
// The test is skipped under -short and on Windows. The child is killed and
// reaped, if nobody else reaped it, when the test completes.
//
// Example:
//
//	cmd := testutil.StartSleeper(t, 30*time.Second)
//	p, err := procutil.New(ctx, backend.Default(), int32(cmd.Process.Pid))
func StartSleeper(t *testing.T, d time.Duration) *exec.Cmd {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping process integration test in short mode")
	}
	if runtime.GOOS == "windows" {
		t.Skip("sleep child processes are not available on Windows")
	}

	secs := fmt.Sprintf("%.3f", d.Seconds())
	cmd := exec.Command("sleep", secs)
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start sleeper: %v", err)
	}

	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

// CaptureLogs redirects the package logger to a buffer at the given level for
// the duration of the test. The previous configuration is restored afterwards.
//
// Example:
//
//	logs := testutil.CaptureLogs(t, logutil.LevelDebug)
//	reg.Processes(ctx)
//	assert.Contains(t, logs.String(), "evicted")
func CaptureLogs(t *testing.T, level logutil.Level) *bytes.Buffer {
	t.Helper()

	prev := logutil.GetLevel()
	var buf bytes.Buffer
	if err := logutil.Setup(logutil.Options{Level: level, Format: logutil.FormatText, Writer: &buf}); err != nil {
		t.Fatalf("Failed to set up logger: %v", err)
	}
	t.Cleanup(func() {
		_ = logutil.Setup(logutil.Options{Level: prev, Format: logutil.FormatText, Writer: os.Stderr})
	})
	return &buf
}

// TempDir creates a temporary directory for testing with automatic cleanup.
// The directory is created with secure permissions (0750) and is automatically
// removed when the test completes via t.Cleanup().
func TempDir(t *testing.T) string {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "procscope-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}

	t.Cleanup(func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Logf("Failed to clean up temp directory %s: %v", tmpDir, err)
		}
	})

	return tmpDir
}

// WriteFile writes content to name inside a fresh TempDir and returns the path.
//
// Example:
//
//	path := testutil.WriteFile(t, "procscope.yaml", "log:\n  level: debug\n")
//	cfg, err := config.Load(path)
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(TempDir(t), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}
