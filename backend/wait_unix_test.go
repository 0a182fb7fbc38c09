// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

//go:build unix

package backend

import (
	"context"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startChild(t *testing.T, name string, args ...string) int32 {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping child process test in short mode")
	}
	cmd := exec.Command(name, args...)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return int32(cmd.Process.Pid)
}

func TestWaitCollectsChildExitCode(t *testing.T) {
	pid := startChild(t, "sh", "-c", "exit 3")

	code, err := NewGopsutil().Wait(context.Background(), pid, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, code)
	assert.Equal(t, 3, *code)
}

func TestWaitReportsSignalAsNegative(t *testing.T) {
	ctx := context.Background()
	pid := startChild(t, "sleep", "30")
	g := NewGopsutil()

	_, err := g.Wait(ctx, pid, 0)
	require.True(t, IsTimeout(err), "child is still running")

	require.NoError(t, g.Kill(ctx, pid))
	code, err := g.Wait(ctx, pid, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, code)
	assert.Equal(t, -int(syscall.SIGKILL), *code)
}

func TestWaitHonorsContext(t *testing.T) {
	pid := startChild(t, "sleep", "30")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewGopsutil().Wait(ctx, pid, NoTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollerDeadline(t *testing.T) {
	p := newPoller(5, 0)
	err := p.sleep(context.Background())
	assert.True(t, IsTimeout(err))

	unbounded := newPoller(5, NoTimeout)
	require.NoError(t, unbounded.sleep(context.Background()))
	assert.Equal(t, 2*minPollDelay, unbounded.delay)
}
