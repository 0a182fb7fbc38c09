// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procutil

import (
	"context"
	"os"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jongio/procscope/backend"
	"github.com/jongio/procscope/testutil"
)

func TestIsProcessRunningCurrentProcess(t *testing.T) {
	pid := os.Getpid()
	for i := 0; i < 3; i++ {
		assert.True(t, IsProcessRunning(pid), "iteration %d", i)
	}
}

func TestIsProcessRunningInvalidPID(t *testing.T) {
	tests := []struct {
		name string
		pid  int
	}{
		{"zero pid", 0},
		{"negative pid", -1},
		{"very negative pid", -999},
		{"min int32", -2147483648},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, IsProcessRunning(tt.pid))
		})
	}
}

func TestIsProcessRunningNonExistentPID(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("high pids may be valid on Windows")
	}
	assert.False(t, IsProcessRunning(2147483647))
}

func TestIsProcessRunningRealProcess(t *testing.T) {
	cmd := testutil.StartSleeper(t, 5*time.Second)
	pid := cmd.Process.Pid

	assert.True(t, IsProcessRunning(pid))

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	assert.Eventually(t, func() bool { return !IsProcessRunning(pid) }, 2*time.Second, 20*time.Millisecond)
}

func TestRealChildLifecycle(t *testing.T) {
	ctx := context.Background()
	cmd := testutil.StartSleeper(t, 30*time.Second)
	b := backend.Default()

	p, err := New(ctx, b, int32(cmd.Process.Pid))
	require.NoError(t, err)
	_, ok := p.CreateTime()
	assert.True(t, ok)

	name, err := p.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sleep", name)

	self, err := Self(ctx, b)
	require.NoError(t, err)
	kids, err := self.Children(ctx, false)
	require.NoError(t, err)
	assert.Contains(t, pidsOf(kids), p.Pid())

	parent, err := p.Parent(ctx)
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.True(t, parent.Equal(self))

	require.NoError(t, p.Kill(ctx))
	code, err := p.WaitTimeout(ctx, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, code, "exit code of a child is known")
	assert.Equal(t, -int(syscall.SIGKILL), *code)

	running, err := p.IsRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)
}
