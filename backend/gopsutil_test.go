// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"context"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGopsutilCurrentProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping host backend test in short mode")
	}
	ctx := context.Background()
	g := NewGopsutil()
	pid := int32(os.Getpid())

	ok, err := g.PidExists(ctx, pid)
	require.NoError(t, err)
	assert.True(t, ok)

	pids, err := g.Pids(ctx)
	require.NoError(t, err)
	assert.Contains(t, pids, pid)

	ct, err := g.CreateTime(ctx, pid)
	require.NoError(t, err)
	assert.False(t, ct.IsZero())

	ppid, err := g.Ppid(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getppid()), ppid)

	name, err := g.Name(ctx, pid)
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	times, err := g.Times(ctx, pid)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, times.User+times.System, 0.0)

	mem, err := g.MemoryInfo(ctx, pid)
	require.NoError(t, err)
	assert.Positive(t, mem.RSS)

	parents, err := g.ParentMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, ppid, parents[pid])
}

func TestGopsutilSystem(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping host backend test in short mode")
	}
	ctx := context.Background()
	g := NewGopsutil()

	total, err := g.SystemTimes(ctx)
	require.NoError(t, err)
	assert.Positive(t, total.Total())

	per, err := g.PerCPUTimes(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, per)

	n, err := g.NumCPU(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	memTotal, err := g.TotalMemory(ctx)
	require.NoError(t, err)
	assert.Positive(t, memTotal)
}

func TestGopsutilMissingProcess(t *testing.T) {
	if testing.Short() || runtime.GOOS == "windows" {
		t.Skip("requires a POSIX host")
	}
	ctx := context.Background()
	g := NewGopsutil()
	const missing = int32(2147483646)

	ok, err := g.PidExists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = g.CreateTime(ctx, missing)
	assert.True(t, IsNoSuchProcess(err), "got %v", err)

	code, err := g.Wait(ctx, missing, 0)
	require.NoError(t, err)
	assert.Nil(t, code)
}

func TestDefaultBackend(t *testing.T) {
	assert.NotNil(t, Default())
	assert.IsType(t, &Gopsutil{}, Default())
}
