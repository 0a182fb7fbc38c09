// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package backend

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTable(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.Add(FakeProcess{Pid: 9, Name: "b"}, FakeProcess{Pid: 3, Name: "a"})

	pids, err := f.Pids(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 9}, pids)

	ok, err := f.PidExists(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := f.Status(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "running", st, "status defaults to running")

	f.Vanish(3)
	_, err = f.Name(ctx, 3)
	assert.True(t, IsNoSuchProcess(err))
	assert.Equal(t, 1, f.Calls("pids"))
}

func TestFakeFailureInjection(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.Add(FakeProcess{Pid: 3, Name: "a"}, FakeProcess{Pid: 4})
	f.Deny(3, OpCwd)
	f.Unsupport(OpNumFDs)

	_, err := f.Cwd(ctx, 3)
	assert.True(t, IsAccessDenied(err))
	_, err = f.Cwd(ctx, 4)
	assert.NoError(t, err)

	_, err = f.NumFDs(ctx, 4)
	assert.True(t, IsNotImplemented(err))
}

func TestFakeSignals(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.Add(FakeProcess{Pid: 3})

	require.NoError(t, f.Suspend(ctx, 3))
	p, _ := f.Get(3)
	assert.Equal(t, "stopped", p.Status)

	require.NoError(t, f.Resume(ctx, 3))
	require.NoError(t, f.Kill(ctx, 3))
	assert.Equal(t, []syscall.Signal{sigStop, sigCont, syscall.SIGKILL}, f.Signals(3))

	_, ok := f.Get(3)
	assert.False(t, ok)
	code, err := f.Wait(ctx, 3, 0)
	require.NoError(t, err)
	require.NotNil(t, code)
	assert.Equal(t, -int(syscall.SIGKILL), *code)
}

func TestFakeWait(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.Add(FakeProcess{Pid: 3}, FakeProcess{Pid: 4})

	_, err := f.Wait(ctx, 3, 10*time.Millisecond)
	assert.True(t, IsTimeout(err))

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(10 * time.Millisecond)
		f.Exit(3, 7)
		f.Vanish(4)
	}()
	code, err := f.Wait(ctx, 3, NoTimeout)
	require.NoError(t, err)
	require.NotNil(t, code)
	assert.Equal(t, 7, *code)

	code, err = f.Wait(ctx, 4, time.Second)
	<-done
	require.NoError(t, err)
	assert.Nil(t, code)

	code, err = f.Wait(ctx, 99, 0)
	require.NoError(t, err)
	assert.Nil(t, code, "unknown pid")
}

func TestFakeParentMap(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.Add(FakeProcess{Pid: 3, Ppid: 1}, FakeProcess{Pid: 4, Ppid: 3})

	_, err := f.ParentMap(ctx)
	assert.True(t, IsNotImplemented(err))

	f.SetBulkParents(true)
	parents, err := f.ParentMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int32]int32{3: 1, 4: 3}, parents)
}

func TestFakeLimitsAndNice(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.Add(FakeProcess{Pid: 3})

	require.NoError(t, f.SetNice(ctx, 3, 7))
	n, err := f.Nice(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(7), n)

	require.NoError(t, f.SetRlimit(ctx, 3, 1, Rlimit{Soft: 2, Hard: 3}))
	lim, err := f.Rlimit(ctx, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, Rlimit{Soft: 2, Hard: 3}, lim)
}

func TestCPUTimesArithmetic(t *testing.T) {
	ct := CPUTimes{User: 1, System: 2, Idle: 3, Iowait: 4}
	assert.InDelta(t, 10.0, ct.Total(), 1e-9)
	assert.InDelta(t, 7.0, ct.Busy(), 1e-9)
	assert.Equal(t, ct, FromFields(ct.Fields()))
	assert.Len(t, ct.Fields(), len(CPUTimeFields))
	assert.Equal(t, CPUTimes{User: 5}, FromFields([]float64{5}))
}
