// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package cpuacct

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jongio/procscope/backend"
)

func TestPercentNonBlocking(t *testing.T) {
	ctx := context.Background()
	f := backend.NewFake()
	f.SetSystemTimes(backend.CPUTimes{User: 10, Idle: 90})
	a := New(f)

	pct, err := a.Percent(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, pct, "first call stores the baseline")

	f.SetSystemTimes(backend.CPUTimes{User: 35, Idle: 165})
	pct, err = a.Percent(ctx, 0)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, pct, 1e-9)

	pct, err = a.Percent(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, pct, "nothing elapsed since the last call")
}

func TestWindowsAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := backend.NewFake()
	f.SetSystemTimes(backend.CPUTimes{User: 10, Idle: 90})
	a := New(f)

	_, err := a.Percent(ctx, 0)
	require.NoError(t, err)

	f.SetSystemTimes(backend.CPUTimes{User: 35, Idle: 165})
	times, err := a.TimesPercent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, backend.CPUTimes{}, times, "detailed window has no baseline yet")

	pct, err := a.Percent(ctx, 0)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, pct, 1e-9, "detailed call must not move the simple baseline")

	f.SetSystemTimes(backend.CPUTimes{User: 45, Idle: 255})
	times, err = a.TimesPercent(ctx, 0)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, times.User, 1e-9)
	assert.InDelta(t, 90.0, times.Idle, 1e-9)
}

func TestPerCPUPercent(t *testing.T) {
	ctx := context.Background()
	f := backend.NewFake()
	f.SetPerCPUTimes([]backend.CPUTimes{{User: 0, Idle: 10}, {User: 0, Idle: 10}})
	a := New(f)

	first, err := a.PerCPUPercent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, first)

	f.SetPerCPUTimes([]backend.CPUTimes{{User: 5, Idle: 15}, {User: 10, Idle: 10}})
	got, err := a.PerCPUPercent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 50.0, got[0], 1e-9)
	assert.InDelta(t, 100.0, got[1], 1e-9)

	f.SetPerCPUTimes([]backend.CPUTimes{{User: 6, Idle: 18}, {User: 10, Idle: 20}})
	detail, err := a.PerCPUTimesPercent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []backend.CPUTimes{{}, {}}, detail)
}

func TestBlockingRefreshesBaseline(t *testing.T) {
	ctx := context.Background()
	f := backend.NewFake()
	f.SetSystemTimes(backend.CPUTimes{User: 0, Idle: 100})
	a := New(f)
	a.sleep = func(context.Context, time.Duration) error {
		f.SetSystemTimes(backend.CPUTimes{User: 50, Idle: 150})
		return nil
	}

	pct, err := a.Percent(ctx, time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pct, 1e-9)

	f.SetSystemTimes(backend.CPUTimes{User: 50, Idle: 250})
	pct, err = a.Percent(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, pct, "idle only since the blocking call")

	f.SetSystemTimes(backend.CPUTimes{User: 0, Idle: 100})
	a.sleep = func(context.Context, time.Duration) error {
		f.SetSystemTimes(backend.CPUTimes{User: 20, Idle: 180})
		return nil
	}
	times, err := a.TimesPercent(ctx, time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, times.User, 1e-9)
	assert.InDelta(t, 80.0, times.Idle, 1e-9)

	f.SetPerCPUTimes([]backend.CPUTimes{{Idle: 10}})
	a.sleep = func(context.Context, time.Duration) error {
		f.SetPerCPUTimes([]backend.CPUTimes{{User: 10, Idle: 20}})
		return nil
	}
	per, err := a.PerCPUTimesPercent(ctx, time.Second)
	require.NoError(t, err)
	require.Len(t, per, 1)
	assert.InDelta(t, 50.0, per[0].User, 1e-9)
}

func TestNegativeInterval(t *testing.T) {
	ctx := context.Background()
	a := New(backend.NewFake())

	_, err := a.Percent(ctx, -time.Millisecond)
	assert.Equal(t, backend.KindInvalidArgument, backend.KindOf(err))
	_, err = a.PerCPUPercent(ctx, -time.Millisecond)
	assert.Equal(t, backend.KindInvalidArgument, backend.KindOf(err))
	_, err = a.TimesPercent(ctx, -time.Millisecond)
	assert.Equal(t, backend.KindInvalidArgument, backend.KindOf(err))
	_, err = a.PerCPUTimesPercent(ctx, -time.Millisecond)
	assert.Equal(t, backend.KindInvalidArgument, backend.KindOf(err))
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)

	a := New(backend.NewFake())
	_, err := a.Percent(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
