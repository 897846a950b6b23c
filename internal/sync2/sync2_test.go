// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package sync2_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/exnode/internal/sync2"
	"storj.io/exnode/internal/testcontext"
)

func TestLimiterLimiting(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	const limit = 3
	limiter := sync2.NewLimiter(limit)

	var running, peak, total int32
	for i := 0; i < 20; i++ {
		require.True(t, limiter.Go(ctx, func() {
			now := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&total, 1)
		}))
	}
	limiter.Wait()

	assert.EqualValues(t, 20, total)
	assert.LessOrEqual(t, peak, int32(limit))
}

func TestLimiterCanceled(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	limiter := sync2.NewLimiter(1)
	release := make(chan struct{})
	require.True(t, limiter.Go(ctx, func() { <-release }))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, limiter.Go(canceled, func() { t.Error("should not run") }))

	close(release)
	limiter.Wait()
}

func TestCycleTriggerAndStop(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var count int32
	cycle := sync2.NewCycle(time.Hour)

	ctx.Go(func() error {
		return cycle.Run(ctx, func(ctx context.Context) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
	})

	cycle.TriggerWait()
	cycle.TriggerWait()
	assert.EqualValues(t, 3, atomic.LoadInt32(&count))

	cycle.Stop()
	cycle.Stop()
	// no longer running
	cycle.TriggerWait()
}

func TestCycleInterval(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var count int32
	cycle := sync2.NewCycle(time.Hour)
	cycle.SetInterval(time.Millisecond)

	err := cycle.Run(ctx, func(ctx context.Context) error {
		if atomic.AddInt32(&count, 1) == 5 {
			return errors.New("done")
		}
		return nil
	})
	assert.EqualError(t, err, "done")
	assert.EqualValues(t, 5, count)
}

func TestCycleContextCanceled(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	canceled, cancel := context.WithCancel(ctx)
	cycle := sync2.NewCycle(time.Hour)

	err := cycle.Run(canceled, func(ctx context.Context) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
