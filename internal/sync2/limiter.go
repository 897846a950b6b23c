// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package sync2

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter runs functions in goroutines with at most limit running at once.
type Limiter struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewLimiter creates a limiter; a limit below one is treated as one.
func NewLimiter(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(limit))}
}

// Go waits for a free slot and starts fn in it. It returns false without
// starting fn when ctx is done first.
func (limiter *Limiter) Go(ctx context.Context, fn func()) bool {
	if err := limiter.sem.Acquire(ctx, 1); err != nil {
		return false
	}

	limiter.wg.Add(1)
	go func() {
		defer limiter.wg.Done()
		defer limiter.sem.Release(1)
		fn()
	}()
	return true
}

// Wait waits for all started functions to complete.
func (limiter *Limiter) Wait() {
	limiter.wg.Wait()
}
