// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package sync2 contains concurrency helpers.
package sync2

import (
	"context"
	"sync"
	"time"
)

// Cycle runs a function immediately and then on every interval, until the
// context is cancelled or the cycle is stopped. It can be triggered out of
// band.
type Cycle struct {
	interval time.Duration

	init    sync.Once
	control chan cycleMessage
	stopped chan struct{}
	stop    sync.Once
}

type cycleMessage struct {
	interval time.Duration
	done     chan struct{}
}

// NewCycle creates a cycle with the given interval.
func NewCycle(interval time.Duration) *Cycle {
	cycle := &Cycle{interval: interval}
	cycle.initialize()
	return cycle
}

// SetInterval changes the interval before the cycle has started.
func (cycle *Cycle) SetInterval(interval time.Duration) {
	cycle.interval = interval
}

func (cycle *Cycle) initialize() {
	cycle.init.Do(func() {
		cycle.control = make(chan cycleMessage)
		cycle.stopped = make(chan struct{})
	})
}

// Run calls fn once and then every interval. It returns the first error of
// fn, nil when stopped, or the context error. A cycle runs only once.
func (cycle *Cycle) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	cycle.initialize()
	defer cycle.Stop()

	interval := cycle.interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := fn(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				return err
			}

		case message := <-cycle.control:
			if message.interval > 0 {
				interval = message.interval
				ticker.Reset(interval)
				continue
			}
			if err := fn(ctx); err != nil {
				return err
			}
			ticker.Reset(interval)
			if message.done != nil {
				close(message.done)
			}

		case <-cycle.stopped:
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (cycle *Cycle) send(message cycleMessage) bool {
	cycle.initialize()
	select {
	case cycle.control <- message:
		return true
	case <-cycle.stopped:
		return false
	}
}

// Stop ends Run. Safe to call multiple times.
func (cycle *Cycle) Stop() {
	cycle.initialize()
	cycle.stop.Do(func() { close(cycle.stopped) })
}

// Close is Stop.
func (cycle *Cycle) Close() { cycle.Stop() }

// ChangeInterval changes the interval of a running cycle.
func (cycle *Cycle) ChangeInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	cycle.send(cycleMessage{interval: interval})
}

// Trigger runs fn as soon as the current call finishes.
// Blocks until a running cycle accepts the request.
func (cycle *Cycle) Trigger() {
	cycle.send(cycleMessage{})
}

// TriggerWait runs fn and waits for it to complete.
func (cycle *Cycle) TriggerWait() {
	done := make(chan struct{})
	if !cycle.send(cycleMessage{done: done}) {
		return
	}
	select {
	case <-done:
	case <-cycle.stopped:
	}
}
