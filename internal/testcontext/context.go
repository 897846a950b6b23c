// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testcontext implements a context for tests that tracks
// background goroutines and temporary directories.
package testcontext

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout is the timeout used by New
const DefaultTimeout = 3 * time.Minute

// Context is a context with a group of goroutines and a temporary directory
// that are cleaned up when the test finishes.
type Context struct {
	context.Context
	cancel context.CancelFunc

	group *errgroup.Group
	test  testing.TB

	once      sync.Once
	directory string
}

// New creates a new test context with DefaultTimeout
func New(test testing.TB) *Context {
	return NewWithTimeout(test, DefaultTimeout)
}

// NewWithTimeout creates a new test context that is cancelled after timeout
func NewWithTimeout(test testing.TB, timeout time.Duration) *Context {
	parent, cancel := context.WithTimeout(context.Background(), timeout)
	group, ctx := errgroup.WithContext(parent)

	return &Context{
		Context: ctx,
		cancel:  cancel,
		group:   group,
		test:    test,
	}
}

// Go runs fn in a goroutine.
// Call Wait to check the result
func (ctx *Context) Go(fn func() error) {
	ctx.test.Helper()
	ctx.group.Go(fn)
}

// Check calls fn and checks result
func (ctx *Context) Check(fn func() error) {
	ctx.test.Helper()
	if err := fn(); err != nil {
		ctx.test.Fatal(err)
	}
}

// Dir returns a directory path inside the temporary test directory
func (ctx *Context) Dir(subs ...string) string {
	ctx.test.Helper()

	ctx.once.Do(func() {
		var err error
		ctx.directory, err = os.MkdirTemp("", "exnode-test")
		if err != nil {
			ctx.test.Fatal(err)
		}
	})

	dir := filepath.Join(append([]string{ctx.directory}, subs...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		ctx.test.Fatal(err)
	}
	return dir
}

// File returns a filepath inside the temporary test directory
func (ctx *Context) File(subs ...string) string {
	ctx.test.Helper()

	if len(subs) == 0 {
		ctx.test.Fatal("expected more than one argument")
	}

	dir := ctx.Dir(subs[:len(subs)-1]...)
	return filepath.Join(dir, subs[len(subs)-1])
}

// Cleanup waits everything to be completed,
// checks errors and tries to cleanup directories
func (ctx *Context) Cleanup() {
	ctx.test.Helper()

	defer ctx.deleteTemporary()
	defer ctx.cancel()

	if err := ctx.group.Wait(); err != nil {
		ctx.test.Fatal(err)
	}
}

func (ctx *Context) deleteTemporary() {
	if ctx.directory == "" {
		return
	}
	if err := os.RemoveAll(ctx.directory); err != nil {
		ctx.test.Fatal(err)
	}
}
