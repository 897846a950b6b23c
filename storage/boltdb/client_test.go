// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/exnode/internal/testcontext"
	"storj.io/exnode/storage"
	"storj.io/exnode/storage/testsuite"
)

func TestSuite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := New(ctx.File("bolt", "exnode.db"), "exnodes")
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	testsuite.RunTests(t, store)
}

func TestReopen(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("bolt", "reopen.db")

	store, err := New(path, "exnodes")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, storage.Key("node/1"), storage.Value("kept")))
	require.NoError(t, store.Close())

	store, err = New(path, "exnodes")
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	value, err := store.Get(ctx, storage.Key("node/1"))
	require.NoError(t, err)
	require.Equal(t, "kept", string(value))
}
