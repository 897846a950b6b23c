// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testsuite contains behavioural tests shared by every
// storage.KeyValueStore implementation.
package testsuite

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/exnode/storage"
)

// RunTests runs common storage.KeyValueStore tests
func RunTests(t *testing.T, store storage.KeyValueStore) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, store) })
	t.Run("Constraints", func(t *testing.T) { testConstraints(t, store) })
	t.Run("Prefix", func(t *testing.T) { testPrefix(t, store) })
	t.Run("Parallel", func(t *testing.T) { testParallel(t, store) })
}

func cleanup(t *testing.T, store storage.KeyValueStore) {
	ctx := context.Background()
	keys, err := store.List(ctx, nil, 0)
	require.NoError(t, err)
	for _, key := range keys {
		require.NoError(t, store.Delete(ctx, key))
	}
}

func testCRUD(t *testing.T, store storage.KeyValueStore) {
	ctx := context.Background()
	defer cleanup(t, store)

	items := map[string]string{
		"a":     "1",
		"b/c":   "2",
		"b/c/d": "",
		"e\x00": "4",
	}

	for key, value := range items {
		require.NoError(t, store.Put(ctx, storage.Key(key), storage.Value(value)), key)
	}

	for key, value := range items {
		got, err := store.Get(ctx, storage.Key(key))
		require.NoError(t, err, key)
		assert.Equal(t, value, string(got), key)
	}

	// overwrite
	require.NoError(t, store.Put(ctx, storage.Key("a"), storage.Value("updated")))
	got, err := store.Get(ctx, storage.Key("a"))
	require.NoError(t, err)
	assert.Equal(t, "updated", string(got))

	for key := range items {
		require.NoError(t, store.Delete(ctx, storage.Key(key)), key)
	}

	for key := range items {
		_, err := store.Get(ctx, storage.Key(key))
		assert.True(t, storage.ErrKeyNotFound.Has(err), key)
	}
}

func testConstraints(t *testing.T, store storage.KeyValueStore) {
	ctx := context.Background()

	err := store.Put(ctx, nil, storage.Value("xyz"))
	assert.True(t, storage.ErrEmptyKey.Has(err))

	_, err = store.Get(ctx, nil)
	assert.True(t, storage.ErrEmptyKey.Has(err))

	err = store.Delete(ctx, storage.Key("missing"))
	assert.True(t, storage.ErrKeyNotFound.Has(err))

	_, err = store.Get(ctx, storage.Key("missing"))
	assert.True(t, storage.ErrKeyNotFound.Has(err))
}

func testPrefix(t *testing.T, store storage.KeyValueStore) {
	ctx := context.Background()
	defer cleanup(t, store)

	keys := []string{
		"child/a/1", "child/a/2", "child/a/3",
		"child/ab/1",
		"child/b/1",
		"node/a",
		"star/*/1", "star/x/1",
	}
	for _, key := range keys {
		require.NoError(t, store.Put(ctx, storage.Key(key), nil))
	}

	list, err := store.List(ctx, storage.Key("child/a/"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"child/a/1", "child/a/2", "child/a/3"}, list.Strings())

	list, err = store.List(ctx, storage.Key("child/"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"child/a/1", "child/a/2"}, list.Strings())

	list, err = store.List(ctx, storage.Key("star/*/"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"star/*/1"}, list.Strings())

	list, err = store.List(ctx, storage.Key("missing/"), 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = store.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, list, len(keys))
}

func testParallel(t *testing.T, store storage.KeyValueStore) {
	ctx := context.Background()
	defer cleanup(t, store)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers*3)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := storage.Key(fmt.Sprintf("parallel/%d", i))
			errs <- store.Put(ctx, key, storage.Value(key))
			value, err := store.Get(ctx, key)
			if err == nil && string(value) != string(key) {
				err = fmt.Errorf("got %q for %q", value, key)
			}
			errs <- err
			errs <- store.Delete(ctx, key)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}
