// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package teststore

import (
	"context"
	"sort"
	"sync"

	"storj.io/exnode/storage"
)

type item struct {
	key   storage.Key
	value storage.Value
}

// Client implements in-memory key value store
type Client struct {
	mu    sync.Mutex
	items []item

	// CallCount counts the calls made against the store
	CallCount struct {
		Get    int
		Put    int
		List   int
		Delete int
		Close  int
	}
}

// New creates a new in-memory key-value store
func New() *Client { return &Client{} }

// indexOf finds index of key or where it could be inserted
func (store *Client) indexOf(key storage.Key) (int, bool) {
	i := sort.Search(len(store.items), func(k int) bool {
		return !store.items[k].key.Less(key)
	})

	if i >= len(store.items) {
		return i, false
	}
	return i, store.items[i].key.Equal(key)
}

// Put adds a value to store
func (store *Client) Put(ctx context.Context, key storage.Key, value storage.Value) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Put++
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	keyIndex, found := store.indexOf(key)
	if found {
		store.items[keyIndex].value = storage.CloneValue(value)
		return nil
	}

	store.items = append(store.items, item{})
	copy(store.items[keyIndex+1:], store.items[keyIndex:])
	store.items[keyIndex] = item{
		key:   storage.CloneKey(key),
		value: storage.CloneValue(value),
	}
	return nil
}

// Get gets a value to store
func (store *Client) Get(ctx context.Context, key storage.Key) (storage.Value, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Get++
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	keyIndex, found := store.indexOf(key)
	if !found {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	return storage.CloneValue(store.items[keyIndex].value), nil
}

// Delete deletes key and the value
func (store *Client) Delete(ctx context.Context, key storage.Key) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Delete++
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	keyIndex, found := store.indexOf(key)
	if !found {
		return storage.ErrKeyNotFound.New("%q", key)
	}

	copy(store.items[keyIndex:], store.items[keyIndex+1:])
	store.items = store.items[:len(store.items)-1]
	return nil
}

// List lists all keys starting with prefix and upto limit items
func (store *Client) List(ctx context.Context, prefix storage.Key, limit storage.Limit) (storage.Keys, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.List++

	var keys storage.Keys
	first, _ := store.indexOf(prefix)
	for _, it := range store.items[first:] {
		if !storage.HasPrefix(it.key, prefix) || storage.Reached(len(keys), limit) {
			break
		}
		keys = append(keys, storage.CloneKey(it.key))
	}
	return keys, nil
}

// Len returns the number of stored items
func (store *Client) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.items)
}

// Close closes the store
func (store *Client) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Close++
	return nil
}
