// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package storelogger

import (
	"context"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/exnode/storage"
)

var mon = monkit.Package()

// Logger wraps a storage.KeyValueStore and logs every call at debug level
type Logger struct {
	log   *zap.Logger
	store storage.KeyValueStore
}

// New creates a new Logger with log and store
func New(log *zap.Logger, store storage.KeyValueStore) *Logger {
	return &Logger{log: log, store: store}
}

// Put adds a value to store
func (store *Logger) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Put", zap.ByteString("key", key), zap.Int("value length", len(value)))
	return store.store.Put(ctx, key, value)
}

// Get gets a value from store
func (store *Logger) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Get", zap.ByteString("key", key))
	return store.store.Get(ctx, key)
}

// Delete deletes key and the value
func (store *Logger) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Delete", zap.ByteString("key", key))
	return store.store.Delete(ctx, key)
}

// List lists the keys starting with prefix
func (store *Logger) List(ctx context.Context, prefix storage.Key, limit storage.Limit) (_ storage.Keys, err error) {
	defer mon.Task()(&ctx)(&err)
	keys, err := store.store.List(ctx, prefix, limit)
	store.log.Debug("List", zap.ByteString("prefix", prefix), zap.Int("limit", int(limit)), zap.Int("found", len(keys)))
	return keys, err
}

// Close closes the store
func (store *Logger) Close() error {
	store.log.Debug("Close")
	return store.store.Close()
}
