// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package badgerdb

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/exnode/storage"
)

// Error is the default badgerdb errs class
var Error = errs.Class("badgerdb error")

// Config configures a badger backed store
type Config struct {
	// Path is the database directory, ignored when InMemory is set
	Path string `mapstructure:"path"`
	// InMemory keeps everything in memory, used for tests
	InMemory bool `mapstructure:"in_memory"`
	// SyncWrites flushes every write to disk before returning
	SyncWrites bool `mapstructure:"sync_writes"`
}

// Client is the entrypoint into a badger data store
type Client struct {
	db *badger.DB
}

// New opens a badger database described by config
func New(log *zap.Logger, config Config) (*Client, error) {
	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithSyncWrites(config.SyncWrites).WithLogger(&logger{log.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Client{db: db}, nil
}

// Put adds a value to the provided key, returning an error on failure.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) error {
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	return Error.Wrap(client.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}))
}

// Get looks up the provided key returning either an error or the result.
func (client *Client) Get(ctx context.Context, key storage.Key) (storage.Value, error) {
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	var value storage.Value
	err := client.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	return value, Error.Wrap(err)
}

// Delete deletes a key/value pair, for a given the key
func (client *Client) Delete(ctx context.Context, key storage.Key) error {
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	err := client.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.ErrKeyNotFound.New("%q", key)
	}
	return Error.Wrap(err)
}

// List returns the keys starting with prefix, in order
func (client *Client) List(ctx context.Context, prefix storage.Key, limit storage.Limit) (storage.Keys, error) {
	var keys storage.Keys
	err := client.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if storage.Reached(len(keys), limit) {
				break
			}
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, Error.Wrap(err)
}

// Close closes the badger database
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

// logger routes badger's internal logging through zap
type logger struct {
	log *zap.SugaredLogger
}

func (l *logger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l *logger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l *logger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l *logger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }
