// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"bytes"
	"context"
	"time"

	"github.com/boltdb/bolt"
	"github.com/zeebo/errs"

	"storj.io/exnode/storage"
)

// Error is the default boltdb errs class
var Error = errs.Class("boltdb error")

const (
	// fileMode sets permissions so owner can read and write
	fileMode       = 0600
	defaultTimeout = 1 * time.Second
)

// Client is the entrypoint into a bolt data store
type Client struct {
	db     *bolt.DB
	Path   string
	Bucket []byte
}

// New instantiates a new BoltDB client given db file path, and a bucket name
func New(path, bucket string) (*Client, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, errs.Combine(Error.Wrap(err), Error.Wrap(db.Close()))
	}

	return &Client{
		db:     db,
		Path:   path,
		Bucket: []byte(bucket),
	}, nil
}

func (client *Client) update(fn func(*bolt.Bucket) error) error {
	return Error.Wrap(client.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(client.Bucket))
	}))
}

func (client *Client) view(fn func(*bolt.Bucket) error) error {
	return Error.Wrap(client.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(client.Bucket))
	}))
}

// Put adds a value to the provided key in boltdb, returning an error on failure.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) error {
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	return client.update(func(bucket *bolt.Bucket) error {
		return bucket.Put(key, value)
	})
}

// Get looks up the provided key from boltdb returning either an error or the result.
func (client *Client) Get(ctx context.Context, key storage.Key) (storage.Value, error) {
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	var value storage.Value
	err := client.view(func(bucket *bolt.Bucket) error {
		data, ok := lookup(bucket, key)
		if !ok {
			return storage.ErrKeyNotFound.New("%q", key)
		}
		// bolt values are only valid inside the transaction
		value = storage.CloneValue(data)
		return nil
	})
	if storage.ErrKeyNotFound.Has(err) {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	return value, err
}

// Delete deletes a key/value pair from boltdb, for a given the key
func (client *Client) Delete(ctx context.Context, key storage.Key) error {
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	err := client.update(func(bucket *bolt.Bucket) error {
		if _, ok := lookup(bucket, key); !ok {
			return storage.ErrKeyNotFound.New("%q", key)
		}
		return bucket.Delete(key)
	})
	if storage.ErrKeyNotFound.Has(err) {
		return storage.ErrKeyNotFound.New("%q", key)
	}
	return err
}

// List returns the keys starting with prefix, in order
func (client *Client) List(ctx context.Context, prefix storage.Key, limit storage.Limit) (storage.Keys, error) {
	var keys storage.Keys
	err := client.view(func(bucket *bolt.Bucket) error {
		cursor := bucket.Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			if storage.Reached(len(keys), limit) {
				break
			}
			keys = append(keys, storage.CloneKey(k))
		}
		return nil
	})
	return keys, err
}

// lookup distinguishes a missing key from a key holding an empty value,
// which bucket.Get does not.
func lookup(bucket *bolt.Bucket, key storage.Key) ([]byte, bool) {
	k, v := bucket.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

// Close closes a BoltDB client
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
