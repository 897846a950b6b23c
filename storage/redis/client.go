// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/zeebo/errs"

	"storj.io/exnode/storage"
)

var (
	// Error is a redis error
	Error = errs.Class("redis error")
)

const (
	defaultNodeExpiration = 0 * time.Minute
	scanCount             = 1000
)

// Client is the entrypoint into Redis
type Client struct {
	db  *redis.Client
	TTL time.Duration
}

// NewClient returns a configured Client instance, verifying a successful connection to redis
func NewClient(address, password string, db int) (*Client, error) {
	client := &Client{
		db: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
		TTL: defaultNodeExpiration,
	}

	// ping here to verify we are able to connect to redis with the initialized client.
	if err := client.db.Ping().Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.db.Close())
	}

	return client, nil
}

// NewClientFrom returns a configured Client instance from a redis address, verifying a successful connection to redis
func NewClientFrom(address string) (*Client, error) {
	redisurl, err := url.Parse(address)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if redisurl.Scheme != "redis" {
		return nil, Error.New("not a redis:// formatted address")
	}

	q := redisurl.Query()

	db, err := strconv.Atoi(q.Get("db"))
	if err != nil {
		return nil, Error.New("invalid db %q: %v", q.Get("db"), err)
	}

	return NewClient(redisurl.Host, q.Get("password"), db)
}

// Get looks up the provided key from redis returning either an error or the result.
func (client *Client) Get(ctx context.Context, key storage.Key) (storage.Value, error) {
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	value, err := client.db.Get(string(key)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	if err != nil {
		return nil, Error.New("get error: %v", err)
	}
	return value, nil
}

// Put adds a value to the provided key in redis, returning an error on failure.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) error {
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	err := client.db.Set(string(key), []byte(value), client.TTL).Err()
	if err != nil {
		return Error.New("put error: %v", err)
	}
	return nil
}

// Delete deletes a key/value pair from redis, for a given the key
func (client *Client) Delete(ctx context.Context, key storage.Key) error {
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	deleted, err := client.db.Del(string(key)).Result()
	if err != nil {
		return Error.New("delete error: %v", err)
	}
	if deleted == 0 {
		return storage.ErrKeyNotFound.New("%q", key)
	}
	return nil
}

// List returns the keys starting with prefix. Redis scans in no particular
// order, so every matching key is collected and sorted before applying limit.
func (client *Client) List(ctx context.Context, prefix storage.Key, limit storage.Limit) (storage.Keys, error) {
	match := escapeMatch(string(prefix)) + "*"

	var names []string
	var cursor uint64
	for {
		batch, next, err := client.db.Scan(cursor, match, scanCount).Result()
		if err != nil {
			return nil, Error.New("scan error: %v", err)
		}
		names = append(names, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}

	sort.Strings(names)

	var keys storage.Keys
	for i, name := range names {
		// SCAN may return a key more than once
		if i > 0 && names[i-1] == name {
			continue
		}
		if storage.Reached(len(keys), limit) {
			break
		}
		keys = append(keys, storage.Key(name))
	}
	return keys, nil
}

// Close closes a redis client
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
