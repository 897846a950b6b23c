// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package config

import (
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"storj.io/exnode/storage"
	"storj.io/exnode/storage/badgerdb"
	"storj.io/exnode/storage/boltdb"
	"storj.io/exnode/storage/redis"
	"storj.io/exnode/storage/storelogger"
	"storj.io/exnode/storage/teststore"
)

// Store types
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
	StoreBadger = "badger"
)

// StoreConfig selects the key/value backend of the exnode store. Only the
// section named by Type is used.
type StoreConfig struct {
	Type string `mapstructure:"type" validate:"required,oneof=memory bolt redis badger"`
	// Debug logs every store call.
	Debug bool `mapstructure:"debug"`

	Bolt   map[string]any `mapstructure:"bolt"`
	Redis  map[string]any `mapstructure:"redis"`
	Badger map[string]any `mapstructure:"badger"`
}

// BoltConfig configures the bolt backend.
type BoltConfig struct {
	Path   string `mapstructure:"path"`
	Bucket string `mapstructure:"bucket"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	// Address is a redis:// url, e.g. redis://127.0.0.1:6379?db=0&password=secret.
	Address string `mapstructure:"address"`
}

// OpenStore creates the configured backend.
func OpenStore(log *zap.Logger, config StoreConfig) (_ storage.KeyValueStore, err error) {
	var store storage.KeyValueStore

	switch config.Type {
	case StoreMemory, "":
		store = teststore.New()

	case StoreBolt:
		options := BoltConfig{Path: "exnode.db", Bucket: "exnodes"}
		if err := decode(config.Bolt, &options); err != nil {
			return nil, err
		}
		store, err = boltdb.New(options.Path, options.Bucket)

	case StoreRedis:
		options := RedisConfig{Address: "redis://127.0.0.1:6379?db=0"}
		if err := decode(config.Redis, &options); err != nil {
			return nil, err
		}
		store, err = redis.NewClientFrom(options.Address)

	case StoreBadger:
		options := badgerdb.Config{Path: "exnode-badger"}
		if err := decode(config.Badger, &options); err != nil {
			return nil, err
		}
		store, err = badgerdb.New(log.Named("badger"), options)

	default:
		return nil, Error.New("unknown store type %q", config.Type)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	if config.Debug {
		store = storelogger.New(log.Named("store"), store)
	}
	return store, nil
}

// decode overlays options onto target.
func decode(options map[string]any, target interface{}) error {
	if len(options) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(decoder.Decode(options))
}
