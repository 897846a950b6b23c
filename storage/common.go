// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package storage

import (
	"bytes"
	"context"

	"github.com/zeebo/errs"
)

// Delimiter separates nested paths in storage
const Delimiter = '/'

var (
	// ErrKeyNotFound used when something doesn't exist
	ErrKeyNotFound = errs.Class("key not found")

	// ErrEmptyKey is returned when an empty key is used in Put
	ErrEmptyKey = errs.Class("empty key")
)

// Key is the type for the keys in a `KeyValueStore`
type Key []byte

// Value is the type for the values in a `KeyValueStore`
type Value []byte

// Keys is the type for a slice of keys in a `KeyValueStore`
type Keys []Key

// Limit indicates how many keys to return when calling List
type Limit int

// KeyValueStore is an interface describing key/value stores like redis and boltdb
type KeyValueStore interface {
	// Put adds a value to the provided key in the KeyValueStore, returning an error on failure.
	Put(ctx context.Context, key Key, value Value) error
	// Get gets a value to store
	Get(ctx context.Context, key Key) (Value, error)
	// Delete deletes key and the value
	Delete(ctx context.Context, key Key) error
	// List returns the keys that start with prefix, in sorted order, up to limit.
	// A non-positive limit returns every matching key.
	List(ctx context.Context, prefix Key, limit Limit) (Keys, error)
	// Close closes the store
	Close() error
}

// IsZero returns true if the key struct is it's zero value
func (k Key) IsZero() bool { return len(k) == 0 }

// IsZero returns true if the value struct is it's zero value
func (v Value) IsZero() bool { return len(v) == 0 }

// String implements the Stringer interface
func (k Key) String() string { return string(k) }

// Less returns whether key should be sorted before b
func (k Key) Less(b Key) bool { return bytes.Compare(k, b) < 0 }

// Equal returns whether key and b are equal
func (k Key) Equal(b Key) bool { return bytes.Equal(k, b) }

// Strings returns keys as strings
func (keys Keys) Strings() []string {
	strs := make([]string, 0, len(keys))
	for _, key := range keys {
		strs = append(strs, string(key))
	}
	return strs
}

// Join joins the segments into a single key separated by Delimiter
func Join(segments ...string) Key {
	var buf bytes.Buffer
	for i, segment := range segments {
		if i > 0 {
			buf.WriteByte(Delimiter)
		}
		buf.WriteString(segment)
	}
	return Key(buf.Bytes())
}
