// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package storage

import "bytes"

// CloneKey creates a copy of key
func CloneKey(key Key) Key { return append(key[:0:0], key...) }

// CloneValue creates a copy of value
func CloneValue(value Value) Value { return append(value[:0:0], value...) }

// HasPrefix returns whether key starts with prefix
func HasPrefix(key, prefix Key) bool { return bytes.HasPrefix(key, prefix) }

// Reached returns whether a listing that already collected n keys hit limit
func Reached(n int, limit Limit) bool { return limit > 0 && n >= int(limit) }
