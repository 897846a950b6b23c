// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package allocation defines the allocation metadata record, the
// operations every kind of remote allocation supports and the factory that
// turns records into live adaptors.
package allocation

import (
	"context"
	"net"
	"strconv"

	"github.com/zeebo/errs"
)

// Error is the allocation errs class
var Error = errs.Class("allocation")

// Depot is the address of a storage depot.
type Depot struct {
	Host string
	Port int
}

// Address returns host:port.
func (depot Depot) Address() string {
	return net.JoinHostPort(depot.Host, strconv.Itoa(depot.Port))
}

// CopyOptions selects the byte range of a Copy or Move.
// A nil Size copies everything from Offset to the end of the allocation.
type CopyOptions struct {
	Offset int64
	Size   *int64
}

// Adaptor is a live, verified allocation.
type Adaptor interface {
	// ID returns the metadata identifier of the allocation.
	ID() string
	// Record returns the metadata document of the allocation.
	Record() *Record
	// Check verifies the allocation is still held by its depot.
	Check(ctx context.Context) error
	// Copy transfers the allocation to destination and returns the copy.
	Copy(ctx context.Context, destination Depot, opts CopyOptions) (Adaptor, error)
	// Move is Copy; the source is left untouched.
	Move(ctx context.Context, destination Depot, opts CopyOptions) (Adaptor, error)
	// Release drops the outstanding references to the allocation.
	Release(ctx context.Context) error
}
