// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ibp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/exnode/pkg/allocation"
)

// Adaptor binds an allocation to a client and implements allocation.Adaptor.
type Adaptor struct {
	log    *zap.Logger
	client *Client
	alloc  *Allocation
}

var _ allocation.Adaptor = (*Adaptor)(nil)

// NewAdaptor creates an adaptor for alloc.
func NewAdaptor(log *zap.Logger, client *Client, alloc *Allocation) *Adaptor {
	return &Adaptor{log: log, client: client, alloc: alloc}
}

// Register installs the ibp builder into factory. The builder rejects
// expired allocations without contacting their depot.
func Register(factory *allocation.Factory, client *Client) {
	factory.Register(Kind, func(ctx context.Context, record *allocation.Record) (allocation.Adaptor, error) {
		alloc, err := Deserialize(client.log, record)
		if err != nil {
			return nil, err
		}
		if alloc.Expired(time.Now()) {
			mon.Counter("expired_allocations").Inc(1)
			return nil, Error.New("allocation %q expired at %s", alloc.ID, alloc.End.Format(allocation.TimeLayout))
		}

		adaptor := NewAdaptor(client.log.Named("adaptor"), client, alloc)
		if err := adaptor.Check(ctx); err != nil {
			return nil, err
		}
		return adaptor, nil
	})
}

// ID returns the metadata identifier.
func (adaptor *Adaptor) ID() string { return adaptor.alloc.ID }

// Allocation returns the underlying allocation.
func (adaptor *Adaptor) Allocation() *Allocation { return adaptor.alloc }

// Record returns the serialized allocation.
func (adaptor *Adaptor) Record() *allocation.Record { return adaptor.alloc.Serialize() }

// Check verifies the depot is reachable and still holds the allocation,
// then extends End by the duration the depot reports.
func (adaptor *Adaptor) Check(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := adaptor.client.GetStatus(ctx, adaptor.alloc.Depot(), StatusOptions{}); err != nil {
		return err
	}
	status, err := adaptor.client.Probe(ctx, adaptor.alloc)
	if err != nil {
		return err
	}
	adaptor.alloc.End = time.Now().UTC().Add(status.Duration)
	return nil
}

// Copy allocates space on destination and has the source depot send the
// data there. The returned adaptor keeps the logical placement and parent
// of the source. When Send fails the destination reservation is left
// behind.
func (adaptor *Adaptor) Copy(ctx context.Context, destination allocation.Depot, opts allocation.CopyOptions) (_ allocation.Adaptor, err error) {
	defer mon.Task()(&ctx)(&err)

	size := adaptor.alloc.DepotSize - opts.Offset
	if opts.Size != nil {
		size = *opts.Size
	}

	dest, err := adaptor.client.Allocate(ctx, destination, size, AllocateOptions{})
	if err != nil {
		return nil, err
	}

	duration, err := adaptor.client.Send(ctx, adaptor.alloc, dest, SendOptions{Offset: opts.Offset, Size: &size})
	if err != nil {
		adaptor.log.Warn("copy failed, destination allocation orphaned",
			zap.String("id", adaptor.alloc.ID),
			zap.String("destination", destination.Address()),
			zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	copied := NewAllocation(adaptor.alloc.log)
	copied.Timestamp = now.UnixNano() / int64(time.Microsecond)
	copied.Size = adaptor.alloc.Size
	copied.Offset = adaptor.alloc.Offset
	copied.InheritFrom(dest)
	copied.DepotSize = size
	copied.DepotOffset = 0
	copied.Parent = adaptor.alloc.Parent
	copied.Start = now
	copied.End = now.Add(duration)

	return NewAdaptor(adaptor.log, adaptor.client, copied), nil
}

// Move is Copy. The source allocation is not released.
func (adaptor *Adaptor) Move(ctx context.Context, destination allocation.Depot, opts allocation.CopyOptions) (allocation.Adaptor, error) {
	return adaptor.Copy(ctx, destination, opts)
}

// Release drops every outstanding read reference of the allocation.
func (adaptor *Adaptor) Release(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	status, err := adaptor.client.Probe(ctx, adaptor.alloc)
	if err != nil {
		return err
	}

	adaptor.alloc.End = time.Now().UTC()
	for i := 0; i < status.ReadCount; i++ {
		_, err := adaptor.client.Manage(ctx, adaptor.alloc, ManageOptions{Mode: ManageDecr, CapType: ReadCap})
		if err != nil {
			return err
		}
	}
	return nil
}

// Manage forwards a manage command. A successful command that sets a
// duration moves End accordingly.
func (adaptor *Adaptor) Manage(ctx context.Context, opts ManageOptions) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := adaptor.client.Manage(ctx, adaptor.alloc, opts); err != nil {
		return err
	}
	if opts.Duration > 0 {
		adaptor.alloc.End = time.Now().UTC().Add(opts.Duration)
	}
	return nil
}

// Load reads the data held by the allocation.
func (adaptor *Adaptor) Load(ctx context.Context) ([]byte, error) {
	return adaptor.client.Load(ctx, adaptor.alloc, LoadOptions{})
}

// Store writes data into the allocation.
func (adaptor *Adaptor) Store(ctx context.Context, data []byte) error {
	duration, err := adaptor.client.Store(ctx, adaptor.alloc, data, StoreOptions{})
	if err != nil {
		return err
	}
	adaptor.alloc.End = time.Now().UTC().Add(duration)
	return nil
}

// Equal reports whether both adaptors hold the same read capability.
func (adaptor *Adaptor) Equal(other *Adaptor) bool {
	if other == nil {
		return false
	}
	return adaptor.alloc.read.String() == other.alloc.read.String()
}

// Compare orders adaptors by timestamp.
func (adaptor *Adaptor) Compare(other *Adaptor) int {
	switch {
	case adaptor.alloc.Timestamp < other.alloc.Timestamp:
		return -1
	case adaptor.alloc.Timestamp > other.alloc.Timestamp:
		return 1
	}
	return 0
}

// CompareTime compares the end of the validity window with t.
func (adaptor *Adaptor) CompareTime(t time.Time) int {
	return adaptor.alloc.End.Compare(t)
}
