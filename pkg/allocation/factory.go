// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package allocation

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"
)

var mon = monkit.Package()

// Builder turns a record into a checked adaptor. Any error means the
// allocation can not be used.
type Builder func(ctx context.Context, record *Record) (Adaptor, error)

// Factory builds adaptors from metadata records, selecting the builder by
// the record kind.
type Factory struct {
	log *zap.Logger

	mu       sync.RWMutex
	builders map[string]Builder
}

// NewFactory creates a factory without any registered kinds.
func NewFactory(log *zap.Logger) *Factory {
	return &Factory{
		log:      log,
		builders: map[string]Builder{},
	}
}

// Register installs the builder for kind, replacing any previous one.
func (factory *Factory) Register(kind string, builder Builder) {
	factory.mu.Lock()
	defer factory.mu.Unlock()
	factory.builders[kind] = builder
}

// Kinds returns the registered kinds in sorted order.
func (factory *Factory) Kinds() []string {
	factory.mu.RLock()
	defer factory.mu.RUnlock()

	kinds := make([]string, 0, len(factory.builders))
	for kind := range factory.builders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Build returns a live adaptor for record, or nil when the allocation is
// not usable. Malformed records, unreachable depots and depot-reported
// failures are not distinguished.
func (factory *Factory) Build(ctx context.Context, record *Record) Adaptor {
	adaptor, err := factory.build(ctx, record)
	if err != nil {
		mon.Counter("build_failed").Inc(1)
		factory.log.Debug("allocation not usable", zap.String("id", recordID(record)), zap.Error(err))
		return nil
	}
	mon.Counter("build_succeeded").Inc(1)
	return adaptor
}

func (factory *Factory) build(ctx context.Context, record *Record) (_ Adaptor, err error) {
	defer mon.Task()(&ctx)(&err)

	if record == nil {
		return nil, Error.New("nil record")
	}

	factory.mu.RLock()
	builder, ok := factory.builders[record.Kind()]
	factory.mu.RUnlock()
	if !ok {
		return nil, Error.New("unknown allocation kind %q", record.Kind())
	}

	adaptor, err := builder(ctx, record)
	if err != nil {
		return nil, err
	}
	if adaptor == nil {
		return nil, Error.New("builder for %q returned no adaptor", record.Kind())
	}
	return adaptor, nil
}

func recordID(record *Record) string {
	if record == nil {
		return ""
	}
	return record.ID
}
