// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package gc

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"storj.io/exnode/internal/sync2"
)

// Service runs the collector periodically.
type Service struct {
	log       *zap.Logger
	config    Config
	collector *Collector
	Loop      *sync2.Cycle

	mu   sync.Mutex
	last *Stats
}

// NewService creates a new instance of the gc service
func NewService(log *zap.Logger, collector *Collector, config Config) *Service {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Service{
		log:       log,
		config:    config,
		collector: collector,
		Loop:      sync2.NewCycle(config.Interval),
	}
}

// Run starts the gc loop service
func (service *Service) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !service.config.Enabled {
		service.log.Info("garbage collection disabled")
		return nil
	}

	return service.Loop.Run(ctx, func(ctx context.Context) error {
		stats, err := service.collector.Run(ctx)
		if err != nil {
			// the store may come back, try again next cycle
			service.log.Error("collection failed", zap.Error(err))
			return nil
		}

		service.mu.Lock()
		service.last = stats
		service.mu.Unlock()

		mon.IntVal("run_deleted_allocations").Observe(stats.DeletedAllocations)
		mon.IntVal("run_deleted_nodes").Observe(stats.DeletedFiles + stats.DeletedDirectories)
		service.log.Info("collection finished", stats.Fields()...)
		return nil
	})
}

// Last returns the stats of the latest successful run, nil before the first.
func (service *Service) Last() *Stats {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.last
}

// Close halts the service.
func (service *Service) Close() error {
	service.Loop.Close()
	return nil
}
