// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package gc

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Stats summarizes a collector run. Dead counts are decisions, Deleted
// counts are successful store deletions; they differ in dry runs and when
// the store fails.
type Stats struct {
	Roots       int64
	Directories int64
	Files       int64
	Allocations int64

	LiveAllocations int64
	DeadAllocations int64
	IncompleteFiles int64
	DeadFiles       int64
	DeadDirectories int64

	DeletedAllocations int64
	DeletedFiles       int64
	DeletedDirectories int64

	Errors   int64
	DryRun   bool
	Duration time.Duration
}

// Fields returns the stats as log fields.
func (stats *Stats) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("roots", stats.Roots),
		zap.Int64("directories", stats.Directories),
		zap.Int64("files", stats.Files),
		zap.Int64("allocations", stats.Allocations),
		zap.Int64("live allocations", stats.LiveAllocations),
		zap.Int64("dead allocations", stats.DeadAllocations),
		zap.Int64("incomplete files", stats.IncompleteFiles),
		zap.Int64("dead files", stats.DeadFiles),
		zap.Int64("dead directories", stats.DeadDirectories),
		zap.Int64("deleted allocations", stats.DeletedAllocations),
		zap.Int64("deleted files", stats.DeletedFiles),
		zap.Int64("deleted directories", stats.DeletedDirectories),
		zap.Int64("errors", stats.Errors),
		zap.Bool("dry run", stats.DryRun),
		zap.Duration("duration", stats.Duration),
	}
}

type counters struct {
	roots, directories, files, allocations atomic.Int64

	liveAllocations, deadAllocations atomic.Int64
	incompleteFiles                  atomic.Int64
	deadFiles, deadDirectories       atomic.Int64

	deletedAllocations, deletedFiles, deletedDirectories atomic.Int64

	errors atomic.Int64
}

func (c *counters) snapshot() *Stats {
	return &Stats{
		Roots:              c.roots.Load(),
		Directories:        c.directories.Load(),
		Files:              c.files.Load(),
		Allocations:        c.allocations.Load(),
		LiveAllocations:    c.liveAllocations.Load(),
		DeadAllocations:    c.deadAllocations.Load(),
		IncompleteFiles:    c.incompleteFiles.Load(),
		DeadFiles:          c.deadFiles.Load(),
		DeadDirectories:    c.deadDirectories.Load(),
		DeletedAllocations: c.deletedAllocations.Load(),
		DeletedFiles:       c.deletedFiles.Load(),
		DeletedDirectories: c.deletedDirectories.Load(),
		Errors:             c.errors.Load(),
	}
}
