// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package gc reclaims depot storage referenced by an exnode tree.
//
// The collector walks the tree bottom up. An allocation is live when a
// builder can turn its record into a checked adaptor; a file is live when
// any of its allocations is; a directory is live when any of its children
// is. Dead allocations, files and directories are removed from the
// metadata store.
package gc

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/exnode/internal/sync2"
	"storj.io/exnode/pkg/allocation"
	"storj.io/exnode/pkg/exnode"
)

var (
	// Error defines the gc errors class
	Error = errs.Class("gc")
	mon   = monkit.Package()
)

const (
	// DefaultConcurrency bounds every fan-out point of a run.
	DefaultConcurrency = 15
	// DefaultInterval is the time between runs of the service.
	DefaultInterval = time.Hour
)

// Config contains configurable values for garbage collection.
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval" validate:"min=0"`
	Concurrency int           `mapstructure:"concurrency" validate:"min=0"`
	DryRun      bool          `mapstructure:"dry-run"`
}

// Builder turns an allocation record into a live adaptor, nil when the
// allocation is not usable. *allocation.Factory implements it.
type Builder interface {
	Build(ctx context.Context, record *allocation.Record) allocation.Adaptor
}

// Collector evaluates exnode trees and deletes what is no longer backed by
// live allocations.
type Collector struct {
	log     *zap.Logger
	db      exnode.DB
	builder Builder
	config  Config
}

// NewCollector creates a collector.
func NewCollector(log *zap.Logger, db exnode.DB, builder Builder, config Config) *Collector {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	return &Collector{
		log:     log,
		db:      db,
		builder: builder,
		config:  config,
	}
}

// pass is a single evaluation sharing one set of counters.
type pass struct {
	*Collector
	stats *counters
}

func (collector *Collector) newPass() *pass {
	return &pass{Collector: collector, stats: &counters{}}
}

// Run evaluates every root of the tree. Only a failure to list the roots
// is returned; every other problem is logged, counted and treated as a
// liveness decision.
func (collector *Collector) Run(ctx context.Context) (_ *Stats, err error) {
	defer mon.Task()(&ctx)(&err)

	started := time.Now()
	pass := collector.newPass()

	roots, err := collector.db.FindRoots(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	limiter := sync2.NewLimiter(collector.config.Concurrency)
	for _, root := range roots {
		root := root
		ok := limiter.Go(ctx, func() {
			pass.stats.roots.Add(1)
			if root.IsDirectory() {
				pass.evaluateDirectory(ctx, root)
			} else {
				pass.evaluateFile(ctx, root)
			}
		})
		if !ok {
			break
		}
	}
	limiter.Wait()

	stats := pass.stats.snapshot()
	stats.DryRun = collector.config.DryRun
	stats.Duration = time.Since(started)
	return stats, nil
}

// TestAllocation reports whether record is backed by a live allocation and
// deletes it otherwise.
func (collector *Collector) TestAllocation(ctx context.Context, record *allocation.Record) bool {
	return collector.newPass().testAllocation(ctx, record)
}

// EvaluateFile reports whether node has a live allocation. Dead and
// incomplete files are deleted.
func (collector *Collector) EvaluateFile(ctx context.Context, node *exnode.Node) bool {
	return collector.newPass().evaluateFile(ctx, node)
}

// EvaluateDirectory reports whether node has a live descendant. Dead
// directories in the subtree are deleted.
func (collector *Collector) EvaluateDirectory(ctx context.Context, node *exnode.Node) bool {
	return collector.newPass().evaluateDirectory(ctx, node)
}

func (pass *pass) testAllocation(ctx context.Context, record *allocation.Record) bool {
	pass.stats.allocations.Add(1)

	if pass.builder.Build(ctx, record) != nil {
		pass.stats.liveAllocations.Add(1)
		return true
	}

	pass.stats.deadAllocations.Add(1)
	pass.deleteAllocation(ctx, record.ID)
	return false
}

func (pass *pass) evaluateFile(ctx context.Context, node *exnode.Node) bool {
	pass.stats.files.Add(1)
	log := pass.log.With(zap.String("file", node.ID))

	if len(node.Extents) == 0 {
		log.Debug("file has no allocations")
		pass.deleteNode(ctx, node)
		return false
	}

	if err := checkTiling(node); err != nil {
		log.Info("incomplete file", zap.Error(err))
		pass.stats.incompleteFiles.Add(1)
		for _, extent := range node.Extents {
			pass.deleteAllocation(ctx, extent.ID)
		}
		pass.deleteNode(ctx, node)
		return false
	}

	results := pool.NewWithResults[bool]().WithMaxGoroutines(pass.config.Concurrency)
	for _, extent := range node.Extents {
		extent := extent
		results.Go(func() bool {
			return pass.testAllocation(ctx, extent)
		})
	}

	if anyLive(results.Wait()) {
		return true
	}

	log.Debug("file has no live allocations")
	pass.deleteNode(ctx, node)
	return false
}

// frame is a directory on the traversal stack.
type frame struct {
	node   *exnode.Node
	parent *frame
	// subdirs are filled in when the frame is expanded.
	subdirs   []*frame
	descended bool
	live      bool
	// keep is set when the children could not be listed.
	keep bool
}

// evaluateDirectory walks the subtree of node in post-order with an
// explicit stack. The directories of one sibling set are expanded
// concurrently: each lists its children and evaluates its files before any
// of them is descended into.
func (pass *pass) evaluateDirectory(ctx context.Context, node *exnode.Node) bool {
	root := &frame{node: node}
	pass.expand(ctx, []*frame{root})
	stack := []*frame{root}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if !top.descended {
			top.descended = true
			if len(top.subdirs) > 0 {
				pass.expand(ctx, top.subdirs)
				stack = append(stack, top.subdirs...)
			}
			continue
		}

		// every child frame has been popped
		stack = stack[:len(stack)-1]

		if !top.live && !top.keep {
			pass.log.Debug("directory has no live children", zap.String("directory", top.node.ID))
			pass.deleteNode(ctx, top.node)
		}
		if top.parent != nil && (top.live || top.keep) {
			top.parent.live = true
		}
	}

	return root.live || root.keep
}

// expand lists the children of every frame in a sibling set, evaluates
// their files and records their subdirectories.
func (pass *pass) expand(ctx context.Context, frames []*frame) {
	siblings := pool.New().WithMaxGoroutines(pass.config.Concurrency)
	for _, current := range frames {
		current := current
		siblings.Go(func() {
			pass.stats.directories.Add(1)

			children, err := pass.db.FindByParent(ctx, current.node.ID)
			if err != nil {
				pass.log.Error("unable to list directory", zap.String("directory", current.node.ID), zap.Error(err))
				pass.stats.errors.Add(1)
				current.keep = true
				return
			}

			var files []*exnode.Node
			for _, child := range children {
				if child.IsDirectory() {
					current.subdirs = append(current.subdirs, &frame{node: child, parent: current})
				} else {
					files = append(files, child)
				}
			}
			current.live = pass.evaluateFiles(ctx, files)
		})
	}
	siblings.Wait()
}

func (pass *pass) evaluateFiles(ctx context.Context, files []*exnode.Node) bool {
	if len(files) == 0 {
		return false
	}

	results := pool.NewWithResults[bool]().WithMaxGoroutines(pass.config.Concurrency)
	for _, file := range files {
		file := file
		results.Go(func() bool {
			return pass.evaluateFile(ctx, file)
		})
	}
	return anyLive(results.Wait())
}

func (pass *pass) deleteNode(ctx context.Context, node *exnode.Node) {
	if node.IsDirectory() {
		pass.stats.deadDirectories.Add(1)
	} else {
		pass.stats.deadFiles.Add(1)
	}
	if pass.config.DryRun {
		pass.log.Info("would delete node", zap.String("id", node.ID), zap.String("mode", string(node.Mode)))
		return
	}

	if err := pass.db.DeleteByID(ctx, node.ID); err != nil {
		pass.log.Error("unable to delete node", zap.String("id", node.ID), zap.Error(err))
		pass.stats.errors.Add(1)
		return
	}
	mon.Counter("deleted_nodes").Inc(1)
	pass.log.Debug("deleted node", zap.String("id", node.ID), zap.String("mode", string(node.Mode)))
	if node.IsDirectory() {
		pass.stats.deletedDirectories.Add(1)
	} else {
		pass.stats.deletedFiles.Add(1)
	}
}

func (pass *pass) deleteAllocation(ctx context.Context, id string) {
	if pass.config.DryRun {
		pass.log.Info("would delete allocation", zap.String("id", id))
		return
	}

	if err := pass.db.DeleteAllocation(ctx, id); err != nil {
		pass.log.Error("unable to delete allocation", zap.String("id", id), zap.Error(err))
		pass.stats.errors.Add(1)
		return
	}
	mon.Counter("deleted_allocations").Inc(1)
	pass.log.Debug("deleted allocation", zap.String("id", id))
	pass.stats.deletedAllocations.Add(1)
}

func anyLive(values []bool) bool {
	for _, value := range values {
		if value {
			return true
		}
	}
	return false
}
