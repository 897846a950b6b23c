// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package gc_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap/zaptest"

	"storj.io/exnode/internal/testcontext"
	"storj.io/exnode/pkg/allocation"
	"storj.io/exnode/pkg/exnode"
	"storj.io/exnode/pkg/gc"
	"storj.io/exnode/storage/teststore"
)

// oracle reports the allocations in live as usable.
type oracle struct {
	mu    sync.Mutex
	live  map[string]bool
	calls []string

	delay   time.Duration
	running int32
	peak    int32
}

func newOracle(live ...string) *oracle {
	o := &oracle{live: map[string]bool{}}
	for _, id := range live {
		o.live[id] = true
	}
	return o
}

func (o *oracle) Build(ctx context.Context, record *allocation.Record) allocation.Adaptor {
	now := atomic.AddInt32(&o.running, 1)
	defer atomic.AddInt32(&o.running, -1)
	for {
		peak := atomic.LoadInt32(&o.peak)
		if now <= peak || atomic.CompareAndSwapInt32(&o.peak, peak, now) {
			break
		}
	}
	if o.delay > 0 {
		time.Sleep(o.delay)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, record.ID)
	if o.live[record.ID] {
		return liveAdaptor{record: record}
	}
	return nil
}

func (o *oracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

type liveAdaptor struct{ record *allocation.Record }

func (a liveAdaptor) ID() string                      { return a.record.ID }
func (a liveAdaptor) Record() *allocation.Record      { return a.record }
func (a liveAdaptor) Check(ctx context.Context) error { return nil }
func (a liveAdaptor) Copy(ctx context.Context, _ allocation.Depot, _ allocation.CopyOptions) (allocation.Adaptor, error) {
	return a, nil
}
func (a liveAdaptor) Move(ctx context.Context, _ allocation.Depot, _ allocation.CopyOptions) (allocation.Adaptor, error) {
	return a, nil
}
func (a liveAdaptor) Release(ctx context.Context) error { return nil }

type tree struct {
	t     *testing.T
	ctx   context.Context
	store *exnode.Store
}

func newTree(ctx context.Context, t *testing.T) *tree {
	return &tree{t: t, ctx: ctx, store: exnode.NewStore(zaptest.NewLogger(t), teststore.New())}
}

func (tree *tree) dir(id, parent string) {
	require.NoError(tree.t, tree.store.PutNode(tree.ctx, &exnode.Node{ID: id, Parent: parent, Mode: exnode.Directory, Name: id}))
}

// file adds a file with one allocation per [offset, size] pair, named
// <id>.0, <id>.1 and so on.
func (tree *tree) file(id, parent string, ranges ...[2]int64) {
	node := &exnode.Node{ID: id, Parent: parent, Mode: exnode.File, Name: id}
	for i, r := range ranges {
		node.Extents = append(node.Extents, &allocation.Record{
			ID:     id + "." + string(rune('0'+i)),
			Parent: id,
			Offset: r[0],
			Size:   r[1],
		})
	}
	require.NoError(tree.t, tree.store.PutNode(tree.ctx, node))
}

func (tree *tree) exists(id string) bool {
	_, err := tree.store.Get(tree.ctx, id)
	if exnode.ErrNotFound.Has(err) {
		return false
	}
	require.NoError(tree.t, err)
	return true
}

func (tree *tree) extents(id string) []string {
	records, err := tree.store.Extents(tree.ctx, id)
	require.NoError(tree.t, err)
	var ids []string
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	return ids
}

var whole = [2]int64{0, 100}

func TestRun(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	// root
	//   a/ a1 a2 a3
	//   b/ b1 b2 c/ c1
	//   empty/
	//   top
	// dead
	//   d1
	tree := newTree(ctx, t)
	tree.dir("root", "")
	tree.dir("a", "root")
	tree.file("a1", "a", whole)
	tree.file("a2", "a", whole)
	tree.file("a3", "a", whole)
	tree.dir("b", "root")
	tree.file("b1", "b", whole)
	tree.file("b2", "b", whole)
	tree.dir("c", "b")
	tree.file("c1", "c", whole)
	tree.dir("empty", "root")
	tree.file("top", "root", whole)
	tree.dir("dead", "")
	tree.file("d1", "dead", whole)

	builder := newOracle("a1.0", "c1.0")
	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, builder, gc.Config{})

	stats, err := collector.Run(ctx)
	require.NoError(t, err)

	// N = 8 files with one allocation, K = 2 live
	assert.EqualValues(t, 2, stats.Roots)
	assert.EqualValues(t, 8, stats.Files)
	assert.EqualValues(t, 6, stats.Directories)
	assert.EqualValues(t, 8, stats.Allocations)
	assert.EqualValues(t, 2, stats.LiveAllocations)
	assert.EqualValues(t, 6, stats.DeadAllocations)
	assert.EqualValues(t, 6, stats.DeletedAllocations)
	assert.EqualValues(t, 6, stats.DeletedFiles)
	assert.EqualValues(t, 2, stats.DeletedDirectories)
	assert.Zero(t, stats.Errors)
	assert.Equal(t, 8, builder.Calls())

	for _, id := range []string{"root", "a", "a1", "b", "c", "c1"} {
		assert.True(t, tree.exists(id), id)
	}
	for _, id := range []string{"a2", "a3", "b1", "b2", "top", "d1", "empty", "dead"} {
		assert.False(t, tree.exists(id), id)
	}
	assert.Equal(t, []string{"a1.0"}, tree.extents("a1"))
	assert.Equal(t, []string{"c1.0"}, tree.extents("c1"))
	for _, id := range []string{"a2", "a3", "b1", "b2", "top", "d1"} {
		assert.Empty(t, tree.extents(id), id)
	}
}

func TestRunRootFile(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	tree.file("live", "", whole)
	tree.file("dead", "", whole)

	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, newOracle("live.0"), gc.Config{})
	_, err := collector.Run(ctx)
	require.NoError(t, err)

	assert.True(t, tree.exists("live"))
	assert.False(t, tree.exists("dead"))
}

func TestIncompleteFile(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	tree.dir("root", "")
	tree.file("partial", "root", [2]int64{0, 50}, [2]int64{0, 50}, [2]int64{50, 50})

	builder := newOracle("partial.0", "partial.1", "partial.2")
	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, builder, gc.Config{})

	children, err := tree.store.FindByParent(ctx, "root")
	require.NoError(t, err)
	require.Len(t, children, 1)

	assert.False(t, collector.EvaluateFile(ctx, children[0]))
	assert.Zero(t, builder.Calls())
	assert.False(t, tree.exists("partial"))
	assert.Empty(t, tree.extents("partial"))

	// nothing left in the directory
	assert.False(t, collector.EvaluateDirectory(ctx, &exnode.Node{ID: "root", Mode: exnode.Directory}))
	assert.False(t, tree.exists("root"))
}

func TestFileWithoutAllocations(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	tree.file("bare", "")

	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, newOracle(), gc.Config{})
	node, err := tree.store.Get(ctx, "bare")
	require.NoError(t, err)

	assert.False(t, collector.EvaluateFile(ctx, node))
	assert.False(t, tree.exists("bare"))
}

func TestTestAllocation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	tree.file("f", "", [2]int64{0, 10}, [2]int64{10, 10})

	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, newOracle("f.0"), gc.Config{})
	extents, err := tree.store.Extents(ctx, "f")
	require.NoError(t, err)

	assert.True(t, collector.TestAllocation(ctx, extents[0]))
	assert.False(t, collector.TestAllocation(ctx, extents[1]))
	assert.Equal(t, []string{"f.0"}, tree.extents("f"))
	// the file itself is untouched
	assert.True(t, tree.exists("f"))
}

func TestDryRun(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	tree.dir("root", "")
	tree.file("dead", "root", whole)
	tree.file("partial", "root", [2]int64{0, 50}, [2]int64{0, 50})
	tree.dir("empty", "root")

	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, newOracle(), gc.Config{DryRun: true})
	stats, err := collector.Run(ctx)
	require.NoError(t, err)

	assert.True(t, stats.DryRun)
	assert.EqualValues(t, 1, stats.DeadAllocations)
	assert.EqualValues(t, 1, stats.IncompleteFiles)
	assert.EqualValues(t, 2, stats.DeadFiles)
	assert.EqualValues(t, 2, stats.DeadDirectories)
	assert.Zero(t, stats.DeletedAllocations)
	assert.Zero(t, stats.DeletedFiles)
	assert.Zero(t, stats.DeletedDirectories)

	for _, id := range []string{"root", "dead", "partial", "empty"} {
		assert.True(t, tree.exists(id), id)
	}
	assert.Len(t, tree.extents("partial"), 2)
}

func TestConcurrencyBound(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	var ranges [][2]int64
	for i := int64(0); i < 10; i++ {
		ranges = append(ranges, [2]int64{i * 10, 10})
	}
	tree.file("striped", "", ranges...)

	builder := newOracle()
	builder.delay = 5 * time.Millisecond
	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, builder, gc.Config{Concurrency: 3})

	_, err := collector.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 10, builder.Calls())
	assert.LessOrEqual(t, atomic.LoadInt32(&builder.peak), int32(3))
	assert.False(t, tree.exists("striped"))
}

// failingDB fails the operations named in fail.
type failingDB struct {
	exnode.DB
	failList   string
	failDelete bool
}

func (db *failingDB) FindByParent(ctx context.Context, id string) ([]*exnode.Node, error) {
	if id == db.failList {
		return nil, errs.New("store unavailable")
	}
	return db.DB.FindByParent(ctx, id)
}

func (db *failingDB) DeleteByID(ctx context.Context, id string) error {
	if db.failDelete {
		return errs.New("store unavailable")
	}
	return db.DB.DeleteByID(ctx, id)
}

func TestStoreFailures(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	tree.dir("root", "")
	tree.dir("unlistable", "root")
	tree.file("u1", "unlistable", whole)
	tree.file("dead", "root", whole)

	db := &failingDB{DB: tree.store, failList: "unlistable", failDelete: true}
	collector := gc.NewCollector(zaptest.NewLogger(t), db, newOracle(), gc.Config{})

	stats, err := collector.Run(ctx)
	require.NoError(t, err)

	// a directory that can not be listed is kept, and so are its ancestors
	assert.True(t, tree.exists("unlistable"))
	assert.True(t, tree.exists("u1"))
	assert.True(t, tree.exists("root"))

	// the dead file could not be deleted, its allocation could
	assert.True(t, tree.exists("dead"))
	assert.Empty(t, tree.extents("dead"))
	assert.EqualValues(t, 2, stats.Errors)
}

type brokenRoots struct{ exnode.DB }

func (brokenRoots) FindRoots(ctx context.Context) ([]*exnode.Node, error) {
	return nil, errs.New("store unavailable")
}

func TestRunFindRootsFails(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	collector := gc.NewCollector(zaptest.NewLogger(t), brokenRoots{}, newOracle(), gc.Config{})
	_, err := collector.Run(ctx)
	assert.True(t, gc.Error.Has(err))
}

func TestService(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	tree.file("dead", "", whole)

	config := gc.Config{Enabled: true, Interval: time.Hour}
	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, newOracle(), config)
	service := gc.NewService(zaptest.NewLogger(t), collector, config)

	ctx.Go(func() error { return service.Run(ctx) })
	service.Loop.TriggerWait()

	// the first run deleted the file, the triggered one found nothing
	last := service.Last()
	require.NotNil(t, last)
	assert.Zero(t, last.Roots)
	assert.False(t, tree.exists("dead"))

	require.NoError(t, service.Close())
}

func TestServiceDisabled(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	collector := gc.NewCollector(zaptest.NewLogger(t), brokenRoots{}, newOracle(), gc.Config{})
	service := gc.NewService(zaptest.NewLogger(t), collector, gc.Config{})
	require.NoError(t, service.Run(ctx))
	assert.Nil(t, service.Last())
}

func TestSiblingDirectoriesConcurrent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	// root
	//   d0/ f0 ... d5/ f5
	tree := newTree(ctx, t)
	tree.dir("root", "")
	var live []string
	for i := 0; i < 6; i++ {
		dir := "d" + string(rune('0'+i))
		file := "f" + string(rune('0'+i))
		tree.dir(dir, "root")
		tree.file(file, dir, whole)
		live = append(live, file+".0")
	}

	builder := newOracle(live...)
	builder.delay = 50 * time.Millisecond
	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, builder, gc.Config{})

	stats, err := collector.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 6, builder.Calls())
	assert.Greater(t, atomic.LoadInt32(&builder.peak), int32(1))
	assert.EqualValues(t, 7, stats.Directories)
	assert.Zero(t, stats.DeletedDirectories)
	assert.True(t, tree.exists("root"))
}

func TestSiblingDirectoriesBounded(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	tree.dir("root", "")
	for i := 0; i < 8; i++ {
		dir := "d" + string(rune('0'+i))
		tree.dir(dir, "root")
		tree.file("f"+string(rune('0'+i)), dir, whole)
	}

	builder := newOracle()
	builder.delay = 5 * time.Millisecond
	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, builder, gc.Config{Concurrency: 2})

	stats, err := collector.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 8, builder.Calls())
	assert.LessOrEqual(t, atomic.LoadInt32(&builder.peak), int32(2))
	// every subdirectory and then root itself
	assert.EqualValues(t, 9, stats.DeletedDirectories)
	assert.False(t, tree.exists("root"))
}

func TestServiceDeletesOnFirstCycle(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	tree := newTree(ctx, t)
	tree.dir("root", "")
	tree.file("live", "root", whole)
	tree.file("dead", "root", whole)

	config := gc.Config{Enabled: true, Interval: time.Hour}
	collector := gc.NewCollector(zaptest.NewLogger(t), tree.store, newOracle("live.0"), config)
	service := gc.NewService(zaptest.NewLogger(t), collector, config)

	ctx.Go(func() error { return service.Run(ctx) })
	service.Loop.TriggerWait()

	assert.True(t, tree.exists("root"))
	assert.True(t, tree.exists("live"))
	assert.False(t, tree.exists("dead"))

	// the triggered cycle saw what the first one left behind
	last := service.Last()
	require.NotNil(t, last)
	assert.EqualValues(t, 1, last.Roots)
	assert.EqualValues(t, 1, last.Files)
	assert.Zero(t, last.DeletedFiles)

	require.NoError(t, service.Close())
}
