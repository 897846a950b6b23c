// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package exnode

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/exnode/pkg/allocation"
	"storj.io/exnode/storage"
)

var mon = monkit.Package()

// key layout:
//
//	node/<id>                 node document without extents
//	child/<parent>/<id>       child index, parent is empty for roots
//	extent/<id>               allocation record
//	fextent/<parent>/<id>     extent index of a file
const (
	nodePrefix        = "node"
	childPrefix       = "child"
	extentPrefix      = "extent"
	fileExtentsPrefix = "fextent"
)

// Store implements DB on top of a key/value store.
type Store struct {
	log *zap.Logger
	db  storage.KeyValueStore
}

var _ DB = (*Store)(nil)

// NewStore creates a store backed by db.
func NewStore(log *zap.Logger, db storage.KeyValueStore) *Store {
	return &Store{log: log, db: db}
}

// Close closes the underlying key/value store.
func (store *Store) Close() error { return store.db.Close() }

func validID(id string) error {
	if id == "" || strings.ContainsRune(id, storage.Delimiter) {
		return Error.New("invalid id %q", id)
	}
	return nil
}

func prefix(segments ...string) storage.Key {
	return storage.Join(append(segments, "")...)
}

// PutNode stores node. Extents carried by a file node are stored as well.
func (store *Store) PutNode(ctx context.Context, node *Node) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := validID(node.ID); err != nil {
		return err
	}
	if node.Parent != "" {
		if err := validID(node.Parent); err != nil {
			return err
		}
	}
	if node.Mode != File && node.Mode != Directory {
		return Error.New("node %q has invalid mode %q", node.ID, node.Mode)
	}

	stripped := *node
	stripped.Extents = nil
	data, err := json.Marshal(&stripped)
	if err != nil {
		return Error.Wrap(err)
	}

	if err := store.db.Put(ctx, storage.Join(nodePrefix, node.ID), data); err != nil {
		return Error.Wrap(err)
	}
	if err := store.db.Put(ctx, storage.Join(childPrefix, node.Parent, node.ID), storage.Value(node.ID)); err != nil {
		return Error.Wrap(err)
	}

	for _, extent := range node.Extents {
		if extent.Parent == "" {
			extent.Parent = node.ID
		}
		if err := store.PutExtent(ctx, extent); err != nil {
			return err
		}
	}
	return nil
}

// PutExtent stores an allocation record and links it to its parent file.
func (store *Store) PutExtent(ctx context.Context, record *allocation.Record) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := validID(record.ID); err != nil {
		return err
	}
	if err := validID(record.Parent); err != nil {
		return Error.New("extent %q: %v", record.ID, err)
	}

	data, err := record.Marshal()
	if err != nil {
		return Error.Wrap(err)
	}
	if err := store.db.Put(ctx, storage.Join(extentPrefix, record.ID), data); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(store.db.Put(ctx, storage.Join(fileExtentsPrefix, record.Parent, record.ID), storage.Value(record.ID)))
}

// Get returns the node with id, with extents when it is a file.
func (store *Store) Get(ctx context.Context, id string) (_ *Node, err error) {
	defer mon.Task()(&ctx)(&err)

	node, err := store.getNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.IsFile() {
		node.Extents, err = store.Extents(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (store *Store) getNode(ctx context.Context, id string) (*Node, error) {
	data, err := store.db.Get(ctx, storage.Join(nodePrefix, id))
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return nil, ErrNotFound.New("node %q", id)
		}
		return nil, Error.Wrap(err)
	}

	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, Error.New("node %q: %v", id, err)
	}
	return &node, nil
}

func (store *Store) getExtent(ctx context.Context, id string) (*allocation.Record, error) {
	data, err := store.db.Get(ctx, storage.Join(extentPrefix, id))
	if err != nil {
		if storage.ErrKeyNotFound.Has(err) {
			return nil, ErrNotFound.New("extent %q", id)
		}
		return nil, Error.Wrap(err)
	}
	record, err := allocation.ParseRecord(data)
	if err != nil {
		return nil, Error.New("extent %q: %v", id, err)
	}
	return record, nil
}

// Extents returns the allocation records of the file id.
func (store *Store) Extents(ctx context.Context, id string) (_ []*allocation.Record, err error) {
	defer mon.Task()(&ctx)(&err)

	keys, err := store.db.List(ctx, prefix(fileExtentsPrefix, id), 0)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	extents := make([]*allocation.Record, 0, len(keys))
	for _, key := range keys {
		record, err := store.getExtent(ctx, lastSegment(key))
		if err != nil {
			if ErrNotFound.Has(err) {
				store.log.Debug("dangling extent index", zap.String("key", key.String()))
				continue
			}
			return nil, err
		}
		extents = append(extents, record)
	}
	return extents, nil
}

// FindRoots returns the nodes without parent.
func (store *Store) FindRoots(ctx context.Context) (_ []*Node, err error) {
	defer mon.Task()(&ctx)(&err)
	return store.children(ctx, "")
}

// FindByParent returns the children of id.
func (store *Store) FindByParent(ctx context.Context, id string) (_ []*Node, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := validID(id); err != nil {
		return nil, err
	}
	return store.children(ctx, id)
}

func (store *Store) children(ctx context.Context, parent string) ([]*Node, error) {
	keys, err := store.db.List(ctx, prefix(childPrefix, parent), 0)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	nodes := make([]*Node, 0, len(keys))
	for _, key := range keys {
		node, err := store.Get(ctx, lastSegment(key))
		if err != nil {
			if ErrNotFound.Has(err) {
				store.log.Debug("dangling child index", zap.String("key", key.String()))
				continue
			}
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// DeleteByID removes the node and its child index entry.
func (store *Store) DeleteByID(ctx context.Context, id string) (err error) {
	defer mon.Task()(&ctx)(&err)

	node, err := store.getNode(ctx, id)
	if err != nil {
		return err
	}
	return errs.Combine(
		Error.Wrap(store.db.Delete(ctx, storage.Join(nodePrefix, id))),
		Error.Wrap(store.db.Delete(ctx, storage.Join(childPrefix, node.Parent, id))),
	)
}

// DeleteAllocation removes the extent record and its file index entry.
func (store *Store) DeleteAllocation(ctx context.Context, id string) (err error) {
	defer mon.Task()(&ctx)(&err)

	record, err := store.getExtent(ctx, id)
	if err != nil {
		return err
	}
	return errs.Combine(
		Error.Wrap(store.db.Delete(ctx, storage.Join(extentPrefix, id))),
		Error.Wrap(store.db.Delete(ctx, storage.Join(fileExtentsPrefix, record.Parent, id))),
	)
}

func lastSegment(key storage.Key) string {
	s := key.String()
	return s[strings.LastIndexByte(s, storage.Delimiter)+1:]
}
