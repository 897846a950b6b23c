// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package exnode

import (
	"context"
	"encoding/json"
	"io"

	"storj.io/exnode/pkg/allocation"
)

// Dump is an export of the exnodes and extents collections.
type Dump struct {
	Exnodes []*Node              `json:"exnodes"`
	Extents []*allocation.Record `json:"extents"`
}

// ReadDump decodes a JSON dump.
func ReadDump(r io.Reader) (*Dump, error) {
	var dump Dump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, Error.Wrap(err)
	}
	return &dump, nil
}

// Import stores every node and extent of dump and returns how many of each
// were written. It stops at the first failure.
func (store *Store) Import(ctx context.Context, dump *Dump) (nodes, extents int, err error) {
	defer mon.Task()(&ctx)(&err)

	for _, node := range dump.Exnodes {
		if err := store.PutNode(ctx, node); err != nil {
			return nodes, extents, err
		}
		nodes++
		extents += len(node.Extents)
	}
	for _, extent := range dump.Extents {
		if err := store.PutExtent(ctx, extent); err != nil {
			return nodes, extents, err
		}
		extents++
	}
	return nodes, extents, nil
}
