// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package exnode describes the exnode tree and the metadata store queries
// the collector depends on.
package exnode

import (
	"context"

	"github.com/zeebo/errs"

	"storj.io/exnode/pkg/allocation"
)

// Error is the exnode errs class
var Error = errs.Class("exnode")

// ErrNotFound is returned when a node or extent does not exist.
var ErrNotFound = errs.Class("exnode not found")

// Mode distinguishes files from directories.
type Mode string

// Node modes
const (
	File      Mode = "file"
	Directory Mode = "directory"
)

// Node is a file or directory of the exnode tree. Roots have an empty
// Parent. Extents are only set on files.
type Node struct {
	ID     string `json:"id"`
	Parent string `json:"parent"`
	Mode   Mode   `json:"mode"`
	Name   string `json:"name"`
	// Size is the file length in bytes, zero when unknown.
	Size    int64                `json:"size,omitempty"`
	Extents []*allocation.Record `json:"extents,omitempty"`
}

// IsFile returns whether the node is a file.
func (node *Node) IsFile() bool { return node.Mode == File }

// IsDirectory returns whether the node is a directory.
func (node *Node) IsDirectory() bool { return node.Mode == Directory }

// DB is the metadata store as seen by the collector.
type DB interface {
	// FindRoots returns the nodes without a parent.
	FindRoots(ctx context.Context) ([]*Node, error)
	// FindByParent returns the children of id, files with their extents.
	FindByParent(ctx context.Context, id string) ([]*Node, error)
	// DeleteByID removes a node. Its extents are not touched.
	DeleteByID(ctx context.Context, id string) error
	// DeleteAllocation removes an extent record.
	DeleteAllocation(ctx context.Context, id string) error
}
