// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package gc

import (
	"github.com/zeebo/errs"

	"storj.io/exnode/pkg/allocation"
	"storj.io/exnode/pkg/exnode"
)

// ErrIncomplete is used for files whose allocations do not tile a
// contiguous range starting at zero.
var ErrIncomplete = errs.Class("incomplete file")

// checkTiling walks the file from offset zero, each step requiring exactly
// one allocation starting at the current end, until no allocation extends
// the range. Allocations left over, duplicate starts and a range that
// disagrees with a known file size make the file incomplete.
func checkTiling(node *exnode.Node) error {
	starts := map[int64][]*allocation.Record{}
	for _, extent := range node.Extents {
		starts[extent.Offset] = append(starts[extent.Offset], extent)
	}

	var end int64
	used := 0
	for {
		candidates := starts[end]
		if len(candidates) == 0 {
			break
		}
		if len(candidates) > 1 {
			return ErrIncomplete.New("%d allocations start at offset %d", len(candidates), end)
		}
		extent := candidates[0]
		if extent.Size <= 0 {
			return ErrIncomplete.New("allocation %q at offset %d is empty", extent.ID, end)
		}
		delete(starts, end)
		used++
		end += extent.Size
	}

	if used != len(node.Extents) {
		return ErrIncomplete.New("%d allocations outside of [0, %d)", len(node.Extents)-used, end)
	}
	if node.Size > 0 && end != node.Size {
		return ErrIncomplete.New("allocations cover %d of %d bytes", end, node.Size)
	}
	return nil
}
