// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ibp

import (
	"net"
	"strconv"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/exnode/pkg/allocation"
)

// Kind is the allocation kind served by this package.
const Kind = "ibp"

// Allocation is a reserved byte range on a depot.
//
// Size and Offset place the allocation within its file, DepotSize and
// DepotOffset describe the range actually held by the depot. All three
// capabilities must point at the same depot.
type Allocation struct {
	log *zap.Logger

	ID        string
	Timestamp int64

	Size        int64
	Offset      int64
	DepotSize   int64
	DepotOffset int64

	Start time.Time
	End   time.Time

	Host   string
	Port   int
	Parent string

	read   *Capability
	write  *Capability
	manage *Capability
}

// NewAllocation returns an empty allocation that logs rejected capabilities to log.
func NewAllocation(log *zap.Logger) *Allocation {
	if log == nil {
		log = zap.NewNop()
	}
	now := time.Now().UTC()
	return &Allocation{
		log:   log,
		Start: now,
		End:   now,
		Port:  DefaultPort,
	}
}

// Deserialize reads a metadata record. Every field problem is logged and
// combined into the returned error; the allocation is always returned with
// whatever could be read.
func Deserialize(log *zap.Logger, record *allocation.Record) (*Allocation, error) {
	alloc := NewAllocation(log)
	if record == nil {
		return alloc, ErrFormat.New("nil record")
	}

	alloc.ID = record.ID
	alloc.Timestamp = record.Timestamp
	alloc.Size = record.Size
	alloc.Offset = record.Offset
	alloc.DepotSize = record.Size
	if record.AllocLength != nil {
		alloc.DepotSize = *record.AllocLength
	}
	alloc.DepotOffset = record.Offset
	if record.AllocOffset != nil {
		alloc.DepotOffset = *record.AllocOffset
	}
	alloc.Parent = record.Parent

	var group errs.Group
	if len(record.Lifetimes) == 0 {
		group.Add(ErrFormat.New("no lifetimes"))
	} else {
		start, err := allocation.ParseTime(record.Lifetimes[0].Start)
		if err != nil {
			group.Add(ErrFormat.New("lifetime start: %v", err))
		} else {
			alloc.Start = start
		}
		end, err := allocation.ParseTime(record.Lifetimes[0].End)
		if err != nil {
			group.Add(ErrFormat.New("lifetime end: %v", err))
		} else {
			alloc.End = end
		}
	}

	group.Add(alloc.SetReadCapability(record.Mapping.Read))
	group.Add(alloc.SetWriteCapability(record.Mapping.Write))
	group.Add(alloc.SetManageCapability(record.Mapping.Manage))

	err := group.Err()
	if err != nil {
		alloc.log.Warn("unable to decode allocation", zap.String("id", record.ID), zap.Error(err))
	}
	return alloc, err
}

// Serialize returns the metadata record of the allocation.
func (alloc *Allocation) Serialize() *allocation.Record {
	return &allocation.Record{
		ID:          alloc.ID,
		Type:        Kind,
		Timestamp:   alloc.Timestamp,
		Size:        alloc.Size,
		Offset:      alloc.Offset,
		AllocLength: allocation.Int64(alloc.DepotSize),
		AllocOffset: allocation.Int64(alloc.DepotOffset),
		Parent:      alloc.Parent,
		Lifetimes: []allocation.Lifetime{{
			Start: allocation.FormatTime(alloc.Start),
			End:   allocation.FormatTime(alloc.End),
		}},
		Mapping: allocation.Mapping{
			Read:   alloc.read.String(),
			Write:  alloc.write.String(),
			Manage: alloc.manage.String(),
		},
	}
}

// Address returns host:port of the depot.
func (alloc *Allocation) Address() string {
	return net.JoinHostPort(alloc.Host, strconv.Itoa(alloc.Port))
}

// Depot returns the depot holding the allocation.
func (alloc *Allocation) Depot() allocation.Depot {
	return allocation.Depot{Host: alloc.Host, Port: alloc.Port}
}

// Expired returns whether the validity window ended before now.
func (alloc *Allocation) Expired(now time.Time) bool {
	return now.After(alloc.End)
}

// ReadCapability returns the read capability, nil when unset.
func (alloc *Allocation) ReadCapability() *Capability { return alloc.read }

// WriteCapability returns the write capability, nil when unset.
func (alloc *Allocation) WriteCapability() *Capability { return alloc.write }

// ManageCapability returns the manage capability, nil when unset.
func (alloc *Allocation) ManageCapability() *Capability { return alloc.manage }

// SetReadCapability parses and assigns the read capability.
func (alloc *Allocation) SetReadCapability(token string) error {
	return alloc.setCapability(Read, &alloc.read, token)
}

// SetWriteCapability parses and assigns the write capability.
func (alloc *Allocation) SetWriteCapability(token string) error {
	return alloc.setCapability(Write, &alloc.write, token)
}

// SetManageCapability parses and assigns the manage capability.
func (alloc *Allocation) SetManageCapability(token string) error {
	return alloc.setCapability(Manage, &alloc.manage, token)
}

// SetCapability assigns token to the slot named by its own type.
func (alloc *Allocation) SetCapability(token string) error {
	capability, err := ParseCapability(token)
	if err != nil {
		alloc.log.Warn("unable to create capability", zap.Error(err))
		return err
	}
	switch capability.Type {
	case Read:
		return alloc.assign(Read, &alloc.read, capability)
	case Write:
		return alloc.assign(Write, &alloc.write, capability)
	default:
		return alloc.assign(Manage, &alloc.manage, capability)
	}
}

func (alloc *Allocation) setCapability(mode CapType, slot **Capability, token string) error {
	capability, err := ParseCapability(token)
	if err != nil {
		alloc.log.Warn("unable to create capability", zap.String("mode", string(mode)), zap.Error(err))
		return err
	}
	return alloc.assign(mode, slot, capability)
}

// assign stores capability in slot. The first capability fixes the depot
// of the allocation; later ones must match it.
func (alloc *Allocation) assign(mode CapType, slot **Capability, capability *Capability) error {
	if alloc.hasCapability() {
		if capability.Host != alloc.Host || capability.Port != alloc.Port {
			alloc.log.Warn("depot mismatch, all capabilities must use the same depot",
				zap.String("mode", string(mode)),
				zap.String("expected", alloc.Address()),
				zap.String("got", capability.Address()))
			return ErrFormat.New("%s capability depot %s does not match %s", mode, capability.Address(), alloc.Address())
		}
	} else {
		alloc.Host = capability.Host
		alloc.Port = capability.Port
	}
	*slot = capability
	return nil
}

func (alloc *Allocation) hasCapability() bool {
	return alloc.read != nil || alloc.write != nil || alloc.manage != nil
}

// InheritFrom copies the capabilities, depot range, validity window and
// parent of other.
func (alloc *Allocation) InheritFrom(other *Allocation) {
	alloc.read, alloc.write, alloc.manage = other.read, other.write, other.manage
	alloc.Host, alloc.Port = other.Host, other.Port
	alloc.DepotSize = other.DepotSize
	alloc.DepotOffset = other.DepotOffset
	alloc.Start = other.Start
	alloc.End = other.End
	alloc.Parent = other.Parent
}
