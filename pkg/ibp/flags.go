// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ibp

import "time"

// Version is the protocol version sent as the first field of a command.
type Version int

// Protocol versions
const (
	IBPv031 Version = 0
	IBPv040 Version = 1
)

// Command identifies a depot operation.
type Command int

// Commands
const (
	CmdAllocate Command = 1
	CmdStore    Command = 2
	CmdDeliver  Command = 3
	CmdStatus   Command = 4
	CmdSend     Command = 5
	CmdMCopy    Command = 6
	CmdLoad     Command = 8
	CmdManage   Command = 9
)

// SubCommand selects the behaviour of Status and Manage.
type SubCommand int

// Status and Manage sub commands
const (
	StatusInquire SubCommand = 1
	StatusChange  SubCommand = 2
	ManageProbe   SubCommand = 40
	ManageIncr    SubCommand = 41
	ManageDecr    SubCommand = 42
	ManageChange  SubCommand = 43
)

// CapCode is the numeric capability type used by Manage.
type CapCode int

// Capability codes
const (
	ReadCap   CapCode = 1
	WriteCap  CapCode = 2
	ManageCap CapCode = 3
)

// Reliability of an allocation.
type Reliability int

// Reliability levels
const (
	Soft Reliability = 1
	Hard Reliability = 2
)

// StorageType is the access pattern of an allocation.
type StorageType int

// Storage types
const (
	ByteArray StorageType = 1
	Buffer    StorageType = 2
	FIFO      StorageType = 3
	CircularQ StorageType = 4
)

// Protocol defaults.
const (
	DefaultDuration = 3 * time.Hour
	DefaultPassword = "ibp"
	// DefaultServerTimeout is the timeout, in seconds, the depot is asked to honour.
	DefaultServerTimeout = 30
	DefaultMaxSize       = 10 * 1024 * 1024
	// DefaultTimeout bounds every client call.
	DefaultTimeout = 10 * time.Second
	// DefaultPort is the port depots listen on.
	DefaultPort = 6714
)
