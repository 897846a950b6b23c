// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ibp

import (
	"net"
	"strconv"
	"strings"
)

// CapType is the access mode a capability grants.
type CapType string

// Capability types
const (
	Read   CapType = "READ"
	Write  CapType = "WRITE"
	Manage CapType = "MANAGE"
)

// Code returns the numeric capability code used by Manage.
func (t CapType) Code() CapCode {
	switch t {
	case Read:
		return ReadCap
	case Write:
		return WriteCap
	case Manage:
		return ManageCap
	}
	return 0
}

func (t CapType) valid() bool { return t.Code() != 0 }

// Capability is a signed token granting one access mode to an allocation.
//
// Tokens look like scheme://host:port/depotId#key/wrmKey/capType.
type Capability struct {
	Scheme string
	Host   string
	Port   int
	// Key contains the depot identifier and the allocation key.
	Key    string
	WRMKey string
	Type   CapType
}

// ParseCapability parses a capability token.
func ParseCapability(token string) (*Capability, error) {
	// scheme: "" host:port key wrmKey capType
	segments := strings.Split(token, "/")
	if len(segments) != 6 {
		return nil, ErrFormat.New("capability %q: expected 6 segments, got %d", token, len(segments))
	}
	if !strings.HasSuffix(segments[0], ":") || segments[1] != "" {
		return nil, ErrFormat.New("capability %q: missing scheme", token)
	}

	host, portString, err := net.SplitHostPort(segments[2])
	if err != nil {
		return nil, ErrFormat.New("capability %q: %v", token, err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil || port <= 0 || port > 65535 {
		return nil, ErrFormat.New("capability %q: invalid port %q", token, portString)
	}

	capability := &Capability{
		Scheme: strings.TrimSuffix(segments[0], ":"),
		Host:   host,
		Port:   port,
		Key:    segments[3],
		WRMKey: segments[4],
		Type:   CapType(segments[5]),
	}

	switch {
	case capability.Scheme == "" || host == "":
		return nil, ErrFormat.New("capability %q: empty scheme or host", token)
	case capability.Key == "" || capability.WRMKey == "":
		return nil, ErrFormat.New("capability %q: empty key", token)
	case !capability.Type.valid():
		return nil, ErrFormat.New("capability %q: unknown type %q", token, capability.Type)
	}
	return capability, nil
}

// Address returns host:port of the depot holding the allocation.
func (capability *Capability) Address() string {
	return net.JoinHostPort(capability.Host, strconv.Itoa(capability.Port))
}

// String formats the capability as a token.
func (capability *Capability) String() string {
	if capability == nil {
		return ""
	}
	return capability.Scheme + "://" + capability.Address() + "/" + capability.Key + "/" + capability.WRMKey + "/" + string(capability.Type)
}
