// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ibp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/exnode/pkg/ibp"
)

func TestParseCapability(t *testing.T) {
	capability, err := ibp.ParseCapability("ibp://depot.example.org:6714/0#abcd/efgh/READ")
	require.NoError(t, err)

	assert.Equal(t, &ibp.Capability{
		Scheme: "ibp",
		Host:   "depot.example.org",
		Port:   6714,
		Key:    "0#abcd",
		WRMKey: "efgh",
		Type:   ibp.Read,
	}, capability)
	assert.Equal(t, "depot.example.org:6714", capability.Address())
	assert.Equal(t, "ibp://depot.example.org:6714/0#abcd/efgh/READ", capability.String())

	reparsed, err := ibp.ParseCapability(capability.String())
	require.NoError(t, err)
	assert.Equal(t, capability, reparsed)
}

func TestParseCapabilityMalformed(t *testing.T) {
	for _, token := range []string{
		"",
		"garbage",
		"ibp://host:6714/0#k/w",
		"ibp://host:6714/0#k/w/READ/extra",
		"ibp://host/0#k/w/READ",
		"ibp://host:port/0#k/w/READ",
		"ibp://host:0/0#k/w/READ",
		"ibp://host:70000/0#k/w/READ",
		"ibp://:6714/0#k/w/READ",
		"ibp://host:6714//w/READ",
		"ibp://host:6714/0#k//READ",
		"ibp://host:6714/0#k/w/DELETE",
		"ibp:/x/host:6714/0#k/w/READ",
	} {
		capability, err := ibp.ParseCapability(token)
		assert.Nil(t, capability, token)
		assert.True(t, ibp.ErrFormat.Has(err), token)
	}
}

func TestCapTypeCode(t *testing.T) {
	assert.Equal(t, ibp.ReadCap, ibp.Read.Code())
	assert.Equal(t, ibp.WriteCap, ibp.Write.Code())
	assert.Equal(t, ibp.ManageCap, ibp.Manage.Code())
	assert.Equal(t, ibp.CapCode(0), ibp.CapType("OTHER").Code())
}

func TestNilCapabilityString(t *testing.T) {
	var capability *ibp.Capability
	assert.Equal(t, "", capability.String())
}
