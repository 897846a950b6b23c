// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storj.io/exnode/storage/testsuite"
)

func TestSuite(t *testing.T) {
	server := miniredis.RunT(t)

	store, err := NewClient(server.Addr(), "", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	testsuite.RunTests(t, store)
}

func TestNewClientFrom(t *testing.T) {
	server := miniredis.RunT(t)

	store, err := NewClientFrom("redis://" + server.Addr() + "?db=0")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewClientFrom("http://" + server.Addr() + "?db=0")
	assert.Error(t, err)

	_, err = NewClientFrom("redis://" + server.Addr())
	assert.Error(t, err)
}

func TestEscapeMatch(t *testing.T) {
	assert.Equal(t, "child/a/", escapeMatch("child/a/"))
	assert.Equal(t, `star/\*/`, escapeMatch("star/*/"))
	assert.Equal(t, `\[x\]\?\\`, escapeMatch(`[x]?\`))
}
