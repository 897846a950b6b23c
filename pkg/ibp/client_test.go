// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package ibp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/exnode/internal/ibptest"
	"storj.io/exnode/internal/testcontext"
	"storj.io/exnode/pkg/allocation"
	"storj.io/exnode/pkg/ibp"
)

func newDepot(t *testing.T) *ibptest.Depot {
	depot, err := ibptest.New(zaptest.NewLogger(t).Named("depot"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = depot.Close() })
	return depot
}

func depotOf(depot *ibptest.Depot) allocation.Depot {
	return allocation.Depot{Host: depot.Host(), Port: depot.Port()}
}

func TestGetStatus(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	client := ibp.NewClient(zaptest.NewLogger(t), ibp.DefaultConfig)

	status, err := client.GetStatus(ctx, depotOf(depot), ibp.StatusOptions{})
	require.NoError(t, err)
	assert.Equal(t, &ibp.DepotStatus{
		Total:       1048576,
		Used:        1024,
		MaxDuration: 24 * time.Hour,
	}, status)
	assert.Equal(t, []string{"0 4 1 ibp 30\n"}, depot.Commands())

	depot.SetStatus("1 2")
	_, err = client.GetStatus(ctx, depotOf(depot), ibp.StatusOptions{})
	assert.True(t, ibp.ErrFormat.Has(err))
}

func TestGetStatusPassword(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	depot.SetPassword("secret")
	log := zaptest.NewLogger(t)

	_, err := ibp.NewClient(log, ibp.DefaultConfig).GetStatus(ctx, depotOf(depot), ibp.StatusOptions{})
	assert.True(t, ibp.Error.Has(err))

	client := ibp.NewClient(log, ibp.Config{Password: "secret"})
	_, err = client.GetStatus(ctx, depotOf(depot), ibp.StatusOptions{})
	require.NoError(t, err)

	// options take precedence over the client configuration
	_, err = client.GetStatus(ctx, depotOf(depot), ibp.StatusOptions{Password: "wrong"})
	assert.Error(t, err)

	commands := depot.Commands()
	assert.Equal(t, "0 4 1 ibp 30\n", commands[0])
	assert.Equal(t, "0 4 1 secret 30\n", commands[1])
	assert.Equal(t, "0 4 1 wrong 30\n", commands[2])
}

func TestAllocateStoreLoad(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	client := ibp.NewClient(zaptest.NewLogger(t), ibp.DefaultConfig)

	alloc, err := client.AllocateHardByteArray(ctx, depotOf(depot), 100, 0)
	require.NoError(t, err)
	assert.Equal(t, depot.Host(), alloc.Host)
	assert.Equal(t, depot.Port(), alloc.Port)
	assert.EqualValues(t, 100, alloc.Size)
	assert.EqualValues(t, 100, alloc.DepotSize)
	assert.NotNil(t, alloc.ReadCapability())
	assert.NotNil(t, alloc.WriteCapability())
	assert.NotNil(t, alloc.ManageCapability())
	assert.WithinDuration(t, alloc.Start.Add(ibp.DefaultDuration), alloc.End, time.Second)
	assert.Equal(t, "0 1 2 1 10800 100 30\n", depot.Commands()[0])

	data := []byte("hello depot")
	duration, err := client.Store(ctx, alloc, data, ibp.StoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, ibp.DefaultDuration, duration)
	assert.EqualValues(t, len(data), alloc.DepotSize)
	assert.EqualValues(t, 0, alloc.DepotOffset)

	loaded, err := client.Load(ctx, alloc, ibp.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, data, loaded)

	partial, err := client.Load(ctx, alloc, ibp.LoadOptions{Offset: 6, Length: 5})
	require.NoError(t, err)
	assert.Equal(t, []byte("depot"), partial)
}

func TestAllocateShorthands(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	client := ibp.NewClient(zaptest.NewLogger(t), ibp.DefaultConfig)
	target := depotOf(depot)

	for _, allocate := range []func(context.Context, allocation.Depot, int64, time.Duration) (*ibp.Allocation, error){
		client.AllocateSoftByteArray, client.AllocateHardByteArray,
		client.AllocateSoftBuffer, client.AllocateHardBuffer,
		client.AllocateSoftFIFO, client.AllocateHardFIFO,
		client.AllocateSoftCircularQ, client.AllocateHardCircularQ,
	} {
		_, err := allocate(ctx, target, 10, time.Minute)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"0 1 1 1 60 10 30\n", "0 1 2 1 60 10 30\n",
		"0 1 1 2 60 10 30\n", "0 1 2 2 60 10 30\n",
		"0 1 1 3 60 10 30\n", "0 1 2 3 60 10 30\n",
		"0 1 1 4 60 10 30\n", "0 1 2 4 60 10 30\n",
	}, depot.Commands())
}

func TestStoreRejected(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	client := ibp.NewClient(zaptest.NewLogger(t), ibp.DefaultConfig)

	alloc, err := client.AllocateHardByteArray(ctx, depotOf(depot), 4, 0)
	require.NoError(t, err)

	_, err = client.Store(ctx, alloc, []byte("too large"), ibp.StoreOptions{})
	require.Error(t, err)

	var depotErr *ibp.DepotError
	require.True(t, errors.As(err, &depotErr))
	assert.Equal(t, -19, depotErr.Code)
	assert.Equal(t, "IBP_E_WOULD_EXCEED_LIMIT", depotErr.Description)
	assert.True(t, ibp.Error.Has(err))
	assert.EqualValues(t, 4, alloc.DepotSize)
}

func TestProbeAndManage(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	client := ibp.NewClient(zaptest.NewLogger(t), ibp.DefaultConfig)

	alloc, err := client.AllocateHardByteArray(ctx, depotOf(depot), 64, time.Hour)
	require.NoError(t, err)

	status, err := client.Probe(ctx, alloc)
	require.NoError(t, err)
	assert.Equal(t, &ibp.ProbeStatus{
		ReadCount:   1,
		WriteCount:  1,
		MaxSize:     64,
		Duration:    time.Hour,
		Reliability: ibp.Hard,
		Type:        ibp.ByteArray,
	}, status)

	_, err = client.Manage(ctx, alloc, ibp.ManageOptions{Mode: ibp.ManageIncr, CapType: ibp.ReadCap})
	require.NoError(t, err)
	_, err = client.Manage(ctx, alloc, ibp.ManageOptions{Duration: 2 * time.Hour})
	require.NoError(t, err)

	status, err = client.Probe(ctx, alloc)
	require.NoError(t, err)
	assert.Equal(t, 2, status.ReadCount)
	assert.Equal(t, 2*time.Hour, status.Duration)

	depot.Drop(alloc.ManageCapability().Key)
	_, err = client.Probe(ctx, alloc)
	var depotErr *ibp.DepotError
	require.True(t, errors.As(err, &depotErr))
	assert.Equal(t, "IBP_E_CAP_NOT_FOUND", depotErr.Description)
}

func TestSend(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	source := newDepot(t)
	destination := newDepot(t)
	client := ibp.NewClient(zaptest.NewLogger(t), ibp.DefaultConfig)

	src, err := client.AllocateHardByteArray(ctx, depotOf(source), 10, 0)
	require.NoError(t, err)
	dst, err := client.AllocateHardByteArray(ctx, depotOf(destination), 10, 0)
	require.NoError(t, err)

	duration, err := client.Send(ctx, src, dst, ibp.SendOptions{Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, ibp.DefaultDuration, duration)

	commands := source.Commands()
	expected := "1 5 " + src.ReadCapability().Key + " " + dst.WriteCapability().String() + " " +
		src.ReadCapability().WRMKey + " 2 8 30 30 30\n"
	assert.Equal(t, expected, commands[len(commands)-1])
}

func TestNetworkFailures(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	target := depotOf(depot)
	require.NoError(t, depot.Close())

	client := ibp.NewClient(zaptest.NewLogger(t), ibp.Config{Timeout: time.Second})
	_, err := client.GetStatus(ctx, target, ibp.StatusOptions{})
	assert.True(t, ibp.ErrNetwork.Has(err))
}

func TestTimeout(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	depot.Hang(int(ibp.CmdStatus))

	client := ibp.NewClient(zaptest.NewLogger(t), ibp.Config{Timeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := client.GetStatus(ctx, depotOf(depot), ibp.StatusOptions{})
	assert.True(t, ibp.ErrNetwork.Has(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCancel(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	depot.Hang(int(ibp.CmdStatus))

	client := ibp.NewClient(zaptest.NewLogger(t), ibp.Config{Timeout: time.Minute})

	cancelCtx, cancel := context.WithCancel(ctx)
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := client.GetStatus(cancelCtx, depotOf(depot), ibp.StatusOptions{})
	assert.True(t, ibp.ErrNetwork.Has(err))
}

func TestDepotErrorCodes(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	depot := newDepot(t)
	depot.Fail(int(ibp.CmdAllocate), -999)

	client := ibp.NewClient(zaptest.NewLogger(t), ibp.DefaultConfig)
	_, err := client.AllocateHardByteArray(ctx, depotOf(depot), 1, 0)

	var depotErr *ibp.DepotError
	require.True(t, errors.As(err, &depotErr))
	assert.Equal(t, -999, depotErr.Code)
	assert.Equal(t, ibp.UnknownError, depotErr.Description)
}
