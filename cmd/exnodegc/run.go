// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"net"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"golang.org/x/sync/errgroup"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/exnode/pkg/gc"
	"storj.io/exnode/pkg/process"
)

var (
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Runs the collector every gc.interval until interrupted",
		Args:  cobra.NoArgs,
		RunE:  cmdRun,
	}

	debugAddr string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&debugAddr, "debug.addr", "", "address to serve debug endpoints on, disabled when empty")
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	setup, err := newSetup(cmd)
	if err != nil {
		return err
	}
	defer setup.close()

	if !setup.config.GC.Enabled {
		setup.log.Warn("gc.enabled is false, nothing will be collected")
	}

	store, err := setup.openStore()
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, store.Close()) }()

	service := gc.NewService(setup.log.Named("gc"), setup.collector(store), setup.config.GC)
	defer func() { err = errs.Combine(err, service.Close()) }()

	group, ctx := errgroup.WithContext(ctx)
	if debugAddr != "" {
		listener, err := net.Listen("tcp", debugAddr)
		if err != nil {
			return process.Error.Wrap(err)
		}
		debug := process.NewDebugServer(setup.log.Named("debug"), listener, monkit.Default)
		group.Go(func() error { return debug.Run(ctx) })
	}
	group.Go(func() error { return service.Run(ctx) })

	err = group.Wait()
	if errs.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
