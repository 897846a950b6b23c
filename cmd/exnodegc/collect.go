// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/exnode/pkg/process"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Runs a single garbage collection pass",
	Args:  cobra.NoArgs,
	RunE:  cmdCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func cmdCollect(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	setup, err := newSetup(cmd)
	if err != nil {
		return err
	}
	defer setup.close()

	store, err := setup.openStore()
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, store.Close()) }()

	stats, err := setup.collector(store).Run(ctx)
	if err != nil {
		return err
	}
	setup.log.Info("collection finished", stats.Fields()...)
	process.LogStats(setup.log.Named("stats"), monkit.Default, "storj.io/exnode")
	return nil
}
