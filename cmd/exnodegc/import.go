// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"storj.io/exnode/pkg/exnode"
	"storj.io/exnode/pkg/process"
)

var importCmd = &cobra.Command{
	Use:   "import <dump.json>",
	Short: "Loads exnodes and extents from a dump into the store",
	Args:  cobra.ExactArgs(1),
	RunE:  cmdImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func cmdImport(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	file, err := os.Open(args[0])
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() { err = errs.Combine(err, file.Close()) }()

	dump, err := exnode.ReadDump(file)
	if err != nil {
		return err
	}

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

	nodes, extents, err := store.Import(ctx, dump)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d exnodes and %d extents\n", nodes, extents)
	return nil
}
