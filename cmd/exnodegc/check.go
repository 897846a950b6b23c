// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"storj.io/exnode/pkg/allocation"
	"storj.io/exnode/pkg/process"
)

var checkCmd = &cobra.Command{
	Use:   "check <record.json>",
	Short: "Tests whether an allocation record is still live",
	Args:  cobra.ExactArgs(1),
	RunE:  cmdCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func cmdCheck(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return errs.Wrap(err)
	}
	record, err := allocation.ParseRecord(data)
	if err != nil {
		return err
	}

	setup, err := newSetup(cmd)
	if err != nil {
		return err
	}
	defer setup.close()

	state := "dead"
	if setup.factory().Build(ctx, record) != nil {
		state = "live"
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", record.ID, state)
	return nil
}
