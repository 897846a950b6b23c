// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"storj.io/exnode/pkg/allocation"
	"storj.io/exnode/pkg/ibp"
	"storj.io/exnode/pkg/process"
)

var statusCmd = &cobra.Command{
	Use:   "status <host:port>",
	Short: "Queries the status of a depot",
	Args:  cobra.ExactArgs(1),
	RunE:  cmdStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func parseDepot(address string) (allocation.Depot, error) {
	host, portString, err := net.SplitHostPort(address)
	if err != nil {
		return allocation.Depot{}, errs.New("invalid depot address %q: %v", address, err)
	}
	port, err := strconv.Atoi(portString)
	if err != nil || port <= 0 {
		return allocation.Depot{}, errs.New("invalid depot port %q", portString)
	}
	return allocation.Depot{Host: host, Port: port}, nil
}

func cmdStatus(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)

	depot, err := parseDepot(args[0])
	if err != nil {
		return err
	}

	setup, err := newSetup(cmd)
	if err != nil {
		return err
	}
	defer setup.close()

	status, err := setup.client.GetStatus(ctx, depot, ibp.StatusOptions{Password: setup.config.Depot.Password})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "depot:          %s\n", depot.Address())
	_, _ = fmt.Fprintf(out, "total:          %d\n", status.Total)
	_, _ = fmt.Fprintf(out, "used:           %d\n", status.Used)
	_, _ = fmt.Fprintf(out, "volatile:       %d\n", status.Volatile)
	_, _ = fmt.Fprintf(out, "used volatile:  %d\n", status.UsedVolatile)
	_, _ = fmt.Fprintf(out, "max duration:   %v\n", status.MaxDuration)
	return nil
}
