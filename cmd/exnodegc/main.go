// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/exnode/pkg/allocation"
	"storj.io/exnode/pkg/config"
	"storj.io/exnode/pkg/exnode"
	"storj.io/exnode/pkg/gc"
	"storj.io/exnode/pkg/ibp"
	"storj.io/exnode/pkg/process"
)

var (
	rootCmd = &cobra.Command{
		Use:           "exnodegc",
		Short:         "exnode garbage collector",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configPath string
	logConfig  process.LogConfig
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "configuration file (yaml, json or toml)")
	logConfig.BindFlags(flags)

	defaults := config.Default()
	flags.Duration("depot.timeout", defaults.Depot.Timeout, "timeout of a single depot call")
	flags.String("depot.password", defaults.Depot.Password, "password sent with depot status inquiries")
	flags.Bool("gc.enabled", defaults.GC.Enabled, "run the periodic collector")
	flags.Duration("gc.interval", defaults.GC.Interval, "how frequently the collector runs")
	flags.Int("gc.concurrency", defaults.GC.Concurrency, "how many roots and allocations are evaluated at once")
	flags.Bool("gc.dry-run", defaults.GC.DryRun, "evaluate everything but delete nothing")
	flags.String("store.type", defaults.Store.Type, "exnode store backend: memory, bolt, redis or badger")
	flags.Bool("store.debug", defaults.Store.Debug, "log every store call")
}

func main() {
	process.Execute(rootCmd)
}

// setup is shared by the commands.
type setup struct {
	log    *zap.Logger
	config *config.Config
	client *ibp.Client
}

func newSetup(cmd *cobra.Command) (*setup, error) {
	log, err := process.NewLogger(logConfig)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, errs.Combine(err, log.Sync())
	}

	return &setup{
		log:    log,
		config: cfg,
		client: ibp.NewClient(log.Named("ibp"), cfg.Depot.Client()),
	}, nil
}

func (setup *setup) factory() *allocation.Factory {
	factory := allocation.NewFactory(setup.log.Named("allocation"))
	ibp.Register(factory, setup.client)
	return factory
}

func (setup *setup) openStore() (*exnode.Store, error) {
	kv, err := config.OpenStore(setup.log, setup.config.Store)
	if err != nil {
		return nil, err
	}
	return exnode.NewStore(setup.log.Named("exnode"), kv), nil
}

func (setup *setup) collector(store *exnode.Store) *gc.Collector {
	return gc.NewCollector(setup.log.Named("gc"), store, setup.factory(), setup.config.GC)
}

func (setup *setup) close() {
	_ = setup.log.Sync()
}
