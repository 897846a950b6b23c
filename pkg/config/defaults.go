// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package config

import (
	"strings"

	"storj.io/exnode/pkg/gc"
	"storj.io/exnode/pkg/ibp"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var config Config
	ApplyDefaults(&config)
	return &config
}

// ApplyDefaults fills every zero value with its default.
func ApplyDefaults(config *Config) {
	if config.Depot.Timeout == 0 {
		config.Depot.Timeout = ibp.DefaultTimeout
	}
	if config.Depot.Password == "" {
		config.Depot.Password = ibp.DefaultPassword
	}

	if config.GC.Interval == 0 {
		config.GC.Interval = gc.DefaultInterval
	}
	if config.GC.Concurrency == 0 {
		config.GC.Concurrency = gc.DefaultConcurrency
	}

	config.Store.Type = strings.ToLower(config.Store.Type)
	if config.Store.Type == "" {
		config.Store.Type = StoreMemory
	}
}
