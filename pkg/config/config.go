// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package config loads the exnode collector configuration.
//
// Values come from, in order of precedence: changed command line flags,
// EXNODE_* environment variables, the configuration file and defaults.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"

	"storj.io/exnode/pkg/gc"
	"storj.io/exnode/pkg/ibp"
)

// Error is the config errs class
var Error = errs.Class("config")

// EnvPrefix prefixes environment variables, EXNODE_GC_INTERVAL sets gc.interval.
const EnvPrefix = "EXNODE"

// Config is the complete configuration.
type Config struct {
	Depot DepotConfig `mapstructure:"depot"`
	GC    gc.Config   `mapstructure:"gc"`
	Store StoreConfig `mapstructure:"store"`
}

// DepotConfig configures depot communication.
type DepotConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Password string        `mapstructure:"password" validate:"required"`
}

// Client returns the depot client configuration.
func (config DepotConfig) Client() ibp.Config {
	return ibp.Config{Timeout: config.Timeout, Password: config.Password}
}

// Load reads the configuration file at path, which may be empty, overlays
// environment variables and flags, applies defaults and validates the
// result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, Error.Wrap(err)
		}
	}
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, Error.Wrap(err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, Error.New("reading %q: %v", path, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, Error.Wrap(err)
	}

	ApplyDefaults(&config)
	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// envKeys are bound explicitly so that AutomaticEnv sees them during
// Unmarshal even when neither a flag nor the file mentions them.
var envKeys = []string{
	"depot.timeout", "depot.password",
	"gc.enabled", "gc.interval", "gc.concurrency", "gc.dry-run",
	"store.type", "store.debug",
}
