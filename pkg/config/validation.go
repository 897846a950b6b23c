// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package config

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags and the rules tags can not express.
func Validate(config *Config) error {
	if err := validate.Struct(config); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			first := validationErrs[0]
			return Error.New("%s: failed on %q (value: %v)", first.Namespace(), first.Tag(), first.Value())
		}
		return Error.Wrap(err)
	}

	if config.GC.Enabled && config.GC.Interval < time.Second {
		return Error.New("gc.interval must be at least 1s when gc is enabled, got %v", config.GC.Interval)
	}
	return nil
}
