// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration for the client cache.
type Config struct {
	RoomCache RoomCache `yaml:"room_cache"`
}

// Defaults sets the fields to sensible defaults.
func (c *Config) Defaults() {
	c.RoomCache.Defaults()
}

// Verify checks the config and adds anything wrong to configErrs.
func (c *Config) Verify(configErrs *ConfigErrors) {
	c.RoomCache.Verify(configErrs)
}

// Load parses the given config file, applies defaults for anything unset and
// verifies the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return loadConfig(data)
}

func loadConfig(data []byte) (*Config, error) {
	var c Config
	c.Defaults()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	var configErrs ConfigErrors
	c.Verify(&configErrs)
	if len(configErrs) > 0 {
		return nil, configErrs
	}
	return &c, nil
}

// ConfigErrors stores problems encountered when parsing a config file.
// It implements the error interface.
type ConfigErrors []string

// Add appends an error to the list of errors in this ConfigErrors.
// It is a wrapper to the builtin append and hides pointers from
// the client code.
// This method is safe to use with an uninitialized ConfigErrors because
// if it is nil, it will be properly allocated.
func (errs *ConfigErrors) Add(str string) {
	*errs = append(*errs, str)
}

// Error returns a string detailing how many errors were contained within a
// ConfigErrors type.
func (errs ConfigErrors) Error() string {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Sprintf(
		"%s (and %d other problems)", errs[0], len(errs)-1,
	)
}

// checkNotEmpty verifies the given value is not empty in the configuration.
// If it is, adds an error to the list.
func checkNotEmpty(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

// checkPositive verifies the given value is positive (zero included)
// in the configuration. If it is not, adds an error to the list.
func checkPositive(configErrs *ConfigErrors, key string, value int64) {
	if value < 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d", key, value))
	}
}
