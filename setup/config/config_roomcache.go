// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package config

import "fmt"

// RoomCache configures the per-room state cache.
type RoomCache struct {
	// The maximum number of timeline events buffered in memory per room.
	// Older batches are folded into the historical state anchor once the
	// total exceeds this ceiling.
	TimelineBufferSize int `yaml:"timeline_buffer_size"`

	// Database for the durable membership cache.
	Database DatabaseOptions `yaml:"database"`
}

func (c *RoomCache) Defaults() {
	c.TimelineBufferSize = 50
	c.Database.Defaults(10)
}

func (c *RoomCache) Verify(configErrs *ConfigErrors) {
	checkPositive(configErrs, "room_cache.timeline_buffer_size", int64(c.TimelineBufferSize))
	if c.TimelineBufferSize == 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: must be greater than zero", "room_cache.timeline_buffer_size"))
	}
	checkNotEmpty(configErrs, "room_cache.database.connection_string", string(c.Database.ConnectionString))
}

// DataSource is a database connection string, e.g. "file:memberships.db".
type DataSource string

func (d DataSource) IsSQLite() bool {
	return len(d) >= 5 && d[:5] == "file:"
}

// DatabaseOptions contains the database connection options.
type DatabaseOptions struct {
	// The connection string, file:filename.db
	ConnectionString DataSource `yaml:"connection_string"`
	// Maximum open connections to the DB (0 = use default, negative means unlimited)
	MaxOpenConnections int `yaml:"max_open_conns"`
	// Maximum idle connections to the DB (0 = use default, negative means unlimited)
	MaxIdleConnections int `yaml:"max_idle_conns"`
	// maximum amount of time (in seconds) a connection may be reused
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime"`
}

func (d *DatabaseOptions) Defaults(conns int) {
	d.MaxOpenConnections = conns
	d.MaxIdleConnections = 2
	d.ConnMaxLifetimeSeconds = -1
}
