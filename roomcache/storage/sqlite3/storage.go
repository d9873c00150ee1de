// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"database/sql"
	"time"

	// Import the sqlite3 database driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/nativechat/nativechat/internal/sqlutil"
	"github.com/nativechat/nativechat/roomcache/storage/shared"
	"github.com/nativechat/nativechat/setup/config"
)

// NewDatabase opens the membership cache database described by the given
// options and prepares its tables.
func NewDatabase(dbProperties *config.DatabaseOptions) (*shared.Database, error) {
	if !dbProperties.ConnectionString.IsSQLite() {
		return nil, errors.Errorf("unsupported connection string %q: expected file: prefix", dbProperties.ConnectionString)
	}
	db, err := sql.Open("sqlite3", string(dbProperties.ConnectionString))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// SQLite allows only one writer at a time and an in-memory database
	// exists per connection, so the pool is pinned to a single connection
	// regardless of the configured limits.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if dbProperties.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(dbProperties.ConnMaxLifetimeSeconds) * time.Second)
	}

	memberships, err := NewSqliteMembershipsTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare memberships table")
	}
	return &shared.Database{
		DB:          db,
		Writer:      sqlutil.NewExclusiveWriter(),
		Memberships: memberships,
	}, nil
}
