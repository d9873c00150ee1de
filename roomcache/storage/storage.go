// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package storage

import (
	"context"
	"database/sql"

	"github.com/nativechat/nativechat/roomcache/state"
	"github.com/nativechat/nativechat/roomcache/storage/shared"
	"github.com/nativechat/nativechat/roomcache/storage/sqlite3"
	"github.com/nativechat/nativechat/roomcache/types"
	"github.com/nativechat/nativechat/setup/config"
)

// RoomStore is the per-room persistence surface the state layer needs.
type RoomStore interface {
	state.Persister
	state.MembershipLoader
}

// Database is the session-wide durable membership cache.
type Database interface {
	WithTransaction(fn func(txn *sql.Tx) error) error
	ForRoom(roomID types.RoomID) *shared.RoomPersister
	PurgeRoom(ctx context.Context, roomID types.RoomID) error
}

// NewDatabase opens a membership cache for the given database options.
func NewDatabase(dbProperties *config.DatabaseOptions) (Database, error) {
	return sqlite3.NewDatabase(dbProperties)
}
