// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package tables

import (
	"context"
	"database/sql"
)

// MembershipRow is one stored membership record: the user ID key and the
// opaque serialised member value.
type MembershipRow struct {
	UserID string
	Record []byte
}

// Memberships is the durable per-room membership cache. All writes happen
// within the caller's transaction so that the cache stays consistent with
// the in-memory state that triggered them.
type Memberships interface {
	UpsertMembership(ctx context.Context, txn *sql.Tx, roomID, userID string, record []byte) error
	DeleteMembership(ctx context.Context, txn *sql.Tx, roomID, userID string) error
	// SelectMemberships scans every record of a room in user ID order.
	SelectMemberships(ctx context.Context, txn *sql.Tx, roomID string) ([]MembershipRow, error)
	PurgeMemberships(ctx context.Context, txn *sql.Tx, roomID string) error
}
