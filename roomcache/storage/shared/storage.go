// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package shared

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/nativechat/nativechat/internal/sqlutil"
	"github.com/nativechat/nativechat/roomcache/state"
	"github.com/nativechat/nativechat/roomcache/storage/tables"
	"github.com/nativechat/nativechat/roomcache/types"
)

// Database is the durable membership cache shared by every room of a
// session. Individual rooms persist through the handle returned by ForRoom.
type Database struct {
	DB          *sql.DB
	Writer      sqlutil.Writer
	Memberships tables.Memberships
}

// WithTransaction runs fn inside a single write transaction. Transactions
// are short-lived: they are scoped to one logical update and are committed
// or rolled back before control returns to the caller.
func (d *Database) WithTransaction(fn func(txn *sql.Tx) error) error {
	return d.Writer.Do(d.DB, nil, fn)
}

// ForRoom returns the persistence handle for a single room's membership.
func (d *Database) ForRoom(roomID types.RoomID) *RoomPersister {
	return &RoomPersister{d: d, roomID: roomID}
}

// PurgeRoom removes every stored membership record of a room, used when the
// client leaves and archives it.
func (d *Database) PurgeRoom(ctx context.Context, roomID types.RoomID) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.Memberships.PurgeMemberships(ctx, txn, string(roomID))
	})
}

// RoomPersister binds the membership table to a single room. It implements
// both state.Persister and state.MembershipLoader.
type RoomPersister struct {
	d      *Database
	roomID types.RoomID
}

func (p *RoomPersister) UpsertMembership(ctx context.Context, txn *sql.Tx, m *state.Member) error {
	record, err := m.Record()
	if err != nil {
		return err
	}
	return p.d.Memberships.UpsertMembership(ctx, txn, string(p.roomID), string(m.ID()), record)
}

func (p *RoomPersister) DeleteMembership(ctx context.Context, txn *sql.Tx, userID types.UserID) error {
	return p.d.Memberships.DeleteMembership(ctx, txn, string(p.roomID), string(userID))
}

func (p *RoomPersister) SelectMemberships(ctx context.Context, txn *sql.Tx) ([]*state.Member, error) {
	rows, err := p.d.Memberships.SelectMemberships(ctx, txn, string(p.roomID))
	if err != nil {
		return nil, err
	}
	members := make([]*state.Member, 0, len(rows))
	for _, row := range rows {
		member, err := state.NewMemberFromRecord(types.UserID(row.UserID), row.Record)
		if err != nil {
			return nil, errors.Wrapf(err, "room %q", p.roomID)
		}
		members = append(members, member)
	}
	return members, nil
}
