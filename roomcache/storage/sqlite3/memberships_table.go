// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"context"
	"database/sql"

	"github.com/nativechat/nativechat/internal"
	"github.com/nativechat/nativechat/internal/sqlutil"
	"github.com/nativechat/nativechat/roomcache/storage/tables"
)

const membershipsSchema = `
CREATE TABLE IF NOT EXISTS roomcache_memberships (
	room_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	member_record TEXT NOT NULL,
	PRIMARY KEY (room_id, user_id)
);`

const upsertMembershipSQL = "" +
	"INSERT INTO roomcache_memberships (room_id, user_id, member_record)" +
	" VALUES ($1, $2, $3)" +
	" ON CONFLICT (room_id, user_id) DO UPDATE SET member_record = $3"

const deleteMembershipSQL = "" +
	"DELETE FROM roomcache_memberships WHERE room_id = $1 AND user_id = $2"

const selectMembershipsSQL = "" +
	"SELECT user_id, member_record FROM roomcache_memberships" +
	" WHERE room_id = $1 ORDER BY user_id ASC"

const purgeMembershipsSQL = "" +
	"DELETE FROM roomcache_memberships WHERE room_id = $1"

type membershipsStatements struct {
	db                    *sql.DB
	upsertMembershipStmt  *sql.Stmt
	deleteMembershipStmt  *sql.Stmt
	selectMembershipsStmt *sql.Stmt
	purgeMembershipsStmt  *sql.Stmt
}

func NewSqliteMembershipsTable(db *sql.DB) (tables.Memberships, error) {
	s := &membershipsStatements{
		db: db,
	}
	_, err := db.Exec(membershipsSchema)
	if err != nil {
		return nil, err
	}
	return s, sqlutil.StatementList{
		{&s.upsertMembershipStmt, upsertMembershipSQL},
		{&s.deleteMembershipStmt, deleteMembershipSQL},
		{&s.selectMembershipsStmt, selectMembershipsSQL},
		{&s.purgeMembershipsStmt, purgeMembershipsSQL},
	}.Prepare(db)
}

func (s *membershipsStatements) UpsertMembership(
	ctx context.Context, txn *sql.Tx, roomID, userID string, record []byte,
) error {
	_, err := sqlutil.TxStmt(txn, s.upsertMembershipStmt).ExecContext(ctx, roomID, userID, record)
	return err
}

func (s *membershipsStatements) DeleteMembership(
	ctx context.Context, txn *sql.Tx, roomID, userID string,
) error {
	_, err := sqlutil.TxStmt(txn, s.deleteMembershipStmt).ExecContext(ctx, roomID, userID)
	return err
}

func (s *membershipsStatements) SelectMemberships(
	ctx context.Context, txn *sql.Tx, roomID string,
) ([]tables.MembershipRow, error) {
	rows, err := sqlutil.TxStmt(txn, s.selectMembershipsStmt).QueryContext(ctx, roomID)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectMemberships: rows.close() failed")

	var result []tables.MembershipRow
	for rows.Next() {
		var row tables.MembershipRow
		if err = rows.Scan(&row.UserID, &row.Record); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *membershipsStatements) PurgeMemberships(
	ctx context.Context, txn *sql.Tx, roomID string,
) error {
	_, err := sqlutil.TxStmt(txn, s.purgeMembershipsStmt).ExecContext(ctx, roomID)
	return err
}
