// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package room

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/nativechat/nativechat/roomcache/state"
	"github.com/nativechat/nativechat/roomcache/types"
)

// SessionData is everything a room needs to carry across a restart that is
// not already in the durable membership cache. Only the newest timeline
// batch is kept: older batches can be re-fetched through its pagination
// token, and persisting them would duplicate history unboundedly.
type SessionData struct {
	RoomID            types.RoomID                   `json:"room_id"`
	State             state.Snapshot                 `json:"state"`
	Batch             *Batch                         `json:"batch,omitempty"`
	HighlightCount    int                            `json:"highlight_count,omitempty"`
	NotificationCount int                            `json:"notification_count,omitempty"`
	Receipts          map[types.UserID]types.Receipt `json:"receipts,omitempty"`
}

// SessionData captures the room for session persistence.
func (r *Room) SessionData() *SessionData {
	data := &SessionData{
		RoomID:            r.id,
		State:             r.initialState.Snapshot(),
		HighlightCount:    r.highlightCount,
		NotificationCount: r.notificationCount,
	}
	if len(r.buffer) != 0 {
		newest := r.buffer[len(r.buffer)-1]
		data.Batch = &Batch{
			PrevBatch: newest.PrevBatch,
			Events:    append([]types.Event(nil), newest.Events...),
		}
	}
	if len(r.receiptsByUser) != 0 {
		data.Receipts = make(map[types.UserID]types.Receipt, len(r.receiptsByUser))
		for userID, receipt := range r.receiptsByUser {
			data.Receipts[userID] = receipt
		}
	}
	return data
}

// RestoreSession rebuilds the room from persisted session data and the
// durable membership cache: the metadata snapshot and memberships form the
// historical anchor, and the saved batch is replayed on top of a copy of it
// to reproduce the live view. No notifications fire during restoration.
func (r *Room) RestoreSession(ctx context.Context, txn *sql.Tx, data *SessionData) error {
	if data.RoomID != r.id {
		return errors.Errorf("session data for room %q restored into room %q", data.RoomID, r.id)
	}

	r.initialState = state.NewRoomStateFromSnapshot(data.State)
	if r.store != nil {
		if err := r.initialState.LoadMembers(ctx, txn, r.store); err != nil {
			return errors.Wrap(err, "restoring membership")
		}
	}
	r.state = r.initialState.Clone()

	r.buffer = nil
	if data.Batch != nil {
		batch := &Batch{
			PrevBatch: data.Batch.PrevBatch,
			Events:    append([]types.Event(nil), data.Batch.Events...),
		}
		for i := range batch.Events {
			if _, err := r.state.Apply(ctx, &batch.Events[i], nil, nil, nil); err != nil {
				return errors.Wrap(err, "replaying saved timeline batch")
			}
			r.state.PruneDeparted(nil)
		}
		r.buffer = append(r.buffer, batch)
	}

	r.highlightCount = data.HighlightCount
	r.notificationCount = data.NotificationCount

	r.receiptsByUser = make(map[types.UserID]types.Receipt, len(data.Receipts))
	r.receiptsByEvent = make(map[types.EventID][]types.UserID)
	for userID, receipt := range data.Receipts {
		r.receiptsByUser[userID] = receipt
		r.receiptsByEvent[receipt.EventID] = append(r.receiptsByEvent[receipt.EventID], userID)
	}
	return nil
}
