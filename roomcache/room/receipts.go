// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package room

import (
	"github.com/matrix-org/gomatrixserverlib/spec"

	"github.com/nativechat/nativechat/roomcache/types"
)

// UpdateReceipt records that userID has read up to eventID. A user has at
// most one receipt per room, so any previous receipt is unlinked from the
// reverse index before the new one is recorded.
func (r *Room) UpdateReceipt(userID types.UserID, eventID types.EventID, ts spec.Timestamp) {
	if previous, exists := r.receiptsByUser[userID]; exists {
		readers := r.receiptsByEvent[previous.EventID]
		for i, reader := range readers {
			if reader == userID {
				readers = append(readers[:i], readers[i+1:]...)
				break
			}
		}
		if len(readers) == 0 {
			delete(r.receiptsByEvent, previous.EventID)
		} else {
			r.receiptsByEvent[previous.EventID] = readers
		}
	}
	r.receiptsByUser[userID] = types.Receipt{EventID: eventID, TS: ts}
	r.receiptsByEvent[eventID] = append(r.receiptsByEvent[eventID], userID)
}

// ReceiptFromUser returns userID's read receipt, if it has one.
func (r *Room) ReceiptFromUser(userID types.UserID) (types.Receipt, bool) {
	receipt, exists := r.receiptsByUser[userID]
	return receipt, exists
}

// ReceiptsForEvent returns the users whose read receipt sits exactly on
// eventID, in the order the receipts arrived.
func (r *Room) ReceiptsForEvent(eventID types.EventID) []types.UserID {
	return r.receiptsByEvent[eventID]
}

// HasUnread reports whether something still awaits the user's attention.
// The buffer is walked newest to oldest: the user's own read receipt on any
// event marks the room read, a message from someone else marks it unread,
// and a buffer that decides neither way (including an empty one, where
// nothing is known about recent history) counts as unread.
func (r *Room) HasUnread() bool {
	receipt, hasReceipt := r.receiptsByUser[r.ownUserID]
	for i := len(r.buffer) - 1; i >= 0; i-- {
		events := r.buffer[i].Events
		for j := len(events) - 1; j >= 0; j-- {
			ev := &events[j]
			if hasReceipt && receipt.EventID == ev.EventID {
				return false
			}
			if ev.Type == "m.room.message" && ev.Sender != r.ownUserID {
				return true
			}
		}
	}
	return true
}
