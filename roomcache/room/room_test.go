// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package room

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nativechat/nativechat/roomcache/types"
	"github.com/nativechat/nativechat/setup/config"
)

const (
	testRoomID = types.RoomID("!test:test")
	testUserID = types.UserID("@me:test")
)

// recordingSink captures notifications in delivery order.
type recordingSink struct {
	notifications []types.Notification
}

func (s *recordingSink) Notify(n types.Notification) {
	s.notifications = append(s.notifications, n)
}

func (s *recordingSink) reset() { s.notifications = nil }

func newTestRoom(sink types.Sink, bufferSize int) *Room {
	cfg := &config.RoomCache{TimelineBufferSize: bufferSize}
	return NewRoom(cfg, testRoomID, testUserID, sink, nil, nil, nil)
}

func messageEvent(eventID, sender, body string) types.Event {
	content, _ := json.Marshal(types.MessageContent{MsgType: types.MsgTypeText, Body: body})
	return types.Event{
		Type:    "m.room.message",
		Sender:  types.UserID(sender),
		EventID: types.EventID(eventID),
		Content: content,
	}
}

func nameEvent(name string) types.Event {
	stateKey := ""
	content, _ := json.Marshal(map[string]string{"name": name})
	return types.Event{Type: spec.MRoomName, StateKey: &stateKey, Content: content}
}

func joinEvent(userID, displayName string) types.Event {
	content := map[string]string{"membership": spec.Join}
	if displayName != "" {
		content["displayname"] = displayName
	}
	raw, _ := json.Marshal(content)
	stateKey := userID
	return types.Event{
		Type:     spec.MRoomMember,
		Sender:   types.UserID(userID),
		StateKey: &stateKey,
		Content:  raw,
	}
}

func timelineDelta(prevBatch string, events ...types.Event) *types.JoinedRoom {
	return &types.JoinedRoom{
		Timeline: types.Timeline{PrevBatch: prevBatch, Events: events},
	}
}

func mustDispatch(t *testing.T, r *Room, delta *types.JoinedRoom) bool {
	t.Helper()
	changed, err := r.Dispatch(context.Background(), nil, delta)
	require.NoError(t, err)
	return changed
}

func TestDispatchCounters(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRoom(sink, 50)

	delta := timelineDelta("t1")
	delta.UnreadNotifications = types.UnreadNotifications{HighlightCount: 2, NotificationCount: 5}
	mustDispatch(t, r, delta)

	assert.Equal(t, 2, r.HighlightCount())
	assert.Equal(t, 5, r.NotificationCount())
	assert.Equal(t, []types.Notification{
		types.HighlightCountChanged{Old: 0},
		types.NotificationCountChanged{Old: 0},
	}, sink.notifications)

	// Unchanged counters stay silent.
	sink.reset()
	delta = timelineDelta("t2")
	delta.UnreadNotifications = types.UnreadNotifications{HighlightCount: 2, NotificationCount: 5}
	mustDispatch(t, r, delta)
	assert.Empty(t, sink.notifications)
}

func TestDispatchStateAndMessages(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRoom(sink, 50)

	changed := mustDispatch(t, r, timelineDelta("t1",
		nameEvent("Ops"),
		joinEvent("@alice:test", "Alice"),
		messageEvent("$1", "@alice:test", "hello"),
	))
	assert.True(t, changed)
	assert.Equal(t, "Ops", r.State().Name())
	assert.Equal(t, 3, r.BufferSize())
	assert.Equal(t, "t1", r.PrevBatch())

	var kinds []string
	for _, n := range sink.notifications {
		kinds = append(kinds, fmt.Sprintf("%T", n))
	}
	assert.Equal(t, []string{
		"types.NameChanged",
		"types.Message",
		"types.MembershipChanged",
		"types.Message",
		"types.Message",
		"types.StateChanged",
	}, kinds)

	// A delta of pure messages reports no state change.
	sink.reset()
	changed = mustDispatch(t, r, timelineDelta("t2", messageEvent("$2", "@alice:test", "again")))
	assert.False(t, changed)
	for _, n := range sink.notifications {
		assert.IsType(t, types.Message{}, n)
	}
}

func TestDispatchMessageNotifiedAfterBuffering(t *testing.T) {
	var sizeAtNotify int
	r := newTestRoom(nil, 50)
	r.sink = types.SinkFunc(func(n types.Notification) {
		if _, ok := n.(types.Message); ok {
			sizeAtNotify = r.BufferSize()
		}
	})

	mustDispatch(t, r, timelineDelta("t1", messageEvent("$1", "@alice:test", "hi")))
	assert.Equal(t, 1, sizeAtNotify)
}

func TestDiscontinuityPrecedesNewToken(t *testing.T) {
	var tokenAtDiscontinuity string
	sawDiscontinuity := false

	r := newTestRoom(nil, 50)
	mustDispatch(t, r, timelineDelta("t1", messageEvent("$1", "@alice:test", "old")))
	require.Equal(t, "t1", r.PrevBatch())

	r.sink = types.SinkFunc(func(n types.Notification) {
		if _, ok := n.(types.Discontinuity); ok {
			sawDiscontinuity = true
			tokenAtDiscontinuity = r.PrevBatch()
		}
	})
	delta := timelineDelta("t9", messageEvent("$9", "@alice:test", "new"))
	delta.Timeline.Limited = true
	mustDispatch(t, r, delta)

	assert.True(t, sawDiscontinuity)
	// The stale buffer is gone before subscribers hear about the gap, so
	// nobody can paginate from a token that skips it.
	assert.Equal(t, "", tokenAtDiscontinuity)
	assert.Equal(t, "t9", r.PrevBatch())
	assert.Equal(t, 1, r.BufferSize())
}

func TestEmptyTimelineReplacesNewestToken(t *testing.T) {
	r := newTestRoom(nil, 50)
	mustDispatch(t, r, timelineDelta("t1", messageEvent("$1", "@alice:test", "hi")))
	require.Len(t, r.Buffer(), 1)

	mustDispatch(t, r, timelineDelta("t2"))
	assert.Len(t, r.Buffer(), 1)
	assert.Equal(t, "t2", r.PrevBatch())
	assert.Equal(t, 1, r.BufferSize())
}

func TestBufferEviction(t *testing.T) {
	r := newTestRoom(nil, 4)

	for i := 0; i < 4; i++ {
		mustDispatch(t, r, timelineDelta(fmt.Sprintf("t%d", i),
			messageEvent(fmt.Sprintf("$%d-a", i), "@alice:test", "x"),
			messageEvent(fmt.Sprintf("$%d-b", i), "@alice:test", "y"),
		))
	}

	// Eviction stops once dropping the oldest batch would go below the
	// ceiling.
	assert.Equal(t, 2, len(r.Buffer()))
	assert.Equal(t, 4, r.BufferSize())
	assert.Equal(t, "t3", r.PrevBatch())
	assert.Equal(t, types.EventID("$2-a"), r.Buffer()[0].Events[0].EventID)
}

func TestBufferEvictionFoldsStateIntoAnchor(t *testing.T) {
	r := newTestRoom(nil, 2)

	mustDispatch(t, r, timelineDelta("t1", nameEvent("Before"), joinEvent("@alice:test", "Alice")))
	mustDispatch(t, r, timelineDelta("t2", messageEvent("$1", "@alice:test", "x"), messageEvent("$2", "@alice:test", "y")))

	// The first batch was evicted, so its state events now live in the
	// historical anchor that session persistence snapshots.
	require.Len(t, r.Buffer(), 1)
	assert.Equal(t, "Before", r.SessionData().State.Name)
}

func TestEphemeralReceipts(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRoom(sink, 50)

	receipt := types.Event{
		Type: "m.receipt",
		Content: json.RawMessage(`{
			"$1": {"m.read": {"@alice:test": {"ts": 1000}, "@bob:test": {"ts": 1001}}}
		}`),
	}
	mustDispatch(t, r, &types.JoinedRoom{Ephemeral: types.Ephemeral{Events: []types.Event{receipt}}})

	assert.ElementsMatch(t, []types.UserID{"@alice:test", "@bob:test"}, r.ReceiptsForEvent("$1"))
	got, ok := r.ReceiptFromUser("@alice:test")
	require.True(t, ok)
	assert.Equal(t, types.Receipt{EventID: "$1", TS: spec.Timestamp(1000)}, got)
	assert.Contains(t, sink.notifications, types.Notification(types.ReceiptsChanged{}))

	// A user's newer receipt unlinks the older one.
	receipt.Content = json.RawMessage(`{"$2": {"m.read": {"@alice:test": {"ts": 2000}}}}`)
	mustDispatch(t, r, &types.JoinedRoom{Ephemeral: types.Ephemeral{Events: []types.Event{receipt}}})

	assert.Equal(t, []types.UserID{"@bob:test"}, r.ReceiptsForEvent("$1"))
	assert.Equal(t, []types.UserID{"@alice:test"}, r.ReceiptsForEvent("$2"))
	got, _ = r.ReceiptFromUser("@alice:test")
	assert.Equal(t, types.EventID("$2"), got.EventID)
}

func TestEphemeralTyping(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRoom(sink, 50)

	typing := types.Event{
		Type:    "m.typing",
		Content: json.RawMessage(`{"user_ids": ["@alice:test", "@bob:test"]}`),
	}
	mustDispatch(t, r, &types.JoinedRoom{Ephemeral: types.Ephemeral{Events: []types.Event{typing}}})
	assert.ElementsMatch(t, []types.UserID{"@alice:test", "@bob:test"}, r.TypingUsers())
	assert.Contains(t, sink.notifications, types.Notification(types.TypingChanged{}))

	typing.Content = json.RawMessage(`{"user_ids": []}`)
	mustDispatch(t, r, &types.JoinedRoom{Ephemeral: types.Ephemeral{Events: []types.Event{typing}}})
	assert.Empty(t, r.TypingUsers())
}

func TestHasUnread(t *testing.T) {
	r := newTestRoom(nil, 50)
	// Nothing buffered means nothing is known about recent history.
	assert.True(t, r.HasUnread())

	bobJoin := joinEvent("@bob:test", "Bob")
	bobJoin.EventID = "$join"
	mustDispatch(t, r, timelineDelta("t1",
		messageEvent("$1", "@alice:test", "hi"),
		bobJoin,
	))
	// No receipt yet, and the trailing state event does not mask the
	// unread message.
	assert.True(t, r.HasUnread())

	r.UpdateReceipt(testUserID, "$1", spec.Timestamp(1000))
	assert.False(t, r.HasUnread())

	// A receipt on a non-message event marks the room read too.
	r.UpdateReceipt(testUserID, "$join", spec.Timestamp(1500))
	assert.False(t, r.HasUnread())

	mustDispatch(t, r, timelineDelta("t2", messageEvent("$2", "@alice:test", "again")))
	assert.True(t, r.HasUnread())

	r.UpdateReceipt(testUserID, "$2", spec.Timestamp(2000))
	assert.False(t, r.HasUnread())

	// The user's own messages never count as unread: the walk passes over
	// them and settles on the receipt behind them.
	mustDispatch(t, r, timelineDelta("t3", messageEvent("$3", string(testUserID), "mine")))
	assert.False(t, r.HasUnread())

	// Someone else replying after the own message does.
	mustDispatch(t, r, timelineDelta("t4", messageEvent("$4", "@alice:test", "reply")))
	assert.True(t, r.HasUnread())
}

func TestSelfLeaveSurfaced(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRoom(sink, 50)

	mustDispatch(t, r, timelineDelta("t1", joinEvent(string(testUserID), "Me")))
	sink.reset()

	leave := joinEvent(string(testUserID), "")
	leave.Content = json.RawMessage(`{"membership": "leave"}`)
	mustDispatch(t, r, timelineDelta("t2", leave))

	assert.Contains(t, sink.notifications, types.Notification(types.SelfLeft{Membership: "leave"}))
}

func TestPrettyNameFromMembers(t *testing.T) {
	r := newTestRoom(nil, 50)
	assert.Equal(t, "Empty room", r.PrettyName())

	mustDispatch(t, r, timelineDelta("t1",
		joinEvent(string(testUserID), "Me"),
		joinEvent("@alice:test", "Alice"),
	))
	assert.Equal(t, "Alice", r.PrettyName())

	mustDispatch(t, r, timelineDelta("t2", nameEvent("Ops")))
	assert.Equal(t, "Ops", r.PrettyName())
}
