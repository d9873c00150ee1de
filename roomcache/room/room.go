// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package room

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/matrix-org/gomatrixserverlib/spec"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/nativechat/nativechat/internal/caching"
	"github.com/nativechat/nativechat/roomcache/sendqueue"
	"github.com/nativechat/nativechat/roomcache/state"
	"github.com/nativechat/nativechat/roomcache/storage"
	"github.com/nativechat/nativechat/roomcache/types"
	"github.com/nativechat/nativechat/setup/config"
)

// Batch is a contiguous slice of buffered timeline history together with
// the pagination token for fetching what came before it.
type Batch struct {
	PrevBatch string        `json:"prev_batch"`
	Events    []types.Event `json:"events"`
}

// Room folds a stream of sync deltas into a consistent projected view of a
// single room: its metadata and membership, a bounded window of recent
// timeline events, read receipts, unread counters and typing state. It also
// fronts the outbound transmission queue for the room.
//
// Rooms are not safe for concurrent use. All mutation must happen on one
// goroutine; asynchronous completions (the send queue, typing expiry)
// deliver their notifications from their own goroutines and touch no room
// state.
type Room struct {
	id        types.RoomID
	ownUserID types.UserID

	bufferCeiling int

	// state is the live projected view; initialState is the frozen
	// historical anchor that buffered events paginate back from. Evicted
	// events are folded into initialState so it stays a valid snapshot of
	// "just before the remaining buffer".
	state        *state.RoomState
	initialState *state.RoomState

	buffer []*Batch

	highlightCount    int
	notificationCount int

	receiptsByUser  map[types.UserID]types.Receipt
	receiptsByEvent map[types.EventID][]types.UserID

	typing *caching.TypingCache

	sink  types.Sink
	store storage.RoomStore
	queue *sendqueue.Queue
}

// NewRoom creates an empty room. store may be nil for rooms without durable
// membership, transport may be nil for rooms that never send, and typing
// may be nil to give the room its own typing cache.
func NewRoom(
	cfg *config.RoomCache,
	roomID types.RoomID,
	ownUserID types.UserID,
	sink types.Sink,
	store storage.RoomStore,
	transport sendqueue.Transport,
	typing *caching.TypingCache,
) *Room {
	ceiling := 50
	if cfg != nil && cfg.TimelineBufferSize > 0 {
		ceiling = cfg.TimelineBufferSize
	}
	r := &Room{
		id:              roomID,
		ownUserID:       ownUserID,
		bufferCeiling:   ceiling,
		state:           state.NewRoomState(),
		initialState:    state.NewRoomState(),
		receiptsByUser:  make(map[types.UserID]types.Receipt),
		receiptsByEvent: make(map[types.EventID][]types.UserID),
		sink:            sink,
		store:           store,
	}
	if typing == nil {
		typing = caching.NewTypingCache()
		typing.SetTimeoutCallback(func(_, roomID string) {
			if roomID == string(r.id) {
				r.notify(types.TypingChanged{})
			}
		})
	}
	r.typing = typing
	if transport != nil {
		r.queue = sendqueue.NewQueue(roomID, transport, sink)
	}
	return r
}

func (r *Room) ID() types.RoomID        { return r.id }
func (r *Room) OwnUserID() types.UserID { return r.ownUserID }
func (r *Room) State() *state.RoomState { return r.state }
func (r *Room) HighlightCount() int     { return r.highlightCount }
func (r *Room) NotificationCount() int  { return r.notificationCount }

// PrettyName returns the name to display for this room to its own user.
func (r *Room) PrettyName() string {
	return r.state.PrettyName(r.ownUserID)
}

// PrevBatch returns the pagination token for fetching history older than
// the buffered timeline, or the empty string if nothing is buffered.
func (r *Room) PrevBatch() string {
	if len(r.buffer) == 0 {
		return ""
	}
	return r.buffer[len(r.buffer)-1].PrevBatch
}

// Buffer returns the buffered timeline batches, oldest first.
func (r *Room) Buffer() []*Batch { return r.buffer }

// BufferSize returns the total number of buffered timeline events.
func (r *Room) BufferSize() int {
	total := 0
	for _, batch := range r.buffer {
		total += len(batch.Events)
	}
	return total
}

// TypingUsers returns the users currently typing in this room.
func (r *Room) TypingUsers() []types.UserID {
	users := r.typing.GetTypingUsers(string(r.id))
	result := make([]types.UserID, 0, len(users))
	for _, user := range users {
		result = append(result, types.UserID(user))
	}
	return result
}

func (r *Room) notify(n types.Notification) {
	if r.sink != nil {
		r.sink.Notify(n)
	}
}

func (r *Room) persister() state.Persister {
	if r.store == nil {
		return nil
	}
	return r.store
}

// LoadState applies the state section of an initial sync: events that
// precede the timeline and therefore belong to both the historical anchor
// and the live view.
func (r *Room) LoadState(ctx context.Context, txn *sql.Tx, events []types.Event) error {
	for i := range events {
		ev := &events[i]
		if _, err := r.initialState.Apply(ctx, ev, nil, nil, nil); err != nil {
			return err
		}
		r.initialState.PruneDeparted(nil)
		if _, err := r.state.Apply(ctx, ev, r, r.persister(), txn); err != nil {
			return err
		}
		r.state.PruneDeparted(r)
	}
	return nil
}

// Dispatch folds one sync delta into the room. It returns whether any room
// metadata or membership state changed, which callers use to decide whether
// to persist or redraw.
func (r *Room) Dispatch(ctx context.Context, txn *sql.Tx, joined *types.JoinedRoom) (bool, error) {
	stateTouched := false

	if joined.UnreadNotifications.HighlightCount != r.highlightCount {
		old := r.highlightCount
		r.highlightCount = joined.UnreadNotifications.HighlightCount
		r.notify(types.HighlightCountChanged{Old: old})
	}
	if joined.UnreadNotifications.NotificationCount != r.notificationCount {
		old := r.notificationCount
		r.notificationCount = joined.UnreadNotifications.NotificationCount
		r.notify(types.NotificationCountChanged{Old: old})
	}

	// The discontinuity must be observable before the new pagination token
	// is, so subscribers can discard stale timeline state first.
	if joined.Timeline.Limited {
		r.buffer = nil
		r.notify(types.Discontinuity{})
	}

	switch {
	case len(joined.Timeline.Events) == 0 && joined.Timeline.PrevBatch == "":
		// Delta without a timeline section, e.g. counters or ephemeral only.
	case len(joined.Timeline.Events) == 0 && len(r.buffer) != 0:
		// An empty batch only moves the newest pagination token forward.
		r.buffer[len(r.buffer)-1].PrevBatch = joined.Timeline.PrevBatch
	default:
		batch := &Batch{
			PrevBatch: joined.Timeline.PrevBatch,
			Events:    make([]types.Event, 0, len(joined.Timeline.Events)),
		}
		r.buffer = append(r.buffer, batch)
		for i := range joined.Timeline.Events {
			ev := &joined.Timeline.Events[i]
			changed, err := r.state.Apply(ctx, ev, r, r.persister(), txn)
			if err != nil {
				return stateTouched, err
			}
			stateTouched = stateTouched || changed

			// Buffer before notifying, so unread computations triggered by
			// the message notification already account for this event.
			batch.Events = append(batch.Events, *ev)
			r.notify(types.Message{Event: ev})

			// Must happen after the event is fully dispatched but before
			// the next one, so the departing member's name was resolvable
			// during the notifications above.
			r.state.PruneDeparted(r)
		}

		for len(r.buffer) != 0 && r.BufferSize()-len(r.buffer[0].Events) >= r.bufferCeiling {
			evicted := r.buffer[0]
			r.buffer = r.buffer[1:]
			for i := range evicted.Events {
				if _, err := r.initialState.Apply(ctx, &evicted.Events[i], nil, nil, nil); err != nil {
					return stateTouched, err
				}
				r.initialState.PruneDeparted(nil)
			}
		}
	}

	for i := range joined.Ephemeral.Events {
		r.dispatchEphemeral(&joined.Ephemeral.Events[i])
	}

	if stateTouched {
		r.notify(types.StateChanged{})
	}
	return stateTouched, nil
}

func (r *Room) dispatchEphemeral(ev *types.Event) {
	switch ev.Type {
	case "m.receipt":
		gjson.ParseBytes(ev.Content).ForEach(func(eventID, receipts gjson.Result) bool {
			receipts.Get(`m\.read`).ForEach(func(userID, receipt gjson.Result) bool {
				r.UpdateReceipt(
					types.UserID(userID.Str),
					types.EventID(eventID.Str),
					spec.Timestamp(receipt.Get("ts").Uint()),
				)
				return true
			})
			return true
		})
		r.notify(types.ReceiptsChanged{})
	case "m.typing":
		var users []string
		for _, user := range gjson.GetBytes(ev.Content, "user_ids").Array() {
			users = append(users, user.Str)
		}
		r.typing.SetTypingUsers(string(r.id), users)
		r.notify(types.TypingChanged{})
	default:
		log.WithField("type", ev.Type).Debug("Ignoring unrecognized ephemeral event type")
	}
}

// Send enqueues an arbitrary event for ordered, idempotent transmission.
func (r *Room) Send(eventType string, content json.RawMessage) {
	if r.queue == nil {
		log.WithField("room_id", r.id).Error("Dropping outbound event: room has no send queue")
		return
	}
	r.queue.Send(eventType, content)
}

// SendMessage sends a plain text message.
func (r *Room) SendMessage(body string) {
	content, _ := json.Marshal(types.MessageContent{MsgType: types.MsgTypeText, Body: body})
	r.Send("m.room.message", content)
}

// SendEmote sends an emote ("/me") message.
func (r *Room) SendEmote(body string) {
	content, _ := json.Marshal(types.MessageContent{MsgType: types.MsgTypeEmote, Body: body})
	r.Send("m.room.message", content)
}

// SendFile sends a file message referring to already-uploaded content.
func (r *Room) SendFile(uri, name, mimeType string, size int64) {
	content, _ := json.Marshal(types.MessageContent{
		MsgType:  types.MsgTypeFile,
		Body:     name,
		URL:      uri,
		Filename: name,
		Info:     &types.FileInfo{MimeType: mimeType, Size: size},
	})
	r.Send("m.room.message", content)
}

// Room implements state.Observer by translating state callbacks into
// notifications for the presentation layer.

func (r *Room) NameChanged(old string)           { r.notify(types.NameChanged{Old: old}) }
func (r *Room) CanonicalAliasChanged(old string) { r.notify(types.CanonicalAliasChanged{Old: old}) }
func (r *Room) AliasesChanged(old []string)      { r.notify(types.AliasesChanged{Old: old}) }
func (r *Room) TopicChanged(old string)          { r.notify(types.TopicChanged{Old: old}) }
func (r *Room) AvatarChanged(old string)         { r.notify(types.AvatarChanged{Old: old}) }

func (r *Room) MembershipChanged(m *state.Member, membership state.Membership) {
	r.notify(types.MembershipChanged{UserID: m.ID(), Membership: membership.String()})
}

func (r *Room) MemberNameChanged(m *state.Member, oldName string) {
	r.notify(types.MemberNameChanged{UserID: m.ID(), Old: oldName})
}

func (r *Room) MemberDisambiguationChanged(m *state.Member, oldDisambiguation string) {
	r.notify(types.MemberDisambiguationChanged{UserID: m.ID(), Old: oldDisambiguation})
}

func (r *Room) SelfLeft(membership state.Membership) {
	r.notify(types.SelfLeft{Membership: membership.String()})
}
