// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package types

import (
	"bytes"
	"encoding/json"

	"github.com/matrix-org/gomatrixserverlib/spec"
)

// UserID is a fully qualified Matrix user identifier, e.g. "@alice:example.org".
type UserID string

// EventID is an opaque event identifier assigned by the origin server.
type EventID string

// RoomID is an opaque room identifier.
type RoomID string

// Event is a single already-parsed room event, either a state event or a
// message. Content is kept as raw JSON; the state layer decodes the parts it
// understands and ignores the rest.
type Event struct {
	Type           string          `json:"type"`
	Sender         UserID          `json:"sender,omitempty"`
	StateKey       *string         `json:"state_key,omitempty"`
	EventID        EventID         `json:"event_id,omitempty"`
	OriginServerTS spec.Timestamp  `json:"origin_server_ts,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	Unsigned       Unsigned        `json:"unsigned,omitempty"`
}

// Unsigned carries the parts of the unsigned event metadata that the cache
// consumes, currently only the previous content snapshot for state events.
type Unsigned struct {
	PrevContent json.RawMessage `json:"prev_content,omitempty"`
}

// StateKeyString returns the event's state key, or the empty string for
// non-state events.
func (e *Event) StateKeyString() string {
	if e.StateKey == nil {
		return ""
	}
	return *e.StateKey
}

// IsEmptyContent reports whether the given raw content is absent or the
// empty object. An absent previous-content snapshot unwinds membership to
// the default Leave state.
func IsEmptyContent(content json.RawMessage) bool {
	if len(content) == 0 {
		return true
	}
	trimmed := bytes.TrimSpace(content)
	return bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null"))
}

// JoinedRoom is the per-room portion of a sync response for a room the user
// is joined to.
type JoinedRoom struct {
	UnreadNotifications UnreadNotifications `json:"unread_notifications"`
	Timeline            Timeline            `json:"timeline"`
	Ephemeral           Ephemeral           `json:"ephemeral"`
}

// UnreadNotifications are the server-computed unread counters for a room.
type UnreadNotifications struct {
	HighlightCount    int `json:"highlight_count"`
	NotificationCount int `json:"notification_count"`
}

// Timeline is the sequence of new timeline events in a sync response.
// Limited indicates a discontinuity: the server truncated history between
// this response and the previous one.
type Timeline struct {
	Limited   bool    `json:"limited"`
	PrevBatch string  `json:"prev_batch"`
	Events    []Event `json:"events"`
}

// Ephemeral carries non-persistent events such as receipts and typing
// notifications.
type Ephemeral struct {
	Events []Event `json:"events"`
}

// Receipt records the latest event a user has read, with the server
// timestamp of the receipt.
type Receipt struct {
	EventID EventID        `json:"event_id"`
	TS      spec.Timestamp `json:"ts"`
}

// PendingEvent is an outbound event queued for transmission.
type PendingEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}
