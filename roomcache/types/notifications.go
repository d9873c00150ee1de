// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package types

// Notification is a change event emitted by a room towards the presentation
// layer. Notifications are delivered synchronously, in the order the
// underlying changes occur, on the goroutine that mutates the room.
type Notification interface {
	isNotification()
}

// Sink receives notifications for a single room.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a plain function to the Sink interface. A nil SinkFunc
// discards notifications.
type SinkFunc func(n Notification)

func (f SinkFunc) Notify(n Notification) {
	if f != nil {
		f(n)
	}
}

// Fanout delivers each notification to every registered sink in order.
type Fanout []Sink

func (f Fanout) Notify(n Notification) {
	for _, sink := range f {
		sink.Notify(n)
	}
}

// NameChanged is emitted when the room's explicit name changes.
type NameChanged struct{ Old string }

// CanonicalAliasChanged is emitted when the canonical alias changes.
type CanonicalAliasChanged struct{ Old string }

// AliasesChanged is emitted when the alias list changes.
type AliasesChanged struct{ Old []string }

// TopicChanged is emitted when the topic changes.
type TopicChanged struct{ Old string }

// AvatarChanged is emitted when the room avatar changes.
type AvatarChanged struct{ Old string }

// MembershipChanged is emitted when a member's membership transitions.
type MembershipChanged struct {
	UserID     UserID
	Membership string
}

// MemberNameChanged is emitted when a displayable member's composed name
// (display name plus any disambiguation suffix) changes. Old is the
// previously composed name.
type MemberNameChanged struct {
	UserID UserID
	Old    string
}

// MemberDisambiguationChanged is emitted when a member's disambiguation
// suffix changes because of another member joining, leaving or renaming.
// Old is empty if the member was previously unambiguous.
type MemberDisambiguationChanged struct {
	UserID UserID
	Old    string
}

// Message is emitted for every timeline event as it is buffered.
type Message struct{ Event *Event }

// Discontinuity is emitted when the server indicates truncated history and
// the timeline buffer has been cleared. It always precedes the new
// pagination token becoming visible.
type Discontinuity struct{}

// StateChanged is emitted once per sync delta if any room state changed.
type StateChanged struct{}

// HighlightCountChanged is emitted when the highlight counter changes.
type HighlightCountChanged struct{ Old int }

// NotificationCountChanged is emitted when the notification counter changes.
type NotificationCountChanged struct{ Old int }

// ReceiptsChanged is emitted after read receipts are updated.
type ReceiptsChanged struct{}

// TypingChanged is emitted after the typing user list is updated.
type TypingChanged struct{}

// SelfLeft is emitted when the client's own user leaves or is banned from
// the room. Membership is the wire string of the new membership.
type SelfLeft struct{ Membership string }

// SendError is emitted when an outbound event fails permanently.
type SendError struct{ Err error }

func (NameChanged) isNotification()                 {}
func (CanonicalAliasChanged) isNotification()       {}
func (AliasesChanged) isNotification()              {}
func (TopicChanged) isNotification()                {}
func (AvatarChanged) isNotification()               {}
func (MembershipChanged) isNotification()           {}
func (MemberNameChanged) isNotification()           {}
func (MemberDisambiguationChanged) isNotification() {}
func (Message) isNotification()                     {}
func (Discontinuity) isNotification()               {}
func (StateChanged) isNotification()                {}
func (HighlightCountChanged) isNotification()       {}
func (NotificationCountChanged) isNotification()    {}
func (ReceiptsChanged) isNotification()             {}
func (TypingChanged) isNotification()               {}
func (SelfLeft) isNotification()                    {}
func (SendError) isNotification()                   {}
