// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/matrix-org/gomatrixserverlib/spec"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/nativechat/nativechat/roomcache/types"
)

// Observer receives change notifications while state is being mutated. All
// callbacks fire synchronously during the mutation, so a departing member is
// still resolvable from the state when the callback describing their
// departure runs. A nil Observer suppresses notifications, which is how
// events are replayed against the historical anchor state.
type Observer interface {
	OwnUserID() types.UserID
	NameChanged(old string)
	CanonicalAliasChanged(old string)
	AliasesChanged(old []string)
	TopicChanged(old string)
	AvatarChanged(old string)
	MembershipChanged(m *Member, membership Membership)
	MemberNameChanged(m *Member, oldName string)
	MemberDisambiguationChanged(m *Member, oldDisambiguation string)
	SelfLeft(membership Membership)
}

// Persister writes membership changes to the durable cache within the
// caller's transaction. A nil Persister means in-memory only, used for
// speculative or historical application.
type Persister interface {
	UpsertMembership(ctx context.Context, txn *sql.Tx, m *Member) error
	DeleteMembership(ctx context.Context, txn *sql.Tx, userID types.UserID) error
}

// MembershipLoader reads back every membership record of a room, in user ID
// order, within the caller's transaction.
type MembershipLoader interface {
	SelectMemberships(ctx context.Context, txn *sql.Tx) ([]*Member, error)
}

// RoomState is the projected view of a room's metadata and membership at a
// point in its timeline. It owns its Members; the display-name index holds
// only user IDs back into membersByID.
type RoomState struct {
	name           string
	canonicalAlias string
	topic          string
	avatar         string
	aliases        []string

	membersByID          map[types.UserID]*Member
	membersByDisplayName map[string][]types.UserID

	// departed holds at most one user awaiting index cleanup after a
	// Leave/Ban, so that notifications can still resolve their name. It is
	// flushed by PruneDeparted after every event application.
	departed types.UserID
}

func NewRoomState() *RoomState {
	return &RoomState{
		membersByID:          make(map[types.UserID]*Member),
		membersByDisplayName: make(map[string][]types.UserID),
	}
}

// Snapshot is the serialisable metadata portion of a RoomState. Membership
// is restored separately from the durable membership cache.
type Snapshot struct {
	Name           string   `json:"name,omitempty"`
	CanonicalAlias string   `json:"canonical_alias,omitempty"`
	Topic          string   `json:"topic,omitempty"`
	Avatar         string   `json:"avatar,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`
}

// Snapshot returns the metadata fields for session persistence.
func (s *RoomState) Snapshot() Snapshot {
	return Snapshot{
		Name:           s.name,
		CanonicalAlias: s.canonicalAlias,
		Topic:          s.topic,
		Avatar:         s.avatar,
		Aliases:        append([]string(nil), s.aliases...),
	}
}

// NewRoomStateFromSnapshot rebuilds the metadata portion of a state.
// Call LoadMembers afterwards to restore membership.
func NewRoomStateFromSnapshot(snapshot Snapshot) *RoomState {
	s := NewRoomState()
	s.name = snapshot.Name
	s.canonicalAlias = snapshot.CanonicalAlias
	s.topic = snapshot.Topic
	s.avatar = snapshot.Avatar
	s.aliases = append([]string(nil), snapshot.Aliases...)
	return s
}

// LoadMembers populates membership from the durable cache, indexing display
// names as it goes.
func (s *RoomState) LoadMembers(ctx context.Context, txn *sql.Tx, loader MembershipLoader) error {
	members, err := loader.SelectMemberships(ctx, txn)
	if err != nil {
		return err
	}
	for _, member := range members {
		s.membersByID[member.ID()] = member
		s.recordDisplayName(member.ID(), member.DisplayName(), nil)
	}
	return nil
}

// Clone deep-copies the state. The pending departure slot must be empty,
// which PruneDeparted guarantees between events.
func (s *RoomState) Clone() *RoomState {
	if s.departed != "" {
		panic("state: cloning a RoomState with an unpruned departure")
	}
	c := NewRoomState()
	c.name = s.name
	c.canonicalAlias = s.canonicalAlias
	c.topic = s.topic
	c.avatar = s.avatar
	c.aliases = append([]string(nil), s.aliases...)
	for id, member := range s.membersByID {
		copied := *member
		c.membersByID[id] = &copied
	}
	for name, ids := range s.membersByDisplayName {
		c.membersByDisplayName[name] = append([]types.UserID(nil), ids...)
	}
	return c
}

func (s *RoomState) Name() string           { return s.name }
func (s *RoomState) CanonicalAlias() string { return s.canonicalAlias }
func (s *RoomState) Topic() string          { return s.topic }
func (s *RoomState) Avatar() string         { return s.avatar }
func (s *RoomState) Aliases() []string      { return s.aliases }

// MemberFromID returns the member with the given ID, or nil.
func (s *RoomState) MemberFromID(id types.UserID) *Member {
	return s.membersByID[id]
}

// Members returns all known members in unspecified order.
func (s *RoomState) Members() []*Member {
	result := make([]*Member, 0, len(s.membersByID))
	for _, member := range s.membersByID {
		result = append(result, member)
	}
	return result
}

// Apply folds a single event into the state. It returns whether any state
// changed. Message events, m.room.create and unrecognised types are ignored:
// state application must never block delivery of the surrounding batch.
func (s *RoomState) Apply(ctx context.Context, ev *types.Event, observer Observer, persist Persister, txn *sql.Tx) (bool, error) {
	switch ev.Type {
	case "m.room.message":
		return false, nil

	case "m.room.aliases":
		old := s.aliases
		merged := append([]string(nil), s.aliases...)
		seen := make(map[string]struct{}, len(merged))
		for _, alias := range merged {
			seen[alias] = struct{}{}
		}
		for _, v := range gjson.GetBytes(ev.Content, "aliases").Array() {
			if _, ok := seen[v.Str]; !ok {
				seen[v.Str] = struct{}{}
				merged = append(merged, v.Str)
			}
		}
		if len(merged) == len(old) {
			return false, nil
		}
		s.aliases = merged
		if observer != nil {
			observer.AliasesChanged(old)
		}
		return true, nil

	case spec.MRoomCanonicalAlias:
		next := gjson.GetBytes(ev.Content, "alias").Str
		if next == s.canonicalAlias {
			return false, nil
		}
		old := s.canonicalAlias
		s.canonicalAlias = next
		if observer != nil {
			observer.CanonicalAliasChanged(old)
		}
		return true, nil

	case spec.MRoomName:
		next := gjson.GetBytes(ev.Content, "name").Str
		if next == s.name {
			return false, nil
		}
		old := s.name
		s.name = next
		if observer != nil {
			observer.NameChanged(old)
		}
		return true, nil

	case "m.room.topic":
		next := gjson.GetBytes(ev.Content, "topic").Str
		if next == s.topic {
			return false, nil
		}
		old := s.topic
		s.topic = next
		if observer != nil {
			observer.TopicChanged(old)
		}
		return true, nil

	case "m.room.avatar":
		next := gjson.GetBytes(ev.Content, "url").Str
		if next == s.avatar {
			return false, nil
		}
		old := s.avatar
		s.avatar = next
		if observer != nil {
			observer.AvatarChanged(old)
		}
		return true, nil

	case spec.MRoomCreate:
		// Nothing to do: rooms come into being implicitly on first reference.
		return false, nil

	case spec.MRoomMember:
		return s.UpdateMembership(ctx, types.UserID(ev.StateKeyString()), ev.Content, observer, persist, txn)
	}

	log.WithField("type", ev.Type).Debug("Ignoring unrecognized event type")
	return false, nil
}

// Revert withdraws an event from the state, restoring the field from the
// event's previous-content snapshot if present and the zero value otherwise.
// Used when the live view realigns across a discontinuity or backfill.
func (s *RoomState) Revert(ev *types.Event) {
	prev := func(field string) string {
		return gjson.GetBytes(ev.Unsigned.PrevContent, field).Str
	}
	switch ev.Type {
	case "m.room.message":
	case "m.room.aliases":
		var aliases []string
		for _, v := range gjson.GetBytes(ev.Unsigned.PrevContent, "aliases").Array() {
			aliases = append(aliases, v.Str)
		}
		s.aliases = aliases
	case spec.MRoomCanonicalAlias:
		s.canonicalAlias = prev("alias")
	case spec.MRoomName:
		s.name = prev("name")
	case "m.room.topic":
		s.topic = prev("topic")
	case "m.room.avatar":
		s.avatar = prev("url")
	case spec.MRoomMember:
		// Re-apply the previous membership content. An absent snapshot
		// unwinds to before the first membership event, i.e. Leave.
		_, _ = s.UpdateMembership(context.Background(), types.UserID(ev.StateKeyString()), ev.Unsigned.PrevContent, nil, nil, nil)
		s.PruneDeparted(nil)
	}
}

// EnsureMember materialises a member referenced by an event older than
// current knowledge. It never overwrites a known member. Only Leave/Ban
// events need this: Invite/Join events create the member on application.
func (s *RoomState) EnsureMember(ev *types.Event) {
	if ev.Type != spec.MRoomMember {
		return
	}
	membershipStr := gjson.GetBytes(ev.Content, "membership").Str
	membership, ok := ParseMembership(membershipStr)
	if !ok {
		log.WithField("membership", membershipStr).Debug("Ignoring unrecognized membership type")
		return
	}
	if membership != MembershipLeave && membership != MembershipBan {
		return
	}
	id := types.UserID(ev.StateKeyString())
	if _, exists := s.membersByID[id]; exists {
		return
	}
	member := NewMember(id)
	if !types.IsEmptyContent(ev.Unsigned.PrevContent) {
		// Pick up display name and avatar from before the departure.
		var content types.MemberContent
		if err := json.Unmarshal(ev.Unsigned.PrevContent, &content); err == nil {
			member.UpdateFromContent(content)
		}
	}
	var content types.MemberContent
	if err := json.Unmarshal(ev.Content, &content); err == nil {
		member.UpdateFromContent(content)
	}
	s.membersByID[id] = member
	s.recordDisplayName(id, member.DisplayName(), nil)
}

// UpdateMembership routes a membership event through the membership
// sub-protocol. Empty content means Leave, which is how reversal unwinds to
// before a user's first membership event. Unrecognised membership strings
// are reported and leave the state untouched. The returned bool is whether
// the event was recognised and applied.
func (s *RoomState) UpdateMembership(ctx context.Context, userID types.UserID, content json.RawMessage, observer Observer, persist Persister, txn *sql.Tx) (bool, error) {
	var membership Membership
	var memberContent types.MemberContent
	if types.IsEmptyContent(content) {
		membership = MembershipLeave
	} else {
		if err := json.Unmarshal(content, &memberContent); err != nil {
			log.WithError(err).Debug("Ignoring malformed membership content")
			return false, nil
		}
		var ok bool
		if membership, ok = ParseMembership(memberContent.Membership); !ok {
			log.WithField("membership", memberContent.Membership).Debug("Ignoring unrecognized membership type")
			return false, nil
		}
	}

	switch membership {
	case MembershipInvite, MembershipJoin:
		member, exists := s.membersByID[userID]
		if !exists {
			member = NewMember(userID)
			s.membersByID[userID] = member
		}
		oldMembership := member.Membership()
		oldDisplayName := member.DisplayName()
		oldMemberName := s.MemberName(member)
		member.UpdateFromContent(memberContent)
		if member.DisplayName() != oldDisplayName {
			// Forget before record, so the member never transiently
			// appears twice under different names in the index.
			s.forgetDisplayName(userID, oldDisplayName, observer)
			s.recordDisplayName(userID, member.DisplayName(), observer)
			if observer != nil && Displayable(oldMembership) {
				observer.MemberNameChanged(member, oldMemberName)
			}
		}
		if observer != nil && member.Membership() != oldMembership {
			observer.MembershipChanged(member, membership)
		}
		if persist != nil {
			if err := persist.UpsertMembership(ctx, txn, member); err != nil {
				return false, err
			}
		}

	case MembershipLeave, MembershipBan:
		if observer != nil && userID == observer.OwnUserID() {
			observer.SelfLeft(membership)
		}
		if member, exists := s.membersByID[userID]; exists {
			oldDisplayName := member.DisplayName()
			member.UpdateFromContent(memberContent)
			if member.DisplayName() != oldDisplayName {
				s.forgetDisplayName(userID, oldDisplayName, observer)
				s.recordDisplayName(userID, member.DisplayName(), observer)
			}
			if observer != nil {
				observer.MembershipChanged(member, membership)
			}
			if s.departed != "" {
				panic(fmt.Sprintf("state: departure of %q before %q was pruned", userID, s.departed))
			}
			s.departed = userID
		}
		if persist != nil {
			if err := persist.DeleteMembership(ctx, txn, userID); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// PruneDeparted flushes the pending-departure slot: the departed member is
// removed from the display-name index and then from the member table. Must
// be called after each event application, before the next departure.
func (s *RoomState) PruneDeparted(observer Observer) {
	if s.departed == "" {
		return
	}
	member, exists := s.membersByID[s.departed]
	if !exists {
		panic(fmt.Sprintf("state: pending departure %q is not a known member", s.departed))
	}
	s.forgetDisplayName(s.departed, member.DisplayName(), observer)
	delete(s.membersByID, s.departed)
	s.departed = ""
}

// PrettyName computes a human-readable room name for display to ownID:
// the explicit name, else the canonical alias, else the first alias (a
// non-standard fallback kept for compatibility with vector-web), else a
// name derived from the membership list.
func (s *RoomState) PrettyName(ownID types.UserID) string {
	if s.name != "" {
		return s.name
	}
	if s.canonicalAlias != "" {
		return s.canonicalAlias
	}
	if len(s.aliases) != 0 {
		return s.aliases[0]
	}

	members := make([]*Member, 0, len(s.membersByID))
	for id, member := range s.membersByID {
		if id == ownID {
			continue
		}
		members = append(members, member)
	}
	// Only the first two names are ever shown, so a bounded partial sort
	// is enough.
	partialSortByID(members, 2)
	switch len(members) {
	case 0:
		return "Empty room"
	case 1:
		return members[0].PrettyName()
	case 2:
		return fmt.Sprintf("%s and %s", s.MemberName(members[0]), s.MemberName(members[1]))
	default:
		return fmt.Sprintf("%s and %d others", s.MemberName(members[0]), len(members)-1)
	}
}

// partialSortByID moves the n members with the lowest IDs, in ascending
// order, to the front of the slice.
func partialSortByID(members []*Member, n int) {
	if n > len(members) {
		n = len(members)
	}
	for i := 0; i < n; i++ {
		min := i
		for j := i + 1; j < len(members); j++ {
			if members[j].ID() < members[min].ID() {
				min = j
			}
		}
		members[i], members[min] = members[min], members[i]
	}
}
