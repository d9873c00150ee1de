// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package state

import (
	"encoding/json"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/pkg/errors"

	"github.com/nativechat/nativechat/roomcache/types"
)

// Membership is a user's relationship to a room.
type Membership int

const (
	MembershipInvite Membership = iota
	MembershipJoin
	MembershipLeave
	MembershipBan
)

// ParseMembership maps a wire membership string to a Membership. The second
// return is false for strings the cache does not recognise (including
// "knock", which this cache does not model).
func ParseMembership(s string) (Membership, bool) {
	switch s {
	case spec.Invite:
		return MembershipInvite, true
	case spec.Join:
		return MembershipJoin, true
	case spec.Leave:
		return MembershipLeave, true
	case spec.Ban:
		return MembershipBan, true
	}
	return MembershipLeave, false
}

func (m Membership) String() string {
	switch m {
	case MembershipInvite:
		return spec.Invite
	case MembershipJoin:
		return spec.Join
	case MembershipBan:
		return spec.Ban
	}
	return spec.Leave
}

// Displayable reports whether a membership participates in room naming and
// display-name tracking. Only invited and joined members count towards a
// room's computed name.
func Displayable(m Membership) bool {
	return m == MembershipJoin || m == MembershipInvite
}

// Member is the cached state of a single room member. Members are owned
// exclusively by the RoomState that created them; the display-name index
// refers to them by ID only.
type Member struct {
	id          types.UserID
	displayName string
	avatarURL   string
	membership  Membership
}

// NewMember returns a member in the default Leave state, which is the
// implied membership of any user never mentioned by a membership event.
func NewMember(id types.UserID) *Member {
	return &Member{id: id, membership: MembershipLeave}
}

func (m *Member) ID() types.UserID       { return m.id }
func (m *Member) DisplayName() string    { return m.displayName }
func (m *Member) AvatarURL() string      { return m.avatarURL }
func (m *Member) Membership() Membership { return m.membership }

// PrettyName returns the display name, falling back to the user ID for
// members without one. Disambiguation suffixes are the room state's concern,
// not the member's.
func (m *Member) PrettyName() string {
	if m.displayName == "" {
		return string(m.id)
	}
	return m.displayName
}

// UpdateFromContent applies a membership event's content last-write-wins.
// Absent fields clear the corresponding value; an unrecognised membership
// string leaves the previous membership in place.
func (m *Member) UpdateFromContent(content types.MemberContent) {
	if membership, ok := ParseMembership(content.Membership); ok {
		m.membership = membership
	}
	m.displayName = content.DisplayName
	m.avatarURL = content.AvatarURL
}

type memberRecord struct {
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Membership  string `json:"membership"`
}

// Record serialises the member into the opaque value stored against their
// user ID in the durable membership cache.
func (m *Member) Record() ([]byte, error) {
	data, err := json.Marshal(memberRecord{
		DisplayName: m.displayName,
		AvatarURL:   m.avatarURL,
		Membership:  m.membership.String(),
	})
	return data, errors.Wrap(err, "failed to serialise member record")
}

// NewMemberFromRecord rebuilds a member from a durable record previously
// produced by Record. The user ID is the key the record was stored under.
func NewMemberFromRecord(id types.UserID, data []byte) (*Member, error) {
	var record memberRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrapf(err, "corrupt member record for %q", id)
	}
	member := NewMember(id)
	if membership, ok := ParseMembership(record.Membership); ok {
		member.membership = membership
	}
	member.displayName = record.DisplayName
	member.avatarURL = record.AvatarURL
	return member, nil
}
