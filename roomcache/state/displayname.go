// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package state

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/nativechat/nativechat/roomcache/types"
)

// Display names are indexed under their NFC normalization so that visually
// identical names compare equal regardless of input encoding.
func normalizeDisplayName(name string) string {
	return norm.NFC.String(name)
}

// MembersNamed returns the IDs of all members currently holding the given
// display name, after normalization.
func (s *RoomState) MembersNamed(displayName string) []types.UserID {
	return s.membersByDisplayName[normalizeDisplayName(displayName)]
}

// MemberDisambiguation returns the parenthetical suffix needed to tell the
// member apart in UI contexts, or the empty string if they are unambiguous.
// A member needs disambiguating when their display name collides with
// another member's name or with a raw user ID, or when their name is empty
// and some other member's display name equals this member's ID.
func (s *RoomState) MemberDisambiguation(member *Member) string {
	if member.DisplayName() == "" {
		if _, nameClaimsID := s.membersByDisplayName[string(member.ID())]; nameClaimsID {
			return string(member.ID())
		}
		return ""
	}
	if len(s.MembersNamed(member.DisplayName())) > 1 ||
		s.MemberFromID(types.UserID(normalizeDisplayName(member.DisplayName()))) != nil {
		return string(member.ID())
	}
	return ""
}

// MemberName returns the member's display name composed with any
// disambiguation suffix.
func (s *RoomState) MemberName(member *Member) string {
	result := member.PrettyName()
	disambiguation := s.MemberDisambiguation(member)
	if disambiguation == "" {
		return result
	}
	return result + " (" + disambiguation + ")"
}

// recordDisplayName adds id to the index bucket for name. If the insertion
// makes exactly one other member newly ambiguous, that member gets a
// disambiguation-changed notification with an empty old value, meaning
// "previously unambiguous".
func (s *RoomState) recordDisplayName(id types.UserID, name string, observer Observer) {
	if name == "" {
		return
	}

	normalized := normalizeDisplayName(name)
	bucket := s.membersByDisplayName[normalized]
	for _, existing := range bucket {
		if existing == id {
			panic(fmt.Sprintf("state: user %q already recorded under display name %q", id, normalized))
		}
	}
	bucket = append(bucket, id)
	s.membersByDisplayName[normalized] = bucket

	if observer == nil {
		return
	}
	var other *Member
	existingDisplayName := len(bucket) == 2
	existingID := s.MemberFromID(types.UserID(normalized))
	if !existingDisplayName || existingID == nil {
		// If there's only one user with the name, they get newly disambiguated too
		if existingDisplayName {
			other = s.membersByID[bucket[0]]
		}
		if existingID != nil {
			other = existingID
		}
	}
	if other != nil {
		observer.MemberDisambiguationChanged(other, "")
	}
}

// forgetDisplayName removes id from the index bucket for oldName. Exactly
// one entry must be removed: anything else is an index consistency defect.
// If the removal resolves an ambiguity for exactly one other member, that
// member gets a disambiguation-changed notification carrying the suffix
// they had before the removal.
func (s *RoomState) forgetDisplayName(id types.UserID, oldName string, observer Observer) {
	if oldName == "" {
		return
	}

	normalized := normalizeDisplayName(oldName)
	bucket, ok := s.membersByDisplayName[normalized]
	if !ok {
		panic(fmt.Sprintf("state: no display name bucket %q to forget %q from", normalized, id))
	}

	var other *Member
	var otherDisambiguation string
	existingDisplayName := len(bucket) == 2
	existingID := s.MemberFromID(types.UserID(normalized))
	if observer != nil && (!existingDisplayName || existingID == nil) {
		if existingDisplayName {
			otherID := bucket[0]
			if otherID == id {
				otherID = bucket[1]
			}
			other = s.membersByID[otherID]
		}
		if existingID != nil {
			other = existingID
		}
	}
	if other != nil {
		otherDisambiguation = s.MemberDisambiguation(other)
	}

	kept := make([]types.UserID, 0, len(bucket))
	for _, existing := range bucket {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(bucket)-len(kept) != 1 {
		panic(fmt.Sprintf("state: removing %q from display name bucket %q removed %d entries", id, normalized, len(bucket)-len(kept)))
	}
	if len(kept) == 0 {
		delete(s.membersByDisplayName, normalized)
	} else {
		s.membersByDisplayName[normalized] = kept
	}

	if other != nil {
		observer.MemberDisambiguationChanged(other, otherDisambiguation)
	}
}
