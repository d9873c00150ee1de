// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package state

import (
	"testing"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nativechat/nativechat/roomcache/types"
)

func TestDisambiguationOnNameCollision(t *testing.T) {
	s := NewRoomState()
	rec := &recorder{ownUserID: "@me:test"}

	mustApply(t, s, memberEvent("@alice:test", spec.Join, "Alice", nil), rec)
	alice := s.MemberFromID("@alice:test")
	assert.Equal(t, "", s.MemberDisambiguation(alice))
	assert.Equal(t, "Alice", s.MemberName(alice))

	// The second Alice makes both ambiguous; the incumbent is notified,
	// the newcomer learns it through their own membership callbacks.
	rec.calls = nil
	mustApply(t, s, memberEvent("@alice2:test", spec.Join, "Alice", nil), rec)
	assert.Contains(t, rec.calls, `disambiguation @alice:test old=""`)

	alice2 := s.MemberFromID("@alice2:test")
	assert.Equal(t, "@alice:test", s.MemberDisambiguation(alice))
	assert.Equal(t, "@alice2:test", s.MemberDisambiguation(alice2))
	assert.Equal(t, "Alice (@alice:test)", s.MemberName(alice))
	assert.ElementsMatch(t, []types.UserID{"@alice:test", "@alice2:test"}, s.MembersNamed("Alice"))
}

func TestDisambiguationResolvedOnDeparture(t *testing.T) {
	s := NewRoomState()
	rec := &recorder{ownUserID: "@me:test"}

	mustApply(t, s, memberEvent("@alice:test", spec.Join, "Alice", nil), rec)
	mustApply(t, s, memberEvent("@alice2:test", spec.Join, "Alice", nil), rec)

	rec.calls = nil
	mustApply(t, s, memberEvent("@alice2:test", spec.Leave, "Alice", nil), rec)

	// The survivor is told what suffix they are shedding.
	assert.Contains(t, rec.calls, `disambiguation @alice:test old="@alice:test"`)
	alice := s.MemberFromID("@alice:test")
	require.NotNil(t, alice)
	assert.Equal(t, "", s.MemberDisambiguation(alice))
}

func TestDisambiguationResolvedOnRename(t *testing.T) {
	s := NewRoomState()
	rec := &recorder{ownUserID: "@me:test"}

	mustApply(t, s, memberEvent("@alice:test", spec.Join, "Alice", nil), rec)
	mustApply(t, s, memberEvent("@alice2:test", spec.Join, "Alice", nil), rec)

	rec.calls = nil
	mustApply(t, s, memberEvent("@alice2:test", spec.Join, "Alicia", nil), rec)

	assert.Contains(t, rec.calls, `disambiguation @alice:test old="@alice:test"`)
	assert.Equal(t, "", s.MemberDisambiguation(s.MemberFromID("@alice:test")))
	assert.Equal(t, "", s.MemberDisambiguation(s.MemberFromID("@alice2:test")))
}

func TestNormalizationUnifiesEncodings(t *testing.T) {
	s := NewRoomState()

	// "é" precomposed versus "e" plus combining acute: the same name to a
	// reader, so the index must treat them as colliding.
	composed := "René"
	decomposed := "René"
	require.NotEqual(t, composed, decomposed)

	mustApply(t, s, memberEvent("@rene1:test", spec.Join, composed, nil), nil)
	mustApply(t, s, memberEvent("@rene2:test", spec.Join, decomposed, nil), nil)

	assert.ElementsMatch(t, []types.UserID{"@rene1:test", "@rene2:test"}, s.MembersNamed(composed))
	assert.ElementsMatch(t, []types.UserID{"@rene1:test", "@rene2:test"}, s.MembersNamed(decomposed))
	assert.Equal(t, "@rene1:test", s.MemberDisambiguation(s.MemberFromID("@rene1:test")))
}

func TestDisambiguationAgainstUserID(t *testing.T) {
	s := NewRoomState()
	rec := &recorder{ownUserID: "@me:test"}

	mustApply(t, s, memberEvent("@alice:test", spec.Join, "", nil), rec)

	// Mallory's display name is Alice's user ID: both need suffixes even
	// though no display names collide.
	rec.calls = nil
	mustApply(t, s, memberEvent("@mallory:test", spec.Join, "@alice:test", nil), rec)
	assert.Contains(t, rec.calls, `disambiguation @alice:test old=""`)

	alice := s.MemberFromID("@alice:test")
	mallory := s.MemberFromID("@mallory:test")
	assert.Equal(t, "@alice:test", s.MemberDisambiguation(alice))
	assert.Equal(t, "@mallory:test", s.MemberDisambiguation(mallory))
	assert.Equal(t, "@alice:test (@alice:test)", s.MemberName(alice))
	assert.Equal(t, "@alice:test (@mallory:test)", s.MemberName(mallory))
}

func TestEmptyDisplayNameNeverIndexed(t *testing.T) {
	s := NewRoomState()
	mustApply(t, s, memberEvent("@alice:test", spec.Join, "", nil), nil)
	mustApply(t, s, memberEvent("@bob:test", spec.Join, "", nil), nil)

	assert.Empty(t, s.MembersNamed(""))
	assert.Equal(t, "", s.MemberDisambiguation(s.MemberFromID("@alice:test")))
	assert.Equal(t, "@alice:test", s.MemberName(s.MemberFromID("@alice:test")))
}

func TestDuplicateIndexEntryPanics(t *testing.T) {
	s := NewRoomState()
	mustApply(t, s, memberEvent("@alice:test", spec.Join, "Alice", nil), nil)
	assert.Panics(t, func() {
		s.recordDisplayName("@alice:test", "Alice", nil)
	})
}

func TestForgettingUnknownNamePanics(t *testing.T) {
	s := NewRoomState()
	assert.Panics(t, func() {
		s.forgetDisplayName("@alice:test", "Alice", nil)
	})
}
