// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package caching

import (
	"sync"
	"time"
)

const defaultTypingTimeout = 10 * time.Second

// TypingCache tracks which users are currently typing in which rooms. Entries
// expire automatically, since a dropped connection can leave a user "typing"
// forever otherwise. The sync layer normally replaces a room's whole set from
// each m.typing event, but entries may also be added individually with their
// own expiry.
type TypingCache struct {
	sync.RWMutex
	rooms           map[string]map[string]*time.Timer
	timeoutCallback TimeoutCallbackFn
}

// TimeoutCallbackFn is called when a typing user expires from the cache.
type TimeoutCallbackFn func(userID, roomID string)

func NewTypingCache() *TypingCache {
	return &TypingCache{
		rooms: make(map[string]map[string]*time.Timer),
	}
}

// SetTimeoutCallback sets a callback function that is called right after
// a user is removed from the cache because their typing state expired.
func (t *TypingCache) SetTimeoutCallback(fn TimeoutCallbackFn) {
	t.Lock()
	defer t.Unlock()
	t.timeoutCallback = fn
}

// GetTypingUsers returns the list of users typing in roomID.
func (t *TypingCache) GetTypingUsers(roomID string) []string {
	t.RLock()
	defer t.RUnlock()
	users := make([]string, 0, len(t.rooms[roomID]))
	for userID := range t.rooms[roomID] {
		users = append(users, userID)
	}
	return users
}

// AddTypingUser marks userID as typing in roomID until expire. If expire is
// nil a default timeout is applied. An expire time in the past removes the
// user immediately.
func (t *TypingCache) AddTypingUser(userID, roomID string, expire *time.Time) {
	expireTime := time.Now().Add(defaultTypingTimeout)
	if expire != nil {
		expireTime = *expire
	}
	until := time.Until(expireTime)
	if until <= 0 {
		t.RemoveUser(userID, roomID)
		return
	}

	t.Lock()
	defer t.Unlock()
	if t.rooms[roomID] == nil {
		t.rooms[roomID] = make(map[string]*time.Timer)
	}
	if timer, ok := t.rooms[roomID][userID]; ok {
		timer.Stop()
	}
	t.rooms[roomID][userID] = time.AfterFunc(until, func() {
		t.expireUser(userID, roomID)
	})
}

// SetTypingUsers replaces the set of users typing in roomID. Users no longer
// present have their timers stopped; new users get the default timeout.
func (t *TypingCache) SetTypingUsers(roomID string, userIDs []string) {
	keep := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		keep[userID] = struct{}{}
	}

	t.Lock()
	for userID, timer := range t.rooms[roomID] {
		if _, ok := keep[userID]; !ok {
			timer.Stop()
			delete(t.rooms[roomID], userID)
		}
	}
	t.Unlock()

	for _, userID := range userIDs {
		t.AddTypingUser(userID, roomID, nil)
	}
}

// RemoveUser removes userID from the typing set of roomID, stopping any
// pending expiry timer. The timeout callback is not invoked.
func (t *TypingCache) RemoveUser(userID, roomID string) {
	t.Lock()
	defer t.Unlock()
	if timer, ok := t.rooms[roomID][userID]; ok {
		timer.Stop()
		delete(t.rooms[roomID], userID)
	}
}

func (t *TypingCache) expireUser(userID, roomID string) {
	t.Lock()
	delete(t.rooms[roomID], userID)
	callback := t.timeoutCallback
	t.Unlock()

	if callback != nil {
		callback(userID, roomID)
	}
}
