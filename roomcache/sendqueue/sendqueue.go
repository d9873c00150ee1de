// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sendqueue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/Arceliar/phony"
	"github.com/google/uuid"
	"github.com/matrix-org/gomatrix"
	log "github.com/sirupsen/logrus"

	"github.com/nativechat/nativechat/roomcache/types"
)

const (
	// The retry interval starts at the floor and is multiplied on each
	// transient failure until it reaches the ceiling.
	minimumBackoff = 5 * time.Second
	maximumBackoff = 30 * time.Second
	backoffFactor  = 1.25
)

// Transport performs the actual event transmission. The call blocks until
// the server answers; there is no mid-flight cancellation, the only
// termination paths are success or a classified failure.
type Transport interface {
	SendEvent(roomID types.RoomID, eventType, txnID string, content json.RawMessage) (types.EventID, error)
}

// queueState makes the retry machine's states explicit: exactly one request
// may be in flight, and a backoff wait excludes both sending and idleness.
type queueState int

const (
	// No request in flight. The queue may still hold events, e.g. after a
	// permanent failure dequeued the head while more were waiting.
	queueIdle queueState = iota
	// One request in flight.
	queueSending
	// A transient failure occurred and the retry timer is pending.
	queueBackoff
)

// Queue transmits a room's outbound events strictly in order, one in flight
// at a time, retrying transient failures with exponential backoff. The head
// event keeps a single transaction token across all of its retries so the
// server can deduplicate, and the token is regenerated only once that event
// is resolved.
//
// Queue is an actor: all of its state is confined to its inbox, and both
// network completions and the retry timer re-enter through it.
type Queue struct {
	phony.Inbox
	roomID    types.RoomID
	transport Transport
	sink      types.Sink

	pending []*types.PendingEvent
	state   queueState
	txnID   string
	backoff time.Duration

	// retryAfter schedules the retry timer; replaced in tests.
	retryAfter func(d time.Duration, f func())
}

func NewQueue(roomID types.RoomID, transport Transport, sink types.Sink) *Queue {
	return &Queue{
		roomID:    roomID,
		transport: transport,
		sink:      sink,
		backoff:   minimumBackoff,
		retryAfter: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Send enqueues an event for transmission and starts transmitting if
// nothing is in flight or backing off.
func (q *Queue) Send(eventType string, content json.RawMessage) {
	q.Act(nil, func() {
		q.pending = append(q.pending, &types.PendingEvent{Type: eventType, Content: content})
		observeSendQueueDepth(1)
		if q.state == queueIdle {
			q.transmit()
		}
	})
}

// transmit starts sending the head of the queue. Must only be called from
// inside the inbox with state Idle and a non-empty queue.
func (q *Queue) transmit() {
	event := q.pending[0]
	if q.txnID == "" {
		q.txnID = uuid.NewString()
	}
	q.state = queueSending
	txnID := q.txnID
	sendAttempts.Inc()
	go func() {
		eventID, err := q.transport.SendEvent(q.roomID, event.Type, txnID, event.Content)
		q.Act(nil, func() {
			q.transmitFinished(eventID, err)
		})
	}()
}

func (q *Queue) transmitFinished(eventID types.EventID, err error) {
	q.state = queueIdle
	retrying := false
	switch {
	case err == nil:
		log.WithFields(log.Fields{
			"room_id":  q.roomID,
			"event_id": eventID,
		}).Debug("Event sent")
		q.dequeue()
	case isPermanentFailure(err):
		// HTTP client errors other than rate-limiting are unrecoverable.
		if q.sink != nil {
			q.sink.Notify(types.SendError{Err: err})
		}
		q.dequeue()
	default:
		retrying = true
		log.WithError(err).WithFields(log.Fields{
			"room_id":  q.roomID,
			"retry_in": q.backoff,
		}).Warn("Retrying event send")
	}

	if !retrying {
		q.txnID = ""
		q.backoff = minimumBackoff
	}
	if len(q.pending) == 0 {
		return
	}
	if retrying {
		wait := q.backoff
		next := time.Duration(float64(q.backoff) * backoffFactor)
		if next > maximumBackoff {
			next = maximumBackoff
		}
		q.backoff = next
		q.state = queueBackoff
		q.retryAfter(wait, func() {
			q.Act(nil, func() {
				q.state = queueIdle
				q.transmit()
			})
		})
	} else {
		q.transmit()
	}
}

func (q *Queue) dequeue() {
	q.pending = q.pending[1:]
	observeSendQueueDepth(-1)
}

// isPermanentFailure reports whether the error is a definitive client error.
// HTTP 429 rate-limiting is always transient; everything outside 4xx is
// assumed to be a server or network fault worth retrying.
func isPermanentFailure(err error) bool {
	var httpErr gomatrix.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.Code >= 400 && httpErr.Code < 500 && httpErr.Code != 429
}
