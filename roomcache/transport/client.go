// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package transport adapts the gomatrix client to the narrow surface the
// room cache needs: idempotent event submission keyed by transaction ID,
// history pagination, receipts and room leave/redact operations.
package transport

import (
	"encoding/json"
	"strconv"

	"github.com/matrix-org/gomatrix"
	"github.com/pkg/errors"

	"github.com/nativechat/nativechat/roomcache/types"
)

// Client wraps a gomatrix.Client. The wrapped client carries the access
// token and homeserver URL; Client adds the transaction-scoped send path
// that the transmission queue retries against.
type Client struct {
	mx *gomatrix.Client
}

// NewClient connects to homeserverURL as userID with accessToken.
func NewClient(homeserverURL, userID, accessToken string) (*Client, error) {
	mx, err := gomatrix.NewClient(homeserverURL, userID, accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "creating matrix client")
	}
	return &Client{mx: mx}, nil
}

// SendEvent submits one event under the given transaction ID. Repeating the
// call with the same transaction ID is safe: the server deduplicates and
// returns the event ID of the first submission.
func (c *Client) SendEvent(roomID types.RoomID, eventType, txnID string, content json.RawMessage) (types.EventID, error) {
	urlPath := c.mx.BuildURL("rooms", string(roomID), "send", eventType, txnID)
	var resp gomatrix.RespSendEvent
	if err := c.mx.MakeRequest("PUT", urlPath, content, &resp); err != nil {
		return "", err
	}
	return types.EventID(resp.EventID), nil
}

// MessageBatch is one page of room history, newest request first: Chunk is
// ordered from the most recent event backwards and End paginates further
// into the past.
type MessageBatch struct {
	Start string
	End   string
	Chunk []types.Event
}

// respMessages uses pointer fields so that an absent token can be told
// apart from an empty one.
type respMessages struct {
	Start *string           `json:"start"`
	End   *string           `json:"end"`
	Chunk []json.RawMessage `json:"chunk"`
}

// Messages fetches up to limit events of history ending at the pagination
// token from, walking backwards.
func (c *Client) Messages(roomID types.RoomID, from string, limit int) (*MessageBatch, error) {
	query := map[string]string{
		"from": from,
		"dir":  "b",
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	urlPath := c.mx.BuildURLWithQuery([]string{"rooms", string(roomID), "messages"}, query)

	var resp respMessages
	if err := c.mx.MakeRequest("GET", urlPath, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Start == nil || resp.End == nil || resp.Chunk == nil {
		return nil, errors.Errorf("malformed messages response for room %q", roomID)
	}

	batch := &MessageBatch{Start: *resp.Start, End: *resp.End}
	for _, raw := range resp.Chunk {
		var ev types.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, errors.Wrap(err, "decoding history event")
		}
		batch.Chunk = append(batch.Chunk, ev)
	}
	return batch, nil
}

// LeaveRoom leaves the room on the homeserver.
func (c *Client) LeaveRoom(roomID types.RoomID) error {
	_, err := c.mx.LeaveRoom(string(roomID))
	return err
}

// SendReadReceipt marks eventID as read.
func (c *Client) SendReadReceipt(roomID types.RoomID, eventID types.EventID) error {
	return c.mx.MarkRead(string(roomID), string(eventID))
}

// Redact redacts eventID with an optional human-readable reason.
func (c *Client) Redact(roomID types.RoomID, eventID types.EventID, reason string) (types.EventID, error) {
	resp, err := c.mx.RedactEvent(string(roomID), string(eventID), &gomatrix.ReqRedact{Reason: reason})
	if err != nil {
		return "", err
	}
	return types.EventID(resp.EventID), nil
}
