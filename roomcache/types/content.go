// Copyright 2026 The NativeChat Authors.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package types

// MemberContent is the content of an m.room.member event.
type MemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Message type constants for m.room.message content.
const (
	MsgTypeText  = "m.text"
	MsgTypeEmote = "m.emote"
	MsgTypeFile  = "m.file"
)

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType  string    `json:"msgtype"`
	Body     string    `json:"body"`
	URL      string    `json:"url,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Info     *FileInfo `json:"info,omitempty"`
}

// FileInfo describes an uploaded file attached to a message.
type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
}
