package domain

import "time"

// MessageKind classifies a system message bridged into the chat room.
type MessageKind string

const (
	MessageEnter MessageKind = "ENTER"
	MessageLeave MessageKind = "LEAVE"
)

// SystemMessage is an ENTER/LEAVE notification posted into the companion chat
// room on session entry and exit.
type SystemMessage struct {
	// SessionID is the roomName of the session the message belongs to.
	SessionID string `json:"sessionId"`

	// RoomID is the persistent chat room the message is addressed to.
	RoomID int64 `json:"roomId"`

	// Sender is the identity of the participant the message is about.
	Sender string `json:"senderId"`

	Kind    MessageKind `json:"messageType"`
	Content string      `json:"content"`
	SentAt  time.Time   `json:"sentAt"`
}
