package domain

import "errors"

// ErrNoSession is returned when an identity has no active session in the store.
// It is a caller-level condition: "create first" for clients, "already torn down"
// for a repeated teardown.
var ErrNoSession = errors.New("no active session")

// ErrParticipantNotFound is returned when an identity cannot be resolved to a
// known participant.
var ErrParticipantNotFound = errors.New("participant not found")

// ErrChatRoomIndexMissing is returned when a session exists but its companion
// chat-room index entry is missing or blank. It indicates an earlier partial
// write and is a server-side fault, not a caller error.
var ErrChatRoomIndexMissing = errors.New("chat room index missing for active session")

// ErrSessionRecordIncomplete is returned when an identity index points at a
// session whose record hash is missing required fields. Like
// ErrChatRoomIndexMissing it signals an earlier partial write.
var ErrSessionRecordIncomplete = errors.New("session record incomplete")

// ErrWebhookVerification is returned when an inbound provider event fails
// signature verification or cannot be decoded.
var ErrWebhookVerification = errors.New("webhook verification failed")
