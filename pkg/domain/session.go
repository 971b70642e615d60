package domain

import "time"

// SessionRecord represents one active therapist–client room pairing as stored
// in the session hash.
type SessionRecord struct {
	// RoomName is the opaque unique identifier of the real-time room.
	RoomName string

	// Therapist and Client are the stable identity strings (emails) of the
	// two participants.
	Therapist string
	Client    string

	// CreatedAt is the session creation timestamp.
	CreatedAt time.Time
}

// SessionToken is the result of a create or join operation: a signed access
// credential for the real-time room plus the id of the companion chat room.
type SessionToken struct {
	Token      string `json:"token"`
	ChatRoomID int64  `json:"chatRoomId"`
	RoomName   string `json:"roomName"`
}

// Participant is a resolved member of the identity directory.
type Participant struct {
	Identity string
	Name     string
	Nickname string
}

// DisplayName prefers the nickname, falling back to the full name and finally
// the raw identity.
func (p Participant) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Identity
}
