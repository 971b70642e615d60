package ports

import (
	"context"

	"github.com/communet/sessiond/pkg/domain"
)

// SessionStore is a thin semantic wrapper over a key-value store. Each method maps
// to one key (or one pipelined group of keys); implementations guarantee atomicity
// per key only, never across keys.
type SessionStore interface {
	// PutSession writes the session record hash as one grouped write.
	PutSession(ctx context.Context, rec domain.SessionRecord) error

	// SessionClient returns the client identity recorded in the session hash.
	// Returns domain.ErrNoSession if the hash or field is absent.
	SessionClient(ctx context.Context, roomName string) (string, error)

	// TherapistRoom resolves the active room for a therapist identity.
	// Returns domain.ErrNoSession if none.
	TherapistRoom(ctx context.Context, identity string) (string, error)

	// ClientRoom resolves the active room for a client identity.
	// Returns domain.ErrNoSession if none.
	ClientRoom(ctx context.Context, identity string) (string, error)

	// SetRoomIndices writes both identity→room mappings.
	SetRoomIndices(ctx context.Context, roomName, therapist, client string) error

	// ChatRoom resolves the companion chat room id for a session.
	// Returns domain.ErrNoSession if the entry is absent or blank.
	ChatRoom(ctx context.Context, roomName string) (int64, error)

	// SetChatRoom writes the session→chat room mapping.
	SetChatRoom(ctx context.Context, roomName string, chatRoomID int64) error

	// DeleteChatRoom removes the session→chat room mapping.
	DeleteChatRoom(ctx context.Context, roomName string) error

	// DeleteSession removes the session hash and both identity indices.
	// Deleting an already-absent session is not an error.
	DeleteSession(ctx context.Context, roomName, therapist, client string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
