package ports

import (
	"context"

	"github.com/communet/sessiond/pkg/domain"
)

// ChatBridge is the narrow surface of the persistent chat subsystem consumed by
// the coordinator. Room CRUD and message storage live behind it.
type ChatBridge interface {
	// CreateOrGetRoom creates the companion chat room for a session, or returns
	// the existing one if the session already has a room. Idempotent per session id.
	CreateOrGetRoom(ctx context.Context, sessionID string, participants []string) (int64, error)

	// PostSystemMessage records an ENTER/LEAVE message for the session. ENTER
	// messages may be buffered; LEAVE messages are stored durably right away.
	PostSystemMessage(ctx context.Context, msg domain.SystemMessage) error

	// SoftDeleteRoom marks the chat room closed without destroying its history.
	SoftDeleteRoom(ctx context.Context, roomID int64) error

	// FlushBufferedMessages moves any buffered session messages to durable
	// storage. An empty buffer is not an error.
	FlushBufferedMessages(ctx context.Context, sessionID string) error
}
