package ports

import "context"

// RoomProvider is the external system owning the actual real-time media room.
type RoomProvider interface {
	// DeleteRoom asks the provider to tear down the room. Implementations must
	// bound the call with a transport timeout; callers fire it off the request
	// path and observe failures only through the retry queue.
	DeleteRoom(ctx context.Context, roomName string) error
}

// DeletionQueue accepts failed room-deletion attempts for later re-issue.
type DeletionQueue interface {
	// Add enqueues a retry item for roomName carrying its attempt count.
	Add(roomName string, attempts int)
}
