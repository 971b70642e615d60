package ports

// TokenIssuer builds a signed access credential for a participant joining a room.
// The credential format is provider-defined and opaque to the coordinator.
type TokenIssuer interface {
	Issue(identity, displayName, roomName string) (string, error)
}
