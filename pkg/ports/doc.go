/*
Package ports defines the driven ports (interfaces) for the sessiond coordinator.

These interfaces decouple the coordinator from external implementations, allowing it
to work with various key-value backends, chat subsystems, and room providers.

# Key Interfaces

  - SessionStore: The mapping and hash operations the coordinator needs (single-key
    atomicity only; no cross-key transactions are assumed anywhere).
  - ChatBridge: The companion chat subsystem (room create/soft-delete, system
    messages, buffered-message flush).
  - IdentityDirectory: Resolves identity strings to known participants.
  - RoomProvider: The external real-time room provider's delete operation.
  - TokenIssuer: Builds signed room access credentials.
  - DistributedLocker: Optional per-identity locking for concurrent create calls.
*/
package ports
