/*
Package domain contains the core domain models for the sessiond coordinator.

It defines the fundamental entities of a two-party real-time session, such as the
SessionRecord held in the key-value store, the issued SessionToken, and the system
messages bridged into the companion chat room. This package is kept pure and free of
external dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - SessionRecord: The stored snapshot of one active therapist–client room pairing.
  - SessionToken: The credential + chat room id returned to a joining party.
  - SystemMessage: An ENTER/LEAVE message posted into the companion chat room.
  - WebhookEvent: A verified, decoded room-provider event (observability only).
*/
package domain
