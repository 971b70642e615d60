package ports

import (
	"context"
	"testing"
	"time"

	"github.com/communet/sessiond/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	roomName := "contract-room-" + time.Now().Format("20060102150405")

	rec := domain.SessionRecord{
		RoomName:  roomName,
		Therapist: "therapist@contract.test",
		Client:    "client@contract.test",
		CreatedAt: time.Now().Truncate(time.Second),
	}

	t.Run("PutSession and SessionClient", func(t *testing.T) {
		require.NoError(t, store.PutSession(ctx, rec))

		client, err := store.SessionClient(ctx, roomName)
		require.NoError(t, err)
		assert.Equal(t, rec.Client, client)
	})

	t.Run("SessionClient Non-Existent", func(t *testing.T) {
		_, err := store.SessionClient(ctx, "non-existent-"+roomName)
		assert.ErrorIs(t, err, domain.ErrNoSession)
	})

	t.Run("Identity Indices", func(t *testing.T) {
		require.NoError(t, store.SetRoomIndices(ctx, roomName, rec.Therapist, rec.Client))

		got, err := store.TherapistRoom(ctx, rec.Therapist)
		require.NoError(t, err)
		assert.Equal(t, roomName, got)

		got, err = store.ClientRoom(ctx, rec.Client)
		require.NoError(t, err)
		assert.Equal(t, roomName, got)

		_, err = store.TherapistRoom(ctx, "stranger@contract.test")
		assert.ErrorIs(t, err, domain.ErrNoSession)
	})

	t.Run("Chat Room Index", func(t *testing.T) {
		_, err := store.ChatRoom(ctx, roomName)
		assert.ErrorIs(t, err, domain.ErrNoSession, "unset chat index should read as no session")

		require.NoError(t, store.SetChatRoom(ctx, roomName, 42))

		id, err := store.ChatRoom(ctx, roomName)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)

		require.NoError(t, store.DeleteChatRoom(ctx, roomName))
		_, err = store.ChatRoom(ctx, roomName)
		assert.ErrorIs(t, err, domain.ErrNoSession)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		require.NoError(t, store.DeleteSession(ctx, roomName, rec.Therapist, rec.Client))

		_, err := store.SessionClient(ctx, roomName)
		assert.ErrorIs(t, err, domain.ErrNoSession)
		_, err = store.TherapistRoom(ctx, rec.Therapist)
		assert.ErrorIs(t, err, domain.ErrNoSession)
		_, err = store.ClientRoom(ctx, rec.Client)
		assert.ErrorIs(t, err, domain.ErrNoSession)

		// Idempotent: deleting again is fine.
		assert.NoError(t, store.DeleteSession(ctx, roomName, rec.Therapist, rec.Client))
	})
}
