package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/communet/sessiond/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Key scheme, one namespace per concern. Single-key operations (or one pipeline
// per grouped write) are the only atomicity granularity offered here.
const (
	roomPrefix      = "session:room:"
	therapistPrefix = "user:therapist:"
	clientPrefix    = "user:client:"
	chatRoomPrefix  = "chat:session:"
)

// Store implements ports.SessionStore using Redis.
type Store struct {
	client *backend.Client
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets an expiration for session keys. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		ttl:    0,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// PutSession writes the session record hash as one grouped write.
func (s *Store) PutSession(ctx context.Context, rec domain.SessionRecord) error {
	key := roomPrefix + rec.RoomName

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"therapist": rec.Therapist,
		"client":    rec.Client,
		"createdAt": rec.CreatedAt.Format(time.RFC3339),
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write session hash: %w", err)
	}
	return nil
}

// SessionClient returns the client identity stored in the session hash.
func (s *Store) SessionClient(ctx context.Context, roomName string) (string, error) {
	val, err := s.client.HGet(ctx, roomPrefix+roomName, "client").Result()
	if err != nil {
		if err == backend.Nil {
			return "", domain.ErrNoSession
		}
		return "", fmt.Errorf("failed to read session hash: %w", err)
	}
	return val, nil
}

// TherapistRoom resolves the active room for a therapist identity.
func (s *Store) TherapistRoom(ctx context.Context, identity string) (string, error) {
	return s.lookup(ctx, therapistPrefix+identity)
}

// ClientRoom resolves the active room for a client identity.
func (s *Store) ClientRoom(ctx context.Context, identity string) (string, error) {
	return s.lookup(ctx, clientPrefix+identity)
}

func (s *Store) lookup(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == backend.Nil {
			return "", domain.ErrNoSession
		}
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	if val == "" {
		return "", domain.ErrNoSession
	}
	return val, nil
}

// SetRoomIndices writes both identity→room mappings in one pipeline.
func (s *Store) SetRoomIndices(ctx context.Context, roomName, therapist, client string) error {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, therapistPrefix+therapist, roomName, s.ttl)
	pipe.Set(ctx, clientPrefix+client, roomName, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write identity indices: %w", err)
	}
	return nil
}

// ChatRoom resolves the companion chat room id for a session.
func (s *Store) ChatRoom(ctx context.Context, roomName string) (int64, error) {
	val, err := s.lookup(ctx, chatRoomPrefix+roomName)
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed chat room id %q: %w", val, err)
	}
	return id, nil
}

// SetChatRoom writes the session→chat room mapping.
func (s *Store) SetChatRoom(ctx context.Context, roomName string, chatRoomID int64) error {
	err := s.client.Set(ctx, chatRoomPrefix+roomName, strconv.FormatInt(chatRoomID, 10), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to write chat room index: %w", err)
	}
	return nil
}

// DeleteChatRoom removes the session→chat room mapping.
func (s *Store) DeleteChatRoom(ctx context.Context, roomName string) error {
	return s.client.Del(ctx, chatRoomPrefix+roomName).Err()
}

// DeleteSession removes the session hash and both identity indices.
// The three deletes are pipelined but not transactional; a crash mid-way leaves
// keys that the teardown path treats as already cleaned.
func (s *Store) DeleteSession(ctx context.Context, roomName, therapist, client string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, roomPrefix+roomName)
	pipe.Del(ctx, therapistPrefix+therapist)
	pipe.Del(ctx, clientPrefix+client)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session keys: %w", err)
	}
	return nil
}

// Ping verifies the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
