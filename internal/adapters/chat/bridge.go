// Package chat implements ports.ChatBridge against the persistent chat service.
//
// Room lifecycle calls (create, soft-delete) and durable message writes go to
// the chat service REST API. ENTER messages are buffered in Redis per session
// and only flushed to durable storage when the session ends, so a noisy call
// does not hammer the chat database while the session is live.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/communet/sessiond/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

const bufferPrefix = "chat:buffer:"

// Bridge implements ports.ChatBridge.
type Bridge struct {
	http    *http.Client
	baseURL string
	redis   *backend.Client
}

type Option func(*Bridge)

// WithHTTPClient overrides the HTTP client used for chat service calls.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bridge) {
		b.http = c
	}
}

// New creates a bridge talking to the chat service at baseURL, buffering
// session messages in the given Redis client.
func New(baseURL string, redis *backend.Client, opts ...Option) *Bridge {
	b := &Bridge{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		redis:   redis,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

type createRoomRequest struct {
	SessionID    string   `json:"sessionId"`
	RoomName     string   `json:"roomName"`
	RoomType     string   `json:"roomType"`
	Participants []string `json:"participants"`
}

type createRoomResponse struct {
	RoomID int64 `json:"roomId"`
}

// CreateOrGetRoom creates the companion chat room for a session, or returns the
// existing one. The chat service keys rooms by session id, so repeated calls
// for the same session resolve to the same room.
func (b *Bridge) CreateOrGetRoom(ctx context.Context, sessionID string, participants []string) (int64, error) {
	req := createRoomRequest{
		SessionID:    sessionID,
		RoomName:     "Session chat",
		RoomType:     "SESSION",
		Participants: participants,
	}

	var resp createRoomResponse
	if err := b.post(ctx, "/internal/chat/rooms", req, &resp); err != nil {
		return 0, fmt.Errorf("failed to create chat room: %w", err)
	}
	return resp.RoomID, nil
}

// PostSystemMessage records an ENTER/LEAVE message. LEAVE messages are stored
// durably right away; everything else lands in the session's Redis buffer.
func (b *Bridge) PostSystemMessage(ctx context.Context, msg domain.SystemMessage) error {
	if msg.Kind == domain.MessageLeave {
		path := fmt.Sprintf("/internal/chat/rooms/%d/messages", msg.RoomID)
		if err := b.post(ctx, path, msg, nil); err != nil {
			return fmt.Errorf("failed to store leave message: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal system message: %w", err)
	}

	if err := b.redis.RPush(ctx, bufferPrefix+msg.SessionID, data).Err(); err != nil {
		return fmt.Errorf("failed to buffer system message: %w", err)
	}
	return nil
}

// SoftDeleteRoom marks the chat room closed without destroying its history.
func (b *Bridge) SoftDeleteRoom(ctx context.Context, roomID int64) error {
	path := fmt.Sprintf("%s/internal/chat/rooms/%d", b.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to soft-delete chat room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat service returned %d deleting room %d", resp.StatusCode, roomID)
	}
	return nil
}

type flushRequest struct {
	SessionID string                 `json:"sessionId"`
	Messages  []domain.SystemMessage `json:"messages"`
}

// FlushBufferedMessages moves any buffered session messages to durable storage.
// The buffer is only cleared after the chat service accepts the batch, so a
// failed flush can be retried.
func (b *Bridge) FlushBufferedMessages(ctx context.Context, sessionID string) error {
	key := bufferPrefix + sessionID

	raw, err := b.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read message buffer: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	msgs := make([]domain.SystemMessage, 0, len(raw))
	for _, r := range raw {
		var m domain.SystemMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return fmt.Errorf("malformed buffered message: %w", err)
		}
		msgs = append(msgs, m)
	}

	if err := b.post(ctx, "/internal/chat/messages/batch", flushRequest{SessionID: sessionID, Messages: msgs}, nil); err != nil {
		return fmt.Errorf("failed to flush buffered messages: %w", err)
	}

	return b.redis.Del(ctx, key).Err()
}

func (b *Bridge) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat service returned %d for %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode chat service response: %w", err)
		}
	}
	return nil
}
