package livekit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RoomClient implements ports.RoomProvider over the LiveKit RoomService API.
// The HTTP client carries an explicit timeout so a wedged provider cannot hold
// the async teardown path open indefinitely.
type RoomClient struct {
	http   *http.Client
	url    string
	issuer *Issuer
}

type ClientOption func(*RoomClient)

// WithTimeout overrides the transport timeout for provider calls.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *RoomClient) {
		c.http.Timeout = d
	}
}

// NewRoomClient creates a client for the RoomService at url.
func NewRoomClient(url string, issuer *Issuer, opts ...ClientOption) *RoomClient {
	c := &RoomClient{
		http:   &http.Client{Timeout: 5 * time.Second},
		url:    url,
		issuer: issuer,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DeleteRoom asks the provider to tear down the room. A non-2xx response is an
// explicit failure; transport errors surface as-is. Callers decide whether to
// enqueue a retry.
func (c *RoomClient) DeleteRoom(ctx context.Context, roomName string) error {
	body, err := json.Marshal(map[string]string{"room": roomName})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url+"/twirp/livekit.RoomService/DeleteRoom", bytes.NewReader(body))
	if err != nil {
		return err
	}

	token, err := c.issuer.adminToken()
	if err != nil {
		return fmt.Errorf("failed to build admin token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete room request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d deleting room %s: %s", resp.StatusCode, roomName, msg)
	}
	return nil
}
