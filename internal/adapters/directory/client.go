// Package directory implements ports.IdentityDirectory against the member
// service REST API.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/communet/sessiond/pkg/domain"
)

// Client resolves identities through the member service.
type Client struct {
	http    *http.Client
	baseURL string
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Client) {
		d.http = c
	}
}

// New creates a directory client for the member service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	d := &Client{
		http:    &http.Client{Timeout: 5 * time.Second},
		baseURL: baseURL,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

type memberResponse struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
}

// Resolve returns the participant for an identity.
func (d *Client) Resolve(ctx context.Context, identity string) (domain.Participant, error) {
	var zero domain.Participant

	path := d.baseURL + "/internal/members/" + url.PathEscape(identity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return zero, err
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("member lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return zero, fmt.Errorf("%s: %w", identity, domain.ErrParticipantNotFound)
	case resp.StatusCode >= 300:
		return zero, fmt.Errorf("member service returned %d for %s", resp.StatusCode, identity)
	}

	var m memberResponse
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return zero, fmt.Errorf("failed to decode member response: %w", err)
	}

	return domain.Participant{
		Identity: m.Identity,
		Name:     m.Name,
		Nickname: m.Nickname,
	}, nil
}
