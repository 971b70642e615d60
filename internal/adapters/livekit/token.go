// Package livekit implements the room-provider ports against a LiveKit-compatible
// server: access token issuing, the RoomService delete call, and webhook
// verification.
package livekit

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer implements ports.TokenIssuer. Tokens are HS256 JWTs carrying a video
// grant for the target room, the scheme LiveKit clients expect.
type Issuer struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

// NewIssuer creates a token issuer for the given provider credentials.
// ttl bounds how long an issued credential can be used to join.
func NewIssuer(apiKey, apiSecret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Issuer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		ttl:       ttl,
	}
}

type videoGrant struct {
	Room       string `json:"room,omitempty"`
	RoomJoin   bool   `json:"roomJoin,omitempty"`
	RoomCreate bool   `json:"roomCreate,omitempty"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video videoGrant `json:"video"`
}

// Issue builds a join credential for (identity, displayName) against roomName.
// Pure function of its inputs plus the configured credentials.
func (i *Issuer) Issue(identity, displayName, roomName string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Name: displayName,
		Video: videoGrant{
			Room:     roomName,
			RoomJoin: true,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.apiSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// adminToken builds a short-lived credential for RoomService calls.
func (i *Issuer) adminToken() (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Video: videoGrant{
			RoomCreate: true,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.apiSecret))
}
