package livekit

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/communet/sessiond/pkg/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
)

// WebhookReceiver verifies and decodes inbound provider events. The provider
// signs each delivery with a JWT in the Authorization header whose sha256 claim
// is the base64 digest of the body.
type WebhookReceiver struct {
	apiKey    string
	apiSecret string
}

// NewWebhookReceiver creates a receiver for the shared provider credentials.
func NewWebhookReceiver(apiKey, apiSecret string) *WebhookReceiver {
	return &WebhookReceiver{
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

// Verify checks the delivery signature and decodes the body into a typed event.
// Any verification or decoding failure wraps domain.ErrWebhookVerification.
func (r *WebhookReceiver) Verify(body []byte, authHeader string) (domain.WebhookEvent, error) {
	var event domain.WebhookEvent

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(authHeader, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(r.apiSecret), nil
	})
	if err != nil || !token.Valid {
		return event, fmt.Errorf("%w: bad auth token: %v", domain.ErrWebhookVerification, err)
	}

	if iss, _ := claims["iss"].(string); iss != r.apiKey {
		return event, fmt.Errorf("%w: unknown issuer", domain.ErrWebhookVerification)
	}

	digest := sha256.Sum256(body)
	if claimed, _ := claims["sha256"].(string); claimed != base64.StdEncoding.EncodeToString(digest[:]) {
		return event, fmt.Errorf("%w: body digest mismatch", domain.ErrWebhookVerification)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return event, fmt.Errorf("%w: malformed body: %v", domain.ErrWebhookVerification, err)
	}
	// JSON numbers arrive as float64; weak typing folds them into the int64
	// timestamp field.
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &event,
	})
	if err != nil {
		return event, err
	}
	if err := dec.Decode(raw); err != nil {
		return event, fmt.Errorf("%w: unexpected payload shape: %v", domain.ErrWebhookVerification, err)
	}

	return event, nil
}

// Sign builds the Authorization header value for a body. Exported for tests and
// for services that need to emit events in the same format.
func (r *WebhookReceiver) Sign(body []byte) (string, error) {
	digest := sha256.Sum256(body)
	claims := jwt.MapClaims{
		"iss":    r.apiKey,
		"sha256": base64.StdEncoding.EncodeToString(digest[:]),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(r.apiSecret))
}
