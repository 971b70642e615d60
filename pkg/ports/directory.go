package ports

import (
	"context"

	"github.com/communet/sessiond/pkg/domain"
)

// IdentityDirectory resolves stable identity strings to known participants.
type IdentityDirectory interface {
	// Resolve returns the participant for an identity.
	// Returns domain.ErrParticipantNotFound if the identity is unknown.
	Resolve(ctx context.Context, identity string) (domain.Participant, error)
}
