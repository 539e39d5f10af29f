package services

import (
	"fmt"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
)

// RequireRole fails with ErrUnauthorized unless actor holds one of roles.
func RequireRole(actor *models.User, roles ...models.Role) error {
	if actor == nil {
		return ErrUnauthorized
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not perform this action", ErrUnauthorized, actor.Role)
}

// RequireOwnership fails with ErrUnauthorized unless actor is the owner.
func RequireOwnership(actor *models.User, ownerID string) error {
	if actor == nil || ownerID == "" || actor.ID != ownerID {
		return ErrUnauthorized
	}
	return nil
}

// requireParty checks that actor is one side of conv.
func requireParty(actor *models.User, conv *models.Conversation) error {
	if actor == nil || !conv.HasParty(actor.ID) {
		return fmt.Errorf("%w: not a party to this conversation", ErrUnauthorized)
	}
	return nil
}
