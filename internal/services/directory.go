package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
)

// Identity-provider lifecycle event types.
const (
	IdentityCreated = "user.created"
	IdentityUpdated = "user.updated"
	IdentityDeleted = "user.deleted"
)

// Directory maps external identities to local users and manages roles.
type Directory struct {
	store    Store
	audit    AuditLogger
	listings *InfluencerListings
}

func NewDirectory(store Store, audit AuditLogger, listings *InfluencerListings) *Directory {
	return &Directory{store: store, audit: audit, listings: listings}
}

// EnsureUser returns the local user for id, creating it with the initial
// credit grant on first sight. Safe under concurrent calls for one identity.
func (d *Directory) EnsureUser(ctx context.Context, id models.Identity) (*models.User, error) {
	if strings.TrimSpace(id.ID) == "" {
		return nil, fmt.Errorf("%w: identity id is required", ErrValidation)
	}

	u, err := d.store.GetUser(ctx, id.ID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	err = d.store.WithTx(ctx, func(r Repo) error {
		created, err := r.InsertUserIfAbsent(ctx, &models.User{
			ID:        id.ID,
			Email:     id.Email,
			FirstName: id.FirstName,
			LastName:  id.LastName,
			ImageURL:  id.ImageURL,
			Role:      models.RoleUser,
		})
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return r.CreateCreditBalance(ctx, id.ID, models.InitialCreditGrant)
	})
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return d.store.GetUser(ctx, id.ID)
}

// SyncIdentity mirrors an identity-provider lifecycle event into the users table.
func (d *Directory) SyncIdentity(ctx context.Context, eventType string, id models.Identity) error {
	switch eventType {
	case IdentityCreated:
		_, err := d.EnsureUser(ctx, id)
		return err
	case IdentityUpdated:
		err := d.store.UpdateUserIdentity(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// update delivered before create
			_, err = d.EnsureUser(ctx, id)
		}
		return err
	case IdentityDeleted:
		if id.ID == "" {
			return fmt.Errorf("%w: deleted event without user id", ErrValidation)
		}
		err := d.store.DeleteUser(ctx, id.ID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err == nil {
			d.listings.invalidate(ctx)
		}
		return err
	}
	log.Printf("directory: ignoring identity event %q", eventType)
	return nil
}

// SetRole changes target's role. Promoting to influencer creates a verified
// profile when none exists; demoting leaves any profile in place.
func (d *Directory) SetRole(ctx context.Context, admin *models.User, targetID string, role models.Role) (*models.User, error) {
	if err := RequireRole(admin, models.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	err := d.store.WithTx(ctx, func(r Repo) error {
		if err := r.SetUserRole(ctx, targetID, role); err != nil {
			return err
		}
		if role != models.RoleInfluencer {
			return nil
		}
		_, err := r.InsertInfluencerProfileIfAbsent(ctx, &models.InfluencerProfile{
			UserID:       targetID,
			Bio:          "No bio yet",
			MessagePrice: models.DefaultMessagePrice,
			IsVerified:   true,
			IsActive:     true,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	d.listings.invalidate(ctx)
	recordAdminAction(ctx, d.audit, admin, "set_role", targetID, map[string]interface{}{"role": role})
	return d.store.GetUser(ctx, targetID)
}

// BecomeInfluencer is the self-service upgrade. The new profile starts unverified.
func (d *Directory) BecomeInfluencer(ctx context.Context, actor *models.User, bio string) (*models.InfluencerProfile, error) {
	if err := RequireRole(actor, models.RoleUser, models.RoleInfluencer); err != nil {
		return nil, err
	}

	profile := &models.InfluencerProfile{
		UserID:       actor.ID,
		Bio:          strings.TrimSpace(bio),
		MessagePrice: models.DefaultMessagePrice,
		IsVerified:   false,
		IsActive:     true,
	}
	err := d.store.WithTx(ctx, func(r Repo) error {
		created, err := r.InsertInfluencerProfileIfAbsent(ctx, profile)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("%w: influencer profile already exists", ErrConflict)
		}
		return r.SetUserRole(ctx, actor.ID, models.RoleInfluencer)
	})
	if err != nil {
		return nil, err
	}

	actor.Role = models.RoleInfluencer
	d.listings.invalidate(ctx)
	return profile, nil
}

// ListUsers returns every user, newest first.
func (d *Directory) ListUsers(ctx context.Context, admin *models.User) ([]models.User, error) {
	if err := RequireRole(admin, models.RoleAdmin); err != nil {
		return nil, err
	}
	return d.store.ListUsers(ctx)
}

func recordAdminAction(ctx context.Context, audit AuditLogger, admin *models.User, action, target string, details map[string]interface{}) {
	if audit == nil {
		return
	}
	entry := AuditEntry{
		ActorID:   admin.ID,
		Action:    action,
		TargetID:  target,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	if err := audit.RecordAdminAction(ctx, entry); err != nil {
		log.Printf("audit: %s on %s failed: %v", action, target, err)
	}
}
