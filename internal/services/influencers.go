package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/shopspring/decimal"
)

var activeListingKey = CacheKey("influencers", "active")

// maxMessagePrice fits NUMERIC(10,2).
var maxMessagePrice = decimal.RequireFromString("99999999.99")

// InfluencerListings caches the public discovery list.
type InfluencerListings struct {
	cache ListingCache
	ttl   time.Duration
}

func NewInfluencerListings(cache ListingCache, ttl time.Duration) *InfluencerListings {
	return &InfluencerListings{cache: cache, ttl: ttl}
}

func (l *InfluencerListings) get(ctx context.Context) ([]models.InfluencerListing, bool) {
	if l == nil || l.cache == nil {
		return nil, false
	}
	var out []models.InfluencerListing
	ok, err := l.cache.Get(ctx, activeListingKey, &out)
	if err != nil {
		log.Printf("influencers: cache read failed: %v", err)
		return nil, false
	}
	return out, ok
}

func (l *InfluencerListings) set(ctx context.Context, list []models.InfluencerListing) {
	if l == nil || l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, activeListingKey, list, l.ttl); err != nil {
		log.Printf("influencers: cache write failed: %v", err)
	}
}

func (l *InfluencerListings) invalidate(ctx context.Context) {
	if l == nil || l.cache == nil {
		return
	}
	if err := l.cache.Delete(ctx, activeListingKey); err != nil {
		log.Printf("influencers: cache invalidation failed: %v", err)
	}
}

// Influencers manages influencer profiles.
type Influencers struct {
	store    Store
	audit    AuditLogger
	listings *InfluencerListings
}

func NewInfluencers(store Store, audit AuditLogger, listings *InfluencerListings) *Influencers {
	return &Influencers{store: store, audit: audit, listings: listings}
}

// SetVerified is admin-only.
func (s *Influencers) SetVerified(ctx context.Context, admin *models.User, profileID int64, verified bool) error {
	if err := RequireRole(admin, models.RoleAdmin); err != nil {
		return err
	}
	if err := s.store.SetInfluencerVerified(ctx, profileID, verified); err != nil {
		return err
	}
	s.listings.invalidate(ctx)
	recordAdminAction(ctx, s.audit, admin, "set_verified", fmt.Sprint(profileID), map[string]interface{}{"is_verified": verified})
	return nil
}

// SetActive is admin-only. Owners toggle their own flag through UpdateProfile.
func (s *Influencers) SetActive(ctx context.Context, admin *models.User, profileID int64, active bool) error {
	if err := RequireRole(admin, models.RoleAdmin); err != nil {
		return err
	}
	if err := s.store.SetInfluencerActive(ctx, profileID, active); err != nil {
		return err
	}
	s.listings.invalidate(ctx)
	recordAdminAction(ctx, s.audit, admin, "set_active", fmt.Sprint(profileID), map[string]interface{}{"is_active": active})
	return nil
}

type UpdateProfileInput struct {
	Bio          string   `json:"bio"`
	MessagePrice string   `json:"message_price"`
	FirstName    *string  `json:"first_name,omitempty"`
	LastName     *string  `json:"last_name,omitempty"`
	IsActive     *bool    `json:"is_active,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	SocialLinks  []string `json:"social_links,omitempty"`
}

// ParseMessagePrice reads a non-negative price. Absent or unparseable input gives the default.
func ParseMessagePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.DefaultMessagePrice, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil || price.IsNegative() {
		return models.DefaultMessagePrice, nil
	}
	if price.GreaterThan(maxMessagePrice) {
		return decimal.Zero, fmt.Errorf("%w: message price exceeds %s", ErrValidation, maxMessagePrice)
	}
	return price.Round(2), nil
}

// UpdateProfile edits the actor's own profile and, when given, their name.
func (s *Influencers) UpdateProfile(ctx context.Context, actor *models.User, in UpdateProfileInput) (*models.InfluencerProfile, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	price, err := ParseMessagePrice(in.MessagePrice)
	if err != nil {
		return nil, err
	}

	var updated *models.InfluencerProfile
	err = s.store.WithTx(ctx, func(r Repo) error {
		profile, err := r.GetInfluencerProfileByUser(ctx, actor.ID)
		if err != nil {
			return err
		}
		if err := RequireOwnership(actor, profile.UserID); err != nil {
			return err
		}

		profile.Bio = strings.TrimSpace(in.Bio)
		profile.MessagePrice = price
		if in.IsActive != nil {
			profile.IsActive = *in.IsActive
		}
		if in.Categories != nil {
			profile.Categories = cleanList(in.Categories)
		}
		if in.SocialLinks != nil {
			profile.SocialLinks = cleanList(in.SocialLinks)
		}
		if err := r.UpdateInfluencerProfile(ctx, profile); err != nil {
			return err
		}

		if in.FirstName != nil || in.LastName != nil {
			first, last := actor.FirstName, actor.LastName
			if in.FirstName != nil {
				first = strings.TrimSpace(*in.FirstName)
			}
			if in.LastName != nil {
				last = strings.TrimSpace(*in.LastName)
			}
			if err := r.UpdateUserNames(ctx, actor.ID, first, last); err != nil {
				return err
			}
			actor.FirstName, actor.LastName = first, last
		}
		updated = profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.listings.invalidate(ctx)
	return updated, nil
}

// ListActive returns discoverable influencers, cached.
func (s *Influencers) ListActive(ctx context.Context) ([]models.InfluencerListing, error) {
	if cached, ok := s.listings.get(ctx); ok {
		return cached, nil
	}
	list, err := s.store.ListInfluencers(ctx, true)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.InfluencerListing{}
	}
	s.listings.set(ctx, list)
	return list, nil
}

// ListAll includes inactive profiles, for the admin panel.
func (s *Influencers) ListAll(ctx context.Context, admin *models.User) ([]models.InfluencerListing, error) {
	if err := RequireRole(admin, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.ListInfluencers(ctx, false)
}

// GetProfile returns the public profile of an influencer user.
func (s *Influencers) GetProfile(ctx context.Context, userID string) (*models.InfluencerListing, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Role != models.RoleInfluencer {
		return nil, fmt.Errorf("%w: influencer", ErrNotFound)
	}
	p, err := s.store.GetInfluencerProfileByUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: influencer profile", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &models.InfluencerListing{
		InfluencerProfile: *p,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		ImageURL:          u.ImageURL,
	}, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
