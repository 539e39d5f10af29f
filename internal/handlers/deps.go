package handlers

import (
	"context"

	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/redis/go-redis/v9"
)

// DeliveryReader exposes the notification delivery log to admins.
type DeliveryReader interface {
	RecentDeliveries(ctx context.Context, recipientID string, limit int64) ([]services.Delivery, error)
}

// Deps are the services the HTTP handlers call into. Set once at startup via Init.
type Deps struct {
	Directory   *services.Directory
	Influencers *services.Influencers
	Ledger      *services.Ledger
	Messaging   *services.Messaging
	Checkout    *services.Checkout
	Hub         *services.Hub
	Deliveries  DeliveryReader // nil when MongoDB is unavailable
	RateLimits  *redis.Client  // nil when Redis is unavailable

	JWTSecret           string
	ClerkWebhookSecret  string
	StripeWebhookSecret string
}

var deps Deps

// Init installs the services used by every handler in this package.
func Init(d Deps) {
	deps = d
}
