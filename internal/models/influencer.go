package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMessagePrice applies when a profile is missing or a price cannot be parsed.
var DefaultMessagePrice = decimal.NewFromInt(5)

type InfluencerProfile struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"user_id"`
	Bio          string          `json:"bio"`
	MessagePrice decimal.Decimal `json:"message_price"`
	IsVerified   bool            `json:"is_verified"`
	IsActive     bool            `json:"is_active"`
	Categories   []string        `json:"categories"`
	SocialLinks  []string        `json:"social_links"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PriceInCredits is the number of whole credits charged per message.
// Fractional prices round up.
func (p *InfluencerProfile) PriceInCredits() int64 {
	return CreditsForPrice(p.MessagePrice)
}

// CreditsForPrice converts a decimal message price to whole credits, rounding up.
func CreditsForPrice(price decimal.Decimal) int64 {
	if price.IsNegative() {
		return 0
	}
	return price.Ceil().IntPart()
}

// InfluencerListing is a profile joined with the owner's public fields, used for discovery.
type InfluencerListing struct {
	InfluencerProfile
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url,omitempty"`
}
