package models

import "time"

// InitialCreditGrant is given to every new user on first sight.
const InitialCreditGrant int64 = 5

type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionUsage    TransactionType = "usage"
	TransactionRefund   TransactionType = "refund"
)

type CreditBalance struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreditTransaction is an immutable ledger row. Amount is negative for usage.
type CreditTransaction struct {
	ID          int64           `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      int64           `json:"amount"`
	Type        TransactionType `json:"type"`
	ExternalRef string          `json:"external_ref,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CreditPackage is a purchasable bundle of credits. PriceCents is in USD cents.
type CreditPackage struct {
	ID         string `json:"id"`
	Credits    int64  `json:"credits"`
	PriceCents int64  `json:"price_cents"`
}
