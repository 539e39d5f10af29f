package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

const NotificationKindNewMessage = "new_message"

// Notification is an outbox row. It is written in the same transaction as the
// state change it announces and delivered later by the relay.
type Notification struct {
	ID          uuid.UUID          `json:"id"`
	Kind        string             `json:"kind"`
	RecipientID string             `json:"recipient_id"`
	ToAddress   string             `json:"to_address"`
	Subject     string             `json:"subject"`
	Body        string             `json:"body"`
	Status      NotificationStatus `json:"status"`
	Attempts    int                `json:"attempts"`
	LastError   string             `json:"last_error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	SentAt      *time.Time         `json:"sent_at,omitempty"`
	// ClaimedUntil hides the row from other relays while one delivers it.
	ClaimedUntil *time.Time `json:"claimed_until,omitempty"`
}
