package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Conversation is the single thread between one fan (UserID) and one influencer.
type Conversation struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"user_id"`
	InfluencerID  string    `json:"influencer_id"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasParty reports whether userID is either side of the conversation.
func (c *Conversation) HasParty(userID string) bool {
	return c.UserID == userID || c.InfluencerID == userID
}

// Counterpart returns the other party's id.
func (c *Conversation) Counterpart(userID string) string {
	if c.UserID == userID {
		return c.InfluencerID
	}
	return c.UserID
}

type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	IsRead         bool       `json:"is_read"`
	CreatedAt      time.Time  `json:"created_at"`
	VoiceMemo      *VoiceMemo `json:"voice_memo,omitempty"`
}

// MessageCursor marks a position in a thread. Messages order by
// (CreatedAt, ID), so messages sharing a timestamp still page exactly once.
type MessageCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        uuid.UUID `json:"id"`
}

// CursorOf returns the cursor positioned at m.
func CursorOf(m Message) *MessageCursor {
	return &MessageCursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// VoiceMemo is an audio attachment on an influencer's message. Duration is in seconds.
type VoiceMemo struct {
	ID           uuid.UUID `json:"id"`
	MessageID    uuid.UUID `json:"message_id"`
	InfluencerID string    `json:"influencer_id"`
	FileURL      string    `json:"file_url"`
	Duration     int       `json:"duration"`
	IsRead       bool      `json:"is_read"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	Conversation
	CounterpartID        string     `json:"counterpart_id"`
	CounterpartFirstName string     `json:"counterpart_first_name"`
	CounterpartLastName  string     `json:"counterpart_last_name"`
	CounterpartImageURL  string     `json:"counterpart_image_url,omitempty"`
	LastMessage          string     `json:"last_message,omitempty"`
	LastMessageSenderID  string     `json:"last_message_sender_id,omitempty"`
	LastMessageCreatedAt *time.Time `json:"last_message_created_at,omitempty"`
	UnreadCount          int64      `json:"unread_count"`
}

// Dashboard summarizes a user's activity. Earnings fields are set for influencers only.
type Dashboard struct {
	Role              Role             `json:"role"`
	Balance           int64            `json:"balance"`
	UnreadCount       int64            `json:"unread_count"`
	ConversationCount int64            `json:"conversation_count"`
	MessagesFromFans  int64            `json:"messages_from_fans,omitempty"`
	TotalFans         int64            `json:"total_fans,omitempty"`
	MessagePrice      *decimal.Decimal `json:"message_price,omitempty"`
	TotalEarnings     *decimal.Decimal `json:"total_earnings,omitempty"`
}
