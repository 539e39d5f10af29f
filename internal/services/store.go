package services

import (
	"context"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repo is the persistence surface the services run against. Implementations
// return ErrNotFound for missing rows.
type Repo interface {
	// users
	InsertUserIfAbsent(ctx context.Context, u *models.User) (bool, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUserIdentity(ctx context.Context, id models.Identity) error
	UpdateUserNames(ctx context.Context, userID, firstName, lastName string) error
	SetUserRole(ctx context.Context, userID string, role models.Role) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]models.User, error)

	// influencer profiles
	InsertInfluencerProfileIfAbsent(ctx context.Context, p *models.InfluencerProfile) (bool, error)
	GetInfluencerProfile(ctx context.Context, id int64) (*models.InfluencerProfile, error)
	GetInfluencerProfileByUser(ctx context.Context, userID string) (*models.InfluencerProfile, error)
	UpdateInfluencerProfile(ctx context.Context, p *models.InfluencerProfile) error
	SetInfluencerVerified(ctx context.Context, id int64, verified bool) error
	SetInfluencerActive(ctx context.Context, id int64, active bool) error
	ListInfluencers(ctx context.Context, activeOnly bool) ([]models.InfluencerListing, error)

	// credits
	CreateCreditBalance(ctx context.Context, userID string, balance int64) error
	AddCredits(ctx context.Context, userID string, amount int64) error
	DebitCredits(ctx context.Context, userID string, amount int64) (bool, error)
	GetCreditBalance(ctx context.Context, userID string) (int64, error)
	InsertCreditTransaction(ctx context.Context, t *models.CreditTransaction) (bool, error)
	ListCreditTransactions(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error)

	// conversations and messages
	UpsertConversation(ctx context.Context, userID, influencerID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error
	InsertMessage(ctx context.Context, m *models.Message) error
	InsertVoiceMemo(ctx context.Context, v *models.VoiceMemo) error
	MarkMessagesRead(ctx context.Context, conversationID uuid.UUID, viewerID string) (int64, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, before *models.MessageCursor, limit int) ([]models.Message, error)
	ListConversationsForUser(ctx context.Context, userID string, influencerSide bool) ([]models.ConversationSummary, error)
	CountUnreadForUser(ctx context.Context, userID string) (int64, error)
	CountConversationsForUser(ctx context.Context, userID string, influencerSide bool) (int64, error)
	InfluencerStats(ctx context.Context, influencerID string) (messagesFromFans, fans int64, err error)

	// notification outbox
	EnqueueNotification(ctx context.Context, n *models.Notification) error
	// ClaimNotifications leases up to limit pending rows, oldest first, that
	// no other relay holds. The lease ends when the row is marked or expires.
	ClaimNotifications(ctx context.Context, limit int, lease time.Duration) ([]models.Notification, error)
	MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkNotificationAttempt(ctx context.Context, id uuid.UUID, lastErr string, failed bool) error

	// Savepoint runs fn so that its failure undoes only fn's own writes and
	// leaves the enclosing transaction usable.
	Savepoint(ctx context.Context, fn func(Repo) error) error
}

// Store is a Repo that can run a function inside a single database transaction.
type Store interface {
	Repo
	WithTx(ctx context.Context, fn func(Repo) error) error
}

// BlobStore persists voice memo audio and returns a durable public URL.
type BlobStore interface {
	UploadAudio(ctx context.Context, key string, data []byte) (string, error)
}

// EventPublisher broadcasts conversation events to connected clients.
type EventPublisher interface {
	PublishConversationEvent(ctx context.Context, event ConversationEvent) error
}

// ListingCache stores JSON-encodable values under a key for a bounded time.
type ListingCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// AuditLogger records admin actions.
type AuditLogger interface {
	RecordAdminAction(ctx context.Context, entry AuditEntry) error
}

// priceOf is the counterpart price or the default when no profile exists.
func priceOf(p *models.InfluencerProfile) decimal.Decimal {
	if p == nil {
		return models.DefaultMessagePrice
	}
	return p.MessagePrice
}
