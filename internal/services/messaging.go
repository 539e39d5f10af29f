package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultThreadLimit = 50
	maxThreadLimit     = 100
	maxMessageLength   = 4000
)

// Messaging runs the conversation and message operations.
type Messaging struct {
	store  Store
	blobs  BlobStore
	events EventPublisher
	now    func() time.Time
}

func NewMessaging(store Store, blobs BlobStore, events EventPublisher) *Messaging {
	return &Messaging{
		store:  store,
		blobs:  blobs,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// VoiceMemoUpload is raw audio supplied with an influencer's reply.
type VoiceMemoUpload struct {
	Data     []byte
	Duration int
}

type SendMessageInput struct {
	ConversationID uuid.UUID
	Content        string
	VoiceMemo      *VoiceMemoUpload
}

// VoiceMemoKey is the blob path for a message's voice memo.
func VoiceMemoKey(conversationID, messageID uuid.UUID) string {
	return fmt.Sprintf("voice-memos/%s/%s.mp3", conversationID, messageID)
}

// StartOrGetConversation returns the single conversation between fan and influencer.
func (m *Messaging) StartOrGetConversation(ctx context.Context, fan *models.User, influencerID string) (*models.Conversation, error) {
	if err := RequireRole(fan, models.RoleUser, models.RoleAdmin); err != nil {
		return nil, err
	}
	if _, err := m.resolveInfluencer(ctx, fan, influencerID); err != nil {
		return nil, err
	}
	return m.store.UpsertConversation(ctx, fan.ID, influencerID)
}

// StartConversation opens (or reuses) the conversation with influencerID and
// sends the first message. Conversation, debit and message commit together.
func (m *Messaging) StartConversation(ctx context.Context, fan *models.User, influencerID, content string) (*models.Conversation, *models.Message, error) {
	if err := RequireRole(fan, models.RoleUser, models.RoleAdmin); err != nil {
		return nil, nil, err
	}
	content, err := cleanContent(content, false)
	if err != nil {
		return nil, nil, err
	}
	profile, err := m.resolveInfluencer(ctx, fan, influencerID)
	if err != nil {
		return nil, nil, err
	}

	var conv *models.Conversation
	msg := m.newMessage(fan.ID, content)
	err = m.store.WithTx(ctx, func(r Repo) error {
		var err error
		conv, err = r.UpsertConversation(ctx, fan.ID, influencerID)
		if err != nil {
			return err
		}
		msg.ConversationID = conv.ID
		return m.sendIn(ctx, r, fan, conv, profile, msg)
	})
	if err != nil {
		return nil, nil, err
	}
	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
	}

	m.publish(ctx, ConversationEvent{Type: EventTypeMessage, ConversationID: conv.ID.String(), Message: msg})
	return conv, msg, nil
}

// SendMessage appends a message to a conversation the actor belongs to.
// Fans pay the influencer's price; influencers may attach a voice memo.
// A failed debit or upload leaves no message behind.
func (m *Messaging) SendMessage(ctx context.Context, actor *models.User, in SendMessageInput) (*models.Message, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	conv, err := m.store.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if err := requireParty(actor, conv); err != nil {
		return nil, err
	}

	isInfluencer := actor.Role == models.RoleInfluencer
	if in.VoiceMemo != nil && !isInfluencer {
		return nil, fmt.Errorf("%w: only influencers can attach voice memos", ErrUnauthorized)
	}
	content, err := cleanContent(in.Content, in.VoiceMemo != nil)
	if err != nil {
		return nil, err
	}

	var profile *models.InfluencerProfile
	if !isInfluencer {
		profile, err = m.store.GetInfluencerProfileByUser(ctx, conv.InfluencerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	msg := m.newMessage(actor.ID, content)
	msg.ConversationID = conv.ID

	if in.VoiceMemo != nil {
		memo, err := m.uploadVoiceMemo(ctx, actor, conv, msg, in.VoiceMemo)
		if err != nil {
			return nil, err
		}
		msg.VoiceMemo = memo
	}

	err = m.store.WithTx(ctx, func(r Repo) error {
		return m.sendIn(ctx, r, actor, conv, profile, msg)
	})
	if err != nil {
		if msg.VoiceMemo != nil {
			log.Printf("messaging: message %s not stored, voice memo %s is orphaned: %v", msg.ID, msg.VoiceMemo.FileURL, err)
		}
		return nil, err
	}

	m.publish(ctx, ConversationEvent{Type: EventTypeMessage, ConversationID: conv.ID.String(), Message: msg})
	return msg, nil
}

// sendIn performs the transactional part of a send: debit, message, voice
// memo and conversation timestamp. The notification outbox row is best
// effort and never undoes a paid message.
func (m *Messaging) sendIn(ctx context.Context, r Repo, actor *models.User, conv *models.Conversation, profile *models.InfluencerProfile, msg *models.Message) error {
	if actor.Role != models.RoleInfluencer {
		if price := models.CreditsForPrice(priceOf(profile)); price > 0 {
			if err := debitIn(ctx, r, actor.ID, price, models.TransactionUsage); err != nil {
				return err
			}
		}
	}
	if err := r.InsertMessage(ctx, msg); err != nil {
		return err
	}
	if err := r.TouchConversation(ctx, conv.ID, msg.CreatedAt); err != nil {
		return err
	}
	if msg.VoiceMemo != nil {
		if err := r.InsertVoiceMemo(ctx, msg.VoiceMemo); err != nil {
			return err
		}
	}

	err := r.Savepoint(ctx, func(sp Repo) error {
		return enqueueNewMessage(ctx, sp, actor, conv, msg)
	})
	if err != nil {
		log.Printf("messaging: notification for message %s not queued: %v", msg.ID, err)
	}
	return nil
}

func enqueueNewMessage(ctx context.Context, r Repo, actor *models.User, conv *models.Conversation, msg *models.Message) error {
	recipient, err := r.GetUser(ctx, conv.Counterpart(actor.ID))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if n := NewMessageNotification(actor, recipient, msg.Content, msg.VoiceMemo != nil); n != nil {
		return r.EnqueueNotification(ctx, n)
	}
	return nil
}

func (m *Messaging) uploadVoiceMemo(ctx context.Context, actor *models.User, conv *models.Conversation, msg *models.Message, up *VoiceMemoUpload) (*models.VoiceMemo, error) {
	if len(up.Data) == 0 {
		return nil, fmt.Errorf("%w: voice memo is empty", ErrValidation)
	}
	if m.blobs == nil {
		return nil, fmt.Errorf("%w: voice memo storage is not configured", ErrExternalDependency)
	}
	url, err := m.blobs.UploadAudio(ctx, VoiceMemoKey(conv.ID, msg.ID), up.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: voice memo upload: %v", ErrExternalDependency, err)
	}
	duration := up.Duration
	if duration < 0 {
		duration = 0
	}
	return &models.VoiceMemo{
		ID:           uuid.New(),
		MessageID:    msg.ID,
		InfluencerID: actor.ID,
		FileURL:      url,
		Duration:     duration,
		CreatedAt:    msg.CreatedAt,
	}, nil
}

// MarkRead flips the counterpart's unread messages. Calling it again is a no-op.
func (m *Messaging) MarkRead(ctx context.Context, viewer *models.User, conversationID uuid.UUID) (int64, error) {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if err := requireParty(viewer, conv); err != nil {
		return 0, err
	}
	n, err := m.store.MarkMessagesRead(ctx, conv.ID, viewer.ID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.publish(ctx, ConversationEvent{Type: EventTypeRead, ConversationID: conv.ID.String(), ReaderID: viewer.ID})
	}
	return n, nil
}

// ListForUser returns the actor's inbox, most recent activity first.
func (m *Messaging) ListForUser(ctx context.Context, actor *models.User) ([]models.ConversationSummary, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	list, err := m.store.ListConversationsForUser(ctx, actor.ID, actor.Role == models.RoleInfluencer)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	return list, nil
}

type Thread struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Message     `json:"messages"`
	HasMore      bool                 `json:"has_more"`
	NextCursor   *models.MessageCursor `json:"next_cursor,omitempty"`
}

// GetThread pages through a conversation, returning messages oldest-first.
// Pass the previous page's NextCursor as before to load older messages.
func (m *Messaging) GetThread(ctx context.Context, actor *models.User, conversationID uuid.UUID, before *models.MessageCursor, limit int) (*Thread, error) {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := requireParty(actor, conv); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxThreadLimit {
		limit = defaultThreadLimit
	}

	msgs, err := m.store.ListMessages(ctx, conv.ID, before, limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	// Reverse to oldest-first for the UI.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	thread := &Thread{Conversation: conv, Messages: msgs, HasMore: hasMore}
	if hasMore {
		thread.NextCursor = models.CursorOf(msgs[0])
	}
	return thread, nil
}

// ConversationParticipant checks membership for the realtime endpoint.
func (m *Messaging) ConversationParticipant(ctx context.Context, actor *models.User, conversationID uuid.UUID) (*models.Conversation, error) {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := requireParty(actor, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Dashboard summarizes the actor's inbox, balance and, for influencers, earnings.
func (m *Messaging) Dashboard(ctx context.Context, actor *models.User) (*models.Dashboard, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	influencerSide := actor.Role == models.RoleInfluencer
	d := &models.Dashboard{Role: actor.Role}

	var err error
	if d.UnreadCount, err = m.store.CountUnreadForUser(ctx, actor.ID); err != nil {
		return nil, err
	}
	if d.ConversationCount, err = m.store.CountConversationsForUser(ctx, actor.ID, influencerSide); err != nil {
		return nil, err
	}
	d.Balance, err = m.store.GetCreditBalance(ctx, actor.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if influencerSide {
		profile, err := m.store.GetInfluencerProfileByUser(ctx, actor.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if d.MessagesFromFans, d.TotalFans, err = m.store.InfluencerStats(ctx, actor.ID); err != nil {
			return nil, err
		}
		price := priceOf(profile)
		earnings := price.Mul(decimal.NewFromInt(d.MessagesFromFans))
		d.MessagePrice = &price
		d.TotalEarnings = &earnings
	}
	return d, nil
}

func (m *Messaging) resolveInfluencer(ctx context.Context, fan *models.User, influencerID string) (*models.InfluencerProfile, error) {
	if influencerID == "" || influencerID == fan.ID {
		return nil, fmt.Errorf("%w: invalid influencer", ErrValidation)
	}
	target, err := m.store.GetUser(ctx, influencerID)
	if err != nil {
		return nil, err
	}
	if target.Role != models.RoleInfluencer {
		return nil, fmt.Errorf("%w: influencer", ErrNotFound)
	}
	profile, err := m.store.GetInfluencerProfileByUser(ctx, influencerID)
	if err != nil {
		return nil, err
	}
	if !profile.IsActive {
		return nil, fmt.Errorf("%w: influencer is not accepting messages", ErrNotFound)
	}
	return profile, nil
}

func (m *Messaging) newMessage(senderID, content string) *models.Message {
	return &models.Message{
		ID:        uuid.New(),
		SenderID:  senderID,
		Content:   content,
		CreatedAt: m.now(),
	}
}

func (m *Messaging) publish(ctx context.Context, event ConversationEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishConversationEvent(ctx, event); err != nil {
		log.Printf("messaging: publish %s event for %s failed: %v", event.Type, event.ConversationID, err)
	}
}

func cleanContent(content string, allowEmpty bool) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && !allowEmpty {
		return "", fmt.Errorf("%w: message is required", ErrValidation)
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxMessageLength)
	}
	return content, nil
}
