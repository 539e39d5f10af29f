// Package servicestest provides an in-memory services.Store for tests.
//
// It honors the same constraints as the PostgreSQL schema: unique users,
// one profile per user, one conversation per fan/influencer pair, one credit
// per external payment reference, foreign keys with cascading deletes and a
// conditional debit. WithTx serializes transactions and rolls every change
// back when fn fails.
package servicestest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/google/uuid"
)

type state struct {
	users         map[string]models.User
	profiles      map[int64]models.InfluencerProfile
	balances      map[string]int64
	transactions  []models.CreditTransaction
	conversations map[uuid.UUID]models.Conversation
	messages      []models.Message
	memos         map[uuid.UUID]models.VoiceMemo // by message id
	outbox        []models.Notification

	nextProfileID int64
	nextTxID      int64
}

func newState() state {
	return state{
		users:         make(map[string]models.User),
		profiles:      make(map[int64]models.InfluencerProfile),
		balances:      make(map[string]int64),
		conversations: make(map[uuid.UUID]models.Conversation),
		memos:         make(map[uuid.UUID]models.VoiceMemo),
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.profiles {
		v.Categories = append([]string(nil), v.Categories...)
		v.SocialLinks = append([]string(nil), v.SocialLinks...)
		c.profiles[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.conversations {
		c.conversations[k] = v
	}
	for k, v := range s.memos {
		c.memos[k] = v
	}
	c.transactions = append([]models.CreditTransaction(nil), s.transactions...)
	c.messages = append([]models.Message(nil), s.messages...)
	c.outbox = append([]models.Notification(nil), s.outbox...)
	c.nextProfileID = s.nextProfileID
	c.nextTxID = s.nextTxID
	return c
}

// Store is an in-memory services.Store.
type Store struct {
	txMu sync.Mutex // one transaction at a time
	mu   sync.Mutex
	st   state
	fail map[string]error
}

var _ services.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), fail: make(map[string]error)}
}

// FailOn makes the next call of the named Repo method return err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *Store) injected(method string) error {
	if err, ok := s.fail[method]; ok {
		delete(s.fail, method)
		return err
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(services.Repo) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Savepoint restores the state from before fn when fn fails.
func (s *Store) Savepoint(_ context.Context, fn func(services.Repo) error) error {
	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func fkError(what string) error {
	return fmt.Errorf("%w: %s does not exist", services.ErrNotFound, what)
}

// users

func (s *Store) InsertUserIfAbsent(_ context.Context, u *models.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("InsertUserIfAbsent"); err != nil {
		return false, err
	}
	if _, ok := s.st.users[u.ID]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	row := *u
	if row.Role == "" {
		row.Role = models.RoleUser
	}
	row.CreatedAt, row.UpdatedAt = now, now
	s.st.users[u.ID] = row
	return true, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetUser"); err != nil {
		return nil, err
	}
	u, ok := s.st.users[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &u, nil
}

func (s *Store) UpdateUserIdentity(_ context.Context, id models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id.ID]
	if !ok {
		return services.ErrNotFound
	}
	u.Email, u.FirstName, u.LastName, u.ImageURL = id.Email, id.FirstName, id.LastName, id.ImageURL
	u.UpdatedAt = time.Now().UTC()
	s.st.users[id.ID] = u
	return nil
}

func (s *Store) UpdateUserNames(_ context.Context, userID, firstName, lastName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[userID]
	if !ok {
		return services.ErrNotFound
	}
	u.FirstName, u.LastName = firstName, lastName
	u.UpdatedAt = time.Now().UTC()
	s.st.users[userID] = u
	return nil
}

func (s *Store) SetUserRole(_ context.Context, userID string, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("SetUserRole"); err != nil {
		return err
	}
	u, ok := s.st.users[userID]
	if !ok {
		return services.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	s.st.users[userID] = u
	return nil
}

// DeleteUser cascades like the schema's ON DELETE CASCADE.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.users[id]; !ok {
		return services.ErrNotFound
	}
	delete(s.st.users, id)
	delete(s.st.balances, id)
	for pid, p := range s.st.profiles {
		if p.UserID == id {
			delete(s.st.profiles, pid)
		}
	}
	txs := s.st.transactions[:0]
	for _, t := range s.st.transactions {
		if t.UserID != id {
			txs = append(txs, t)
		}
	}
	s.st.transactions = txs

	gone := make(map[uuid.UUID]bool)
	for cid, c := range s.st.conversations {
		if c.HasParty(id) {
			gone[cid] = true
			delete(s.st.conversations, cid)
		}
	}
	msgs := s.st.messages[:0]
	for _, m := range s.st.messages {
		if gone[m.ConversationID] || m.SenderID == id {
			delete(s.st.memos, m.ID)
			continue
		}
		msgs = append(msgs, m)
	}
	s.st.messages = msgs
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// influencer profiles

func (s *Store) InsertInfluencerProfileIfAbsent(_ context.Context, p *models.InfluencerProfile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("InsertInfluencerProfileIfAbsent"); err != nil {
		return false, err
	}
	if _, ok := s.st.users[p.UserID]; !ok {
		return false, fkError("user")
	}
	for _, existing := range s.st.profiles {
		if existing.UserID == p.UserID {
			return false, nil
		}
	}
	s.st.nextProfileID++
	now := time.Now().UTC()
	p.ID = s.st.nextProfileID
	p.CreatedAt, p.UpdatedAt = now, now
	row := *p
	row.Categories = append([]string{}, p.Categories...)
	row.SocialLinks = append([]string{}, p.SocialLinks...)
	s.st.profiles[p.ID] = row
	return true, nil
}

func (s *Store) GetInfluencerProfile(_ context.Context, id int64) (*models.InfluencerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.profiles[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetInfluencerProfileByUser(_ context.Context, userID string) (*models.InfluencerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.st.profiles {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, services.ErrNotFound
}

func (s *Store) UpdateInfluencerProfile(_ context.Context, p *models.InfluencerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpdateInfluencerProfile"); err != nil {
		return err
	}
	for id, existing := range s.st.profiles {
		if existing.UserID == p.UserID {
			existing.Bio = p.Bio
			existing.MessagePrice = p.MessagePrice
			existing.IsActive = p.IsActive
			existing.Categories = append([]string{}, p.Categories...)
			existing.SocialLinks = append([]string{}, p.SocialLinks...)
			existing.UpdatedAt = time.Now().UTC()
			s.st.profiles[id] = existing
			return nil
		}
	}
	return services.ErrNotFound
}

func (s *Store) SetInfluencerVerified(_ context.Context, id int64, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.profiles[id]
	if !ok {
		return services.ErrNotFound
	}
	p.IsVerified = verified
	s.st.profiles[id] = p
	return nil
}

func (s *Store) SetInfluencerActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.profiles[id]
	if !ok {
		return services.ErrNotFound
	}
	p.IsActive = active
	s.st.profiles[id] = p
	return nil
}

func (s *Store) ListInfluencers(_ context.Context, activeOnly bool) ([]models.InfluencerListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.InfluencerListing
	for _, p := range s.st.profiles {
		if activeOnly && !p.IsActive {
			continue
		}
		u := s.st.users[p.UserID]
		out = append(out, models.InfluencerListing{
			InfluencerProfile: p,
			FirstName:         u.FirstName,
			LastName:          u.LastName,
			ImageURL:          u.ImageURL,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsVerified != out[j].IsVerified {
			return out[i].IsVerified
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// credits

func (s *Store) CreateCreditBalance(_ context.Context, userID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateCreditBalance"); err != nil {
		return err
	}
	if _, ok := s.st.users[userID]; !ok {
		return fkError("user")
	}
	if _, ok := s.st.balances[userID]; !ok {
		s.st.balances[userID] = balance
	}
	return nil
}

func (s *Store) AddCredits(_ context.Context, userID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("AddCredits"); err != nil {
		return err
	}
	if _, ok := s.st.users[userID]; !ok {
		return fkError("user")
	}
	s.st.balances[userID] += amount
	return nil
}

func (s *Store) DebitCredits(_ context.Context, userID string, amount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DebitCredits"); err != nil {
		return false, err
	}
	bal, ok := s.st.balances[userID]
	if !ok || bal < amount {
		return false, nil
	}
	s.st.balances[userID] = bal - amount
	return true, nil
}

func (s *Store) GetCreditBalance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.st.balances[userID]
	if !ok {
		return 0, services.ErrNotFound
	}
	return bal, nil
}

func (s *Store) InsertCreditTransaction(_ context.Context, t *models.CreditTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("InsertCreditTransaction"); err != nil {
		return false, err
	}
	if _, ok := s.st.users[t.UserID]; !ok {
		return false, fkError("user")
	}
	if t.ExternalRef != "" {
		for _, existing := range s.st.transactions {
			if existing.ExternalRef == t.ExternalRef {
				return false, nil
			}
		}
	}
	s.st.nextTxID++
	row := *t
	row.ID = s.st.nextTxID
	row.CreatedAt = time.Now().UTC()
	s.st.transactions = append(s.st.transactions, row)
	return true, nil
}

func (s *Store) ListCreditTransactions(_ context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CreditTransaction
	for i := len(s.st.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if t := s.st.transactions[i]; t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// conversations and messages

func (s *Store) UpsertConversation(_ context.Context, userID, influencerID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpsertConversation"); err != nil {
		return nil, err
	}
	for _, c := range s.st.conversations {
		if c.UserID == userID && c.InfluencerID == influencerID {
			return &c, nil
		}
	}
	if _, ok := s.st.users[userID]; !ok {
		return nil, fkError("user")
	}
	if _, ok := s.st.users[influencerID]; !ok {
		return nil, fkError("influencer")
	}
	now := time.Now().UTC()
	c := models.Conversation{ID: uuid.New(), UserID: userID, InfluencerID: influencerID, LastMessageAt: now, CreatedAt: now}
	s.st.conversations[c.ID] = c
	return &c, nil
}

func (s *Store) GetConversation(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.conversations[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &c, nil
}

func (s *Store) TouchConversation(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.conversations[id]
	if !ok {
		return services.ErrNotFound
	}
	if at.After(c.LastMessageAt) {
		c.LastMessageAt = at
		s.st.conversations[id] = c
	}
	return nil
}

func (s *Store) InsertMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("InsertMessage"); err != nil {
		return err
	}
	if _, ok := s.st.conversations[m.ConversationID]; !ok {
		return fkError("conversation")
	}
	if _, ok := s.st.users[m.SenderID]; !ok {
		return fkError("sender")
	}
	row := *m
	row.VoiceMemo = nil
	s.st.messages = append(s.st.messages, row)
	return nil
}

func (s *Store) InsertVoiceMemo(_ context.Context, v *models.VoiceMemo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("InsertVoiceMemo"); err != nil {
		return err
	}
	found := false
	for _, m := range s.st.messages {
		if m.ID == v.MessageID {
			found = true
			break
		}
	}
	if !found {
		return fkError("message")
	}
	if _, dup := s.st.memos[v.MessageID]; dup {
		return fmt.Errorf("%w: voice memo for message %s", services.ErrConflict, v.MessageID)
	}
	s.st.memos[v.MessageID] = *v
	return nil
}

func (s *Store) MarkMessagesRead(_ context.Context, conversationID uuid.UUID, viewerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i, m := range s.st.messages {
		if m.ConversationID == conversationID && m.SenderID != viewerID && !m.IsRead {
			s.st.messages[i].IsRead = true
			if memo, ok := s.st.memos[m.ID]; ok {
				memo.IsRead = true
				s.st.memos[m.ID] = memo
			}
			n++
		}
	}
	return n, nil
}

func (s *Store) ListMessages(_ context.Context, conversationID uuid.UUID, before *models.MessageCursor, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.st.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if before != nil && !messageBefore(m, before) {
			continue
		}
		if memo, ok := s.st.memos[m.ID]; ok {
			memo := memo
			m.VoiceMemo = &memo
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return messageBefore(out[j], models.CursorOf(out[i]))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// messageBefore orders like the row comparison (created_at, id) < (c.CreatedAt, c.ID).
func messageBefore(m models.Message, c *models.MessageCursor) bool {
	if m.CreatedAt.Equal(c.CreatedAt) {
		return m.ID.String() < c.ID.String()
	}
	return m.CreatedAt.Before(c.CreatedAt)
}

func (s *Store) ListConversationsForUser(_ context.Context, userID string, influencerSide bool) ([]models.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConversationSummary
	for _, c := range s.st.conversations {
		owner, counterpart := c.UserID, c.InfluencerID
		if influencerSide {
			owner, counterpart = c.InfluencerID, c.UserID
		}
		if owner != userID {
			continue
		}
		u := s.st.users[counterpart]
		sum := models.ConversationSummary{
			Conversation:         c,
			CounterpartID:        u.ID,
			CounterpartFirstName: u.FirstName,
			CounterpartLastName:  u.LastName,
			CounterpartImageURL:  u.ImageURL,
		}
		var last *models.Message
		for i, m := range s.st.messages {
			if m.ConversationID != c.ID {
				continue
			}
			if last == nil || !m.CreatedAt.Before(last.CreatedAt) {
				last = &s.st.messages[i]
			}
			if m.SenderID != userID && !m.IsRead {
				sum.UnreadCount++
			}
		}
		if last != nil {
			at := last.CreatedAt
			sum.LastMessage = last.Content
			sum.LastMessageSenderID = last.SenderID
			sum.LastMessageCreatedAt = &at
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (s *Store) CountUnreadForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.st.messages {
		c := s.st.conversations[m.ConversationID]
		if c.HasParty(userID) && m.SenderID != userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountConversationsForUser(_ context.Context, userID string, influencerSide bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.st.conversations {
		if (influencerSide && c.InfluencerID == userID) || (!influencerSide && c.UserID == userID) {
			n++
		}
	}
	return n, nil
}

func (s *Store) InfluencerStats(_ context.Context, influencerID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var messages, fans int64
	for _, c := range s.st.conversations {
		if c.InfluencerID != influencerID {
			continue
		}
		fans++
		for _, m := range s.st.messages {
			if m.ConversationID == c.ID && m.SenderID == c.UserID {
				messages++
			}
		}
	}
	return messages, fans, nil
}

// notification outbox

func (s *Store) EnqueueNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("EnqueueNotification"); err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	n.CreatedAt = time.Now().UTC()
	s.st.outbox = append(s.st.outbox, *n)
	return nil
}

func (s *Store) ClaimNotifications(_ context.Context, limit int, lease time.Duration) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ClaimNotifications"); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	until := now.Add(lease)
	var out []models.Notification
	for i, n := range s.st.outbox {
		if len(out) == limit {
			break
		}
		if n.Status != models.NotificationPending {
			continue
		}
		if n.ClaimedUntil != nil && !n.ClaimedUntil.Before(now) {
			continue
		}
		s.st.outbox[i].ClaimedUntil = &until
		out = append(out, s.st.outbox[i])
	}
	return out, nil
}

func (s *Store) MarkNotificationSent(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("MarkNotificationSent"); err != nil {
		return err
	}
	for i, n := range s.st.outbox {
		if n.ID == id {
			at := at
			s.st.outbox[i].Status = models.NotificationSent
			s.st.outbox[i].Attempts++
			s.st.outbox[i].SentAt = &at
			s.st.outbox[i].LastError = ""
			s.st.outbox[i].ClaimedUntil = nil
			return nil
		}
	}
	return services.ErrNotFound
}

func (s *Store) MarkNotificationAttempt(_ context.Context, id uuid.UUID, lastErr string, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("MarkNotificationAttempt"); err != nil {
		return err
	}
	for i, n := range s.st.outbox {
		if n.ID == id {
			s.st.outbox[i].Attempts++
			s.st.outbox[i].ClaimedUntil = nil
			s.st.outbox[i].LastError = lastErr
			if failed {
				s.st.outbox[i].Status = models.NotificationFailed
			}
			return nil
		}
	}
	return services.ErrNotFound
}
