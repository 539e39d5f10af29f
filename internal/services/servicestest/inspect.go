package servicestest

import (
	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddUser inserts a user with role and an optional balance row (balance < 0 skips it).
func (s *Store) AddUser(id string, role models.Role, balance int64) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{ID: id, Email: id + "@example.com", FirstName: id, Role: role}
	s.st.users[id] = u
	if balance >= 0 {
		s.st.balances[id] = balance
	}
	return u
}

// AddInfluencer inserts an influencer user with an active profile at price.
func (s *Store) AddInfluencer(id string, price decimal.Decimal) (models.User, models.InfluencerProfile) {
	u := s.AddUser(id, models.RoleInfluencer, 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.nextProfileID++
	p := models.InfluencerProfile{
		ID:           s.st.nextProfileID,
		UserID:       id,
		Bio:          "bio of " + id,
		MessagePrice: price,
		IsActive:     true,
	}
	s.st.profiles[p.ID] = p
	return u, p
}

func (s *Store) BalanceOf(userID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.balances[userID]
	return b, ok
}

// Transactions returns userID's ledger rows in insertion order.
func (s *Store) Transactions(userID string) []models.CreditTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CreditTransaction
	for _, t := range s.st.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) Messages(conversationID uuid.UUID) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.st.messages {
		if m.ConversationID == conversationID {
			if memo, ok := s.st.memos[m.ID]; ok {
				memo := memo
				m.VoiceMemo = &memo
			}
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.messages)
}

func (s *Store) VoiceMemoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.memos)
}

func (s *Store) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for _, c := range s.st.conversations {
		out = append(out, c)
	}
	return out
}

func (s *Store) ProfilesOf(userID string) []models.InfluencerProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.InfluencerProfile
	for _, p := range s.st.profiles {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) Outbox() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.st.outbox...)
}
