package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	EventTypeMessage = "message"
	EventTypeRead    = "read"

	conversationChannelPrefix = "conv:"
)

// ConversationEvent is broadcast over Redis and delivered to WebSocket clients.
type ConversationEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Message        *models.Message `json:"message,omitempty"`
	ReaderID       string          `json:"reader_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

const (
	subscriberBuffer    = 32
	subscriberWriteWait = 10 * time.Second
)

// EventConn is the minimal interface a WebSocket connection must satisfy.
type EventConn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscriber is one live connection and the conversations it follows.
// Events reach the connection through send, drained by a single writer.
type Subscriber struct {
	ID     uuid.UUID
	UserID string
	conn   EventConn
	send   chan ConversationEvent

	conversations map[string]struct{}
}

// writeLoop delivers queued events. A failed or timed-out write closes the
// connection, which ends the owner's read loop and with it the subscription.
func (s *Subscriber) writeLoop() {
	for event := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(subscriberWriteWait))
		if err := s.conn.WriteJSON(event); err != nil {
			log.Printf("realtime: write to subscriber %s failed, closing: %v", s.ID, err)
			s.conn.Close()
			for range s.send {
			}
			return
		}
	}
}

// Hub tracks local connections. Every instance runs one; Redis carries events between them.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]*Subscriber)}
}

// Register adds a connection following the given conversations and starts
// its writer. The caller must Unregister it when the connection ends.
func (h *Hub) Register(userID string, conn EventConn, conversationIDs ...string) *Subscriber {
	s := &Subscriber{
		ID:            uuid.New(),
		UserID:        userID,
		conn:          conn,
		send:          make(chan ConversationEvent, subscriberBuffer),
		conversations: make(map[string]struct{}, len(conversationIDs)),
	}
	for _, id := range conversationIDs {
		s.conversations[id] = struct{}{}
	}

	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()
	go s.writeLoop()
	return s
}

func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.ID]; !ok {
		return
	}
	delete(h.subs, s.ID)
	close(s.send)
}

// Follow adds a conversation to an existing subscription.
func (h *Hub) Follow(s *Subscriber, conversationID string) {
	h.mu.Lock()
	s.conversations[conversationID] = struct{}{}
	h.mu.Unlock()
}

// FanOut queues an event for every local subscriber following its
// conversation and returns how many accepted it. A subscriber whose queue is
// full misses the event; FanOut never waits on a connection.
func (h *Hub) FanOut(event ConversationEvent) int {
	if event.ConversationID == "" {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	queued := 0
	for _, s := range h.subs {
		if _, ok := s.conversations[event.ConversationID]; !ok {
			continue
		}
		select {
		case s.send <- event:
			queued++
		default:
			log.Printf("realtime: subscriber %s is behind, dropped %s event for %s", s.ID, event.Type, event.ConversationID)
		}
	}
	return queued
}

// RedisEventPublisher publishes conversation events on conv:<id>.
type RedisEventPublisher struct {
	client *redis.Client
}

func NewRedisEventPublisher(client *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{client: client}
}

func (p *RedisEventPublisher) PublishConversationEvent(ctx context.Context, event ConversationEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, conversationChannelPrefix+event.ConversationID, data).Err()
}

// StartRedisSubscriber relays every conv:* event into hub until ctx ends.
func StartRedisSubscriber(ctx context.Context, client *redis.Client, hub *Hub) {
	go runRedisSubscriber(ctx, client, hub)
}

func runRedisSubscriber(ctx context.Context, client *redis.Client, hub *Hub) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pubsub := client.PSubscribe(ctx, conversationChannelPrefix+"*")
		log.Printf("✅ Realtime Redis subscriber started (pattern: %s*)", conversationChannelPrefix)

		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				pubsub.Close()
				if ctx.Err() != nil {
					return
				}
				log.Printf("realtime: redis subscriber error: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
				break
			}
			backoff = time.Second

			var event ConversationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("realtime: bad event on %s: %v", msg.Channel, err)
				continue
			}
			if event.ConversationID == "" {
				event.ConversationID = strings.TrimPrefix(msg.Channel, conversationChannelPrefix)
			}
			hub.FanOut(event)
		}
	}
}

// LocalEventPublisher fans out in-process. Used when Redis is unavailable.
type LocalEventPublisher struct {
	Hub *Hub
}

func (p LocalEventPublisher) PublishConversationEvent(_ context.Context, event ConversationEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	p.Hub.FanOut(event)
	return nil
}
