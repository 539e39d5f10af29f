package servicestest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
)

// Blobs records uploads. Set Err to make every upload fail.
type Blobs struct {
	mu      sync.Mutex
	Err     error
	Uploads map[string][]byte
}

func (b *Blobs) UploadAudio(_ context.Context, key string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return "", b.Err
	}
	if b.Uploads == nil {
		b.Uploads = make(map[string][]byte)
	}
	b.Uploads[key] = data
	return "https://blobs.test/" + key, nil
}

// Events records published conversation events.
type Events struct {
	mu     sync.Mutex
	Events []services.ConversationEvent
}

func (e *Events) PublishConversationEvent(_ context.Context, ev services.ConversationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Events = append(e.Events, ev)
	return nil
}

func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.Events {
		out = append(out, ev.Type)
	}
	return out
}

// Cache is a ListingCache over a map; values round-trip through JSON like Redis.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]byte
	Gets    int
	Sets    int
}

func (c *Cache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gets++
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *Cache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[key] = data
	c.Sets++
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Audit records admin actions.
type Audit struct {
	mu      sync.Mutex
	Entries []services.AuditEntry
}

func (a *Audit) RecordAdminAction(_ context.Context, e services.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Entries = append(a.Entries, e)
	return nil
}

// Dispatcher records notifications. FailTimes makes the first n dispatches fail.
type Dispatcher struct {
	mu        sync.Mutex
	FailTimes int
	Sent      []models.Notification
}

var ErrDispatch = errors.New("dispatch failed")

func (d *Dispatcher) Dispatch(_ context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailTimes > 0 {
		d.FailTimes--
		return ErrDispatch
	}
	d.Sent = append(d.Sent, n)
	return nil
}

// Mailer records email. Set Err to make sends fail.
type Mailer struct {
	mu   sync.Mutex
	Err  error
	Sent []services.Email
}

func (m *Mailer) Send(_ context.Context, e services.Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, e)
	return "msg_" + e.To, nil
}
