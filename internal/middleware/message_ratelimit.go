package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/pkg/clientip"
	"golang.org/x/time/rate"
)

// Message sends cost credits, but retries and scripted spam still hit the
// database, so sends get their own per-sender limit: 30/min, burst 10.
const (
	messageSendRPS        = 0.5
	messageSendBurst      = 10
	messageCleanupEvery   = 5 * time.Minute
	messageLimiterIdleTTL = 30 * time.Minute
)

type limiterMap struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	newFn   func() *rate.Limiter
	once    sync.Once
	idleTTL time.Duration
	every   time.Duration
}

func newLimiterMap(newFn func() *rate.Limiter, every, idleTTL time.Duration) *limiterMap {
	return &limiterMap{entries: make(map[string]*limiterEntry), newFn: newFn, every: every, idleTTL: idleTTL}
}

func (m *limiterMap) get(key string) *rate.Limiter {
	m.once.Do(m.startJanitor)

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &limiterEntry{limiter: m.newFn()}
		m.entries[key] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func (m *limiterMap) startJanitor() {
	go func() {
		ticker := time.NewTicker(m.every)
		defer ticker.Stop()
		for range ticker.C {
			m.mu.Lock()
			now := time.Now()
			for k, e := range m.entries {
				if now.Sub(e.lastUse) > m.idleTTL {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}()
}

var messageLimiters = newLimiterMap(func() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(messageSendRPS), messageSendBurst)
}, messageCleanupEvery, messageLimiterIdleTTL)

// MessageRateLimit limits message sends per session user, falling back to
// client IP. Mount it after Session.
func MessageRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		key := "ip:" + clientip.RealClientIP(r)
		if u := UserFromContext(r.Context()); u != nil {
			key = "user:" + u.ID
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(messageSendBurst))
		if !messageLimiters.get(key).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"You are sending messages too quickly. Please slow down."}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
