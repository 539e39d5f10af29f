package middleware

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/pkg/clientip"
	"github.com/redis/go-redis/v9"
)

const (
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs
	BlockedIPKeyPrefix = "blocked_ip:"
	// BlockedIPDuration is how long an IP stays blocked
	BlockedIPDuration = time.Hour
)

// RedisRateLimit is a fixed-window limiter shared by every instance through
// Redis. An IP exceeding max requests in window is blocked for
// BlockedIPDuration. A nil client or a Redis error lets the request through.
func RedisRateLimit(client *redis.Client, scope string, window time.Duration, max int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client == nil || isWebhook(r) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			ip := clientip.RealClientIP(r)

			blockedKey := BlockedIPKeyPrefix + scope + ":" + ip
			if n, err := client.Exists(ctx, blockedKey).Result(); err == nil && n > 0 {
				writeTooMany(w, "Your IP has been temporarily blocked due to excessive requests. Please try again later.", BlockedIPDuration)
				return
			}

			key := RateLimitKeyPrefix + scope + ":" + ip
			var incr *redis.IntCmd
			_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				incr = pipe.Incr(ctx, key)
				pipe.ExpireNX(ctx, key, window)
				return nil
			})
			if err != nil {
				log.Printf("⚠️ rate limit check failed for %s: %v", scope, err)
				next.ServeHTTP(w, r)
				return
			}

			count := int(incr.Val())
			if count > max {
				if err := client.Set(ctx, blockedKey, "1", BlockedIPDuration).Err(); err != nil {
					log.Printf("⚠️ failed to block %s: %v", ip, err)
				}
				writeTooMany(w, "Rate limit exceeded. Please try again later.", window)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max-count))
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooMany(w http.ResponseWriter, msg string, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	writeError(w, http.StatusTooManyRequests, errorBody{Message: msg, RetryAfter: int(retryAfter.Seconds())})
}

// BlockedIP is an address currently blocked by RedisRateLimit.
type BlockedIP struct {
	Scope     string        `json:"scope"`
	IPAddress string        `json:"ip_address"`
	ExpiresIn time.Duration `json:"expires_in"`
}

// ListBlockedIPs scans Redis for active blocks.
func ListBlockedIPs(ctx context.Context, client *redis.Client) ([]BlockedIP, error) {
	var out []BlockedIP
	iter := client.Scan(ctx, 0, BlockedIPKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		scope, ip, ok := strings.Cut(strings.TrimPrefix(key, BlockedIPKeyPrefix), ":")
		if !ok {
			continue
		}
		ttl, err := client.TTL(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, BlockedIP{Scope: scope, IPAddress: ip, ExpiresIn: ttl})
	}
	return out, iter.Err()
}

// UnblockIP lifts a block and resets the counter. It reports whether anything was cleared.
func UnblockIP(ctx context.Context, client *redis.Client, scope, ip string) (bool, error) {
	n, err := client.Del(ctx, BlockedIPKeyPrefix+scope+":"+ip, RateLimitKeyPrefix+scope+":"+ip).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
