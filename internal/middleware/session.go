package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userContextKey contextKey = "session_user"

// SessionClaims are the claims carried by identity provider session tokens.
// The JWT template must sign with HS256 and the shared JWT_SECRET.
type SessionClaims struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the identity the directory understands.
func (c *SessionClaims) Identity() models.Identity {
	return models.Identity{
		ID:        c.Subject,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		ImageURL:  c.ImageURL,
	}
}

// UserEnsurer resolves a verified identity to a local user, creating it on first sight.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, id models.Identity) (*models.User, error)
}

// ParseSessionToken validates raw and returns its claims.
func ParseSessionToken(secret, raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// SignSessionToken issues an HS256 session token. Used by local tooling and tests.
func SignSessionToken(secret string, claims SessionClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter (browsers cannot set headers on WebSockets).
func BearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// Session authenticates the request and stores the local user in the context.
func Session(secret string, users UserEnsurer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			claims, err := ParseSessionToken(secret, raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			user, err := users.EnsureUser(ctx, claims.Identity())
			cancel()
			if err != nil {
				log.Printf("⚠️ failed to resolve user %s: %v", claims.Subject, err)
				writeAuthError(w, http.StatusInternalServerError, "Failed to load user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireRole rejects users whose role is not in roles. Mount it after Session.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeAuthError(w, http.StatusForbidden, fmt.Sprintf("Role %s may not access this resource", user.Role))
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the session user, or nil.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userContextKey).(*models.User)
	return u
}

type errorBody struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("⚠️ failed to write error response: %v", err)
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	writeError(w, status, errorBody{Message: msg})
}
