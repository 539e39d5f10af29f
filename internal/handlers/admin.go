package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/middleware"
	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type UserListResponse struct {
	Success bool          `json:"success"`
	Users   []models.User `json:"users"`
	Count   int           `json:"count"`
}

type SetRoleRequest struct {
	Role models.Role `json:"role"`
}

type UserResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

type ToggleRequest struct {
	Value *bool `json:"value"`
}

type DeliveryListResponse struct {
	Success    bool                `json:"success"`
	Deliveries []services.Delivery `json:"deliveries"`
	Count      int                 `json:"count"`
}

// AdminListUsers returns every user, newest first.
func AdminListUsers(w http.ResponseWriter, r *http.Request) {
	admin, ok := sessionUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	users, err := deps.Directory.ListUsers(ctx, admin)
	if err != nil {
		writeError(w, err, "Failed to fetch users")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, UserListResponse{Success: true, Users: users, Count: len(users)})
}

// AdminSetRole changes a user's role. Promoting to influencer creates a verified profile.
func AdminSetRole(w http.ResponseWriter, r *http.Request) {
	admin, ok := sessionUser(w, r)
	if !ok {
		return
	}
	var req SetRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	user, err := deps.Directory.SetRole(ctx, admin, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeError(w, err, "Failed to update role")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, Message: "Role updated", User: user})
}

// AdminListInfluencers returns all influencer profiles including inactive ones.
func AdminListInfluencers(w http.ResponseWriter, r *http.Request) {
	admin, ok := sessionUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	list, err := deps.Influencers.ListAll(ctx, admin)
	if err != nil {
		writeError(w, err, "Failed to fetch influencers")
		return
	}
	if list == nil {
		list = []models.InfluencerListing{}
	}
	writeJSON(w, http.StatusOK, InfluencerListResponse{Success: true, Influencers: list, Total: len(list)})
}

// AdminSetVerified sets or clears an influencer's verified badge.
func AdminSetVerified(w http.ResponseWriter, r *http.Request) {
	adminToggle(w, r, "Verification updated", deps.Influencers.SetVerified)
}

// AdminSetActive shows or hides an influencer from the public directory.
func AdminSetActive(w http.ResponseWriter, r *http.Request) {
	adminToggle(w, r, "Visibility updated", deps.Influencers.SetActive)
}

func adminToggle(w http.ResponseWriter, r *http.Request, done string,
	set func(ctx context.Context, admin *models.User, profileID int64, value bool) error) {
	admin, ok := sessionUser(w, r)
	if !ok {
		return
	}
	profileID, ok := int64Param(w, r, "id")
	if !ok {
		return
	}
	var req ToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeMessage(w, http.StatusBadRequest, "value is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := set(ctx, admin, profileID, *req.Value); err != nil {
		writeError(w, err, "Failed to update influencer")
		return
	}
	writeMessage(w, http.StatusOK, done)
}

// AdminRecentNotifications returns the notification delivery log, optionally for one recipient.
func AdminRecentNotifications(w http.ResponseWriter, r *http.Request) {
	if deps.Deliveries == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Delivery log is not available")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	list, err := deps.Deliveries.RecentDeliveries(ctx, r.URL.Query().Get("recipient_id"), int64(queryInt(r, "limit", 50)))
	if err != nil {
		writeError(w, err, "Failed to fetch deliveries")
		return
	}
	if list == nil {
		list = []services.Delivery{}
	}
	writeJSON(w, http.StatusOK, DeliveryListResponse{Success: true, Deliveries: list, Count: len(list)})
}

// GetBlockedIPs returns all addresses currently blocked by the Redis rate limiter.
func GetBlockedIPs(w http.ResponseWriter, r *http.Request) {
	if deps.RateLimits == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Rate limiting is not backed by Redis")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	blocked, err := middleware.ListBlockedIPs(ctx, deps.RateLimits)
	if err != nil {
		writeError(w, err, "Failed to fetch blocked IPs")
		return
	}
	if blocked == nil {
		blocked = []middleware.BlockedIP{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"blocked_ips": blocked,
		"count":       len(blocked),
	})
}

// UnblockIP lifts a rate-limit block. ?scope= defaults to "api".
func UnblockIP(w http.ResponseWriter, r *http.Request) {
	if deps.RateLimits == nil {
		writeMessage(w, http.StatusServiceUnavailable, "Rate limiting is not backed by Redis")
		return
	}
	ip := strings.TrimSpace(r.URL.Query().Get("ip"))
	if ip == "" {
		writeMessage(w, http.StatusBadRequest, "IP address is required")
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "api"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cleared, err := middleware.UnblockIP(ctx, deps.RateLimits, scope, ip)
	if err != nil {
		writeError(w, err, "Failed to unblock IP")
		return
	}
	if !cleared {
		writeMessage(w, http.StatusOK, "IP address is not currently blocked")
		return
	}
	writeMessage(w, http.StatusOK, "IP address unblocked")
}
