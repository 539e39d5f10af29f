package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
)

type MeResponse struct {
	Success bool         `json:"success"`
	User    *models.User `json:"user"`
}

type DashboardResponse struct {
	Success   bool              `json:"success"`
	Dashboard *models.Dashboard `json:"dashboard"`
}

// GetMe returns the session user. The session middleware has already created it if needed.
func GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Success: true, User: user})
}

// GetDashboard returns inbox counts, balance and influencer earnings.
func GetDashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	d, err := deps.Messaging.Dashboard(ctx, user)
	if err != nil {
		writeError(w, err, "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, DashboardResponse{Success: true, Dashboard: d})
}
