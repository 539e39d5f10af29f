package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type InfluencerListResponse struct {
	Success     bool                       `json:"success"`
	Influencers []models.InfluencerListing `json:"influencers"`
	Total       int                        `json:"total"`
}

type InfluencerResponse struct {
	Success    bool                      `json:"success"`
	Influencer *models.InfluencerListing `json:"influencer"`
}

type ProfileResponse struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message,omitempty"`
	Profile *models.InfluencerProfile `json:"profile"`
}

type BecomeInfluencerRequest struct {
	Bio string `json:"bio"`
}

type ConversationResponse struct {
	Success      bool                 `json:"success"`
	Conversation *models.Conversation `json:"conversation"`
	Message      *models.Message      `json:"message,omitempty"`
}

// ListInfluencers returns active influencers, verified first.
func ListInfluencers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	list, err := deps.Influencers.ListActive(ctx)
	if err != nil {
		writeError(w, err, "Failed to fetch influencers")
		return
	}
	writeJSON(w, http.StatusOK, InfluencerListResponse{Success: true, Influencers: list, Total: len(list)})
}

// GetInfluencer returns one influencer's public profile by user id.
func GetInfluencer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	listing, err := deps.Influencers.GetProfile(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err, "Failed to fetch influencer")
		return
	}
	writeJSON(w, http.StatusOK, InfluencerResponse{Success: true, Influencer: listing})
}

// BecomeInfluencer promotes the session user and creates their profile.
func BecomeInfluencer(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	var req BecomeInfluencerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	profile, err := deps.Directory.BecomeInfluencer(ctx, user, req.Bio)
	if err != nil {
		writeError(w, err, "Failed to create influencer profile")
		return
	}
	writeJSON(w, http.StatusCreated, ProfileResponse{Success: true, Message: "You are now an influencer", Profile: profile})
}

// UpdateInfluencerProfile edits the session user's own influencer profile.
func UpdateInfluencerProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	var req services.UpdateProfileInput
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	profile, err := deps.Influencers.UpdateProfile(ctx, user, req)
	if err != nil {
		writeError(w, err, "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Success: true, Message: "Profile updated", Profile: profile})
}

// StartOrGetConversation opens (or returns) the session user's conversation with an influencer.
func StartOrGetConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	conv, err := deps.Messaging.StartOrGetConversation(ctx, user, chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err, "Failed to open conversation")
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{Success: true, Conversation: conv})
}
