package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/AnshRaj112/voiceconnect-backend/internal/middleware"
	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ActionResponse is the envelope for endpoints that return no payload.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ActionResponse{Success: status < 400, Message: msg})
}

// writeError maps a service error to its HTTP status. Unclassified errors are
// logged and reported as 500 with fallback as the message.
func writeError(w http.ResponseWriter, err error, fallback string) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("❌ %s: %v", fallback, err)
		msg = fallback
	}
	writeMessage(w, status, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden, "You are not allowed to perform this action"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, services.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "Insufficient credits"
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrExternalDependency):
		log.Printf("⚠️ external dependency: %v", err)
		return http.StatusBadGateway, "An upstream service failed. Please try again."
	default:
		return http.StatusInternalServerError, ""
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// sessionUser returns the authenticated user or writes a 401.
func sessionUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	return u, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}

func errInvalidParam(name string) error {
	return fmt.Errorf("%w: invalid %s", services.ErrValidation, name)
}
