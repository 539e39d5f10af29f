package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/AnshRaj112/voiceconnect-backend/internal/services"
	"github.com/google/uuid"
)

const (
	maxVoiceMemoBytes = 10 << 20
	maxMultipartBytes = maxVoiceMemoBytes + 1<<20
)

type ConversationListResponse struct {
	Success       bool                         `json:"success"`
	Conversations []models.ConversationSummary `json:"conversations"`
	Total         int                          `json:"total"`
}

type StartConversationRequest struct {
	InfluencerID string `json:"influencer_id"`
	Message      string `json:"message"`
}

type ThreadResponse struct {
	Success bool `json:"success"`
	*services.Thread
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type MessageResponse struct {
	Success bool            `json:"success"`
	Message *models.Message `json:"message"`
}

type MarkReadResponse struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

// ListConversations returns the session user's inbox.
func ListConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	list, err := deps.Messaging.ListForUser(ctx, user)
	if err != nil {
		writeError(w, err, "Failed to fetch conversations")
		return
	}
	writeJSON(w, http.StatusOK, ConversationListResponse{Success: true, Conversations: list, Total: len(list)})
}

// StartConversation opens a conversation with an influencer and sends the first paid message.
func StartConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	var req StartConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.InfluencerID) == "" {
		writeMessage(w, http.StatusBadRequest, "influencer_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	conv, msg, err := deps.Messaging.StartConversation(ctx, user, req.InfluencerID, req.Message)
	if err != nil {
		writeError(w, err, "Failed to start conversation")
		return
	}
	writeJSON(w, http.StatusCreated, ConversationResponse{Success: true, Conversation: conv, Message: msg})
}

// GetMessages pages through a conversation. ?before=<RFC3339>&before_id=<uuid>
// (the previous page's next_cursor) returns older messages. before alone
// returns messages strictly older than the timestamp.
func GetMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	convID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var before *models.MessageCursor
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
			return
		}
		before = &models.MessageCursor{CreatedAt: t}
		if rawID := r.URL.Query().Get("before_id"); rawID != "" {
			if before.ID, err = uuid.Parse(rawID); err != nil {
				writeMessage(w, http.StatusBadRequest, "before_id must be a UUID")
				return
			}
		}
	} else if r.URL.Query().Get("before_id") != "" {
		writeMessage(w, http.StatusBadRequest, "before_id requires before")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	thread, err := deps.Messaging.GetThread(ctx, user, convID, before, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, ThreadResponse{Success: true, Thread: thread})
}

// SendMessage posts a message. Influencers may send multipart/form-data with a
// voice_memo file and its duration in seconds.
func SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	convID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	in := services.SendMessageInput{ConversationID: convID}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		content, memo, ok := parseVoiceMemoForm(w, r)
		if !ok {
			return
		}
		in.Content = content
		in.VoiceMemo = memo
	} else {
		var req SendMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in.Content = req.Content
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	msg, err := deps.Messaging.SendMessage(ctx, user, in)
	if err != nil {
		writeError(w, err, "Failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Success: true, Message: msg})
}

func parseVoiceMemoForm(w http.ResponseWriter, r *http.Request) (string, *services.VoiceMemoUpload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
	if err := r.ParseMultipartForm(maxMultipartBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, "Voice memo is too large or the form is malformed")
		return "", nil, false
	}
	content := r.FormValue("content")

	file, header, err := r.FormFile("voice_memo")
	if err == http.ErrMissingFile {
		return content, nil, true
	}
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Failed to read voice memo")
		return "", nil, false
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "audio/") && ct != "application/octet-stream" {
		writeMessage(w, http.StatusBadRequest, "Voice memo must be an audio file")
		return "", nil, false
	}
	data, err := io.ReadAll(io.LimitReader(file, maxVoiceMemoBytes+1))
	if err != nil || len(data) == 0 {
		writeMessage(w, http.StatusBadRequest, "Failed to read voice memo")
		return "", nil, false
	}
	if len(data) > maxVoiceMemoBytes {
		writeMessage(w, http.StatusBadRequest, "Voice memo exceeds 10MB")
		return "", nil, false
	}

	duration, _ := strconv.Atoi(r.FormValue("duration"))
	if duration < 0 {
		duration = 0
	}
	return content, &services.VoiceMemoUpload{Data: data, Duration: duration}, true
}

// MarkConversationRead marks the counterpart's messages as read.
func MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}
	convID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	n, err := deps.Messaging.MarkRead(ctx, user, convID)
	if err != nil {
		writeError(w, err, "Failed to mark messages as read")
		return
	}
	writeJSON(w, http.StatusOK, MarkReadResponse{Success: true, Updated: n})
}
