package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsPongWait   = 90 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced at the HTTP layer and the session token is required.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClientMessage is what clients send over the socket.
type wsClientMessage struct {
	Type           string `json:"type"` // "follow", "ping"
	ConversationID string `json:"conversation_id,omitempty"`
}

// ConversationsWebSocket streams message and read events for the session
// user's conversations. With ?conversation_id= only that conversation is
// followed; otherwise every conversation in the inbox is.
func ConversationsWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	follow, err := initialFollows(ctx, user, r.URL.Query().Get("conversation_id"))
	cancel()
	if err != nil {
		writeError(w, err, "Failed to open realtime stream")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := deps.Hub.Register(user.ID, conn, follow...)
	defer deps.Hub.Unregister(sub)
	log.Printf("realtime: %s connected following %d conversations", user.ID, len(follow))

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: read error for %s: %v", user.ID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		switch msg.Type {
		case "follow":
			id, err := uuid.Parse(msg.ConversationID)
			if err != nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			_, err = deps.Messaging.ConversationParticipant(ctx, user, id)
			cancel()
			if err == nil {
				deps.Hub.Follow(sub, id.String())
			}
		}
	}
}

func initialFollows(ctx context.Context, user *models.User, conversationID string) ([]string, error) {
	if conversationID != "" {
		id, err := uuid.Parse(conversationID)
		if err != nil {
			return nil, errInvalidParam("conversation_id")
		}
		conv, err := deps.Messaging.ConversationParticipant(ctx, user, id)
		if err != nil {
			return nil, err
		}
		return []string{conv.ID.String()}, nil
	}

	list, err := deps.Messaging.ListForUser(ctx, user)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID.String())
	}
	return ids, nil
}
