package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astrochat/astrochat-backend/internal/services"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS layer on the HTTP side.
		return true
	},
}

// chatClientMessage is what the frontend sends over the socket.
type chatClientMessage struct {
	Type   string `json:"type"` // "joinChat", "leaveChat", "typing", "ping"
	ChatID string `json:"chat_id,omitempty"`
}

const readDeadline = 90 * time.Second

// ChatWebSocket upgrades an authenticated request and binds the connection to
// the fan-out hub. One connection per user; a new one displaces the old.
func (h *Handlers) ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		// Browser WebSocket clients cannot set headers.
		token = r.URL.Query().Get("token")
	}

	ident, err := h.Sessions.Validate(r.Context(), token)
	if err != nil {
		respondError(w, err)
		return
	}

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	uc := h.Hub.Register(ident.UserID, conn)
	defer h.Hub.Unregister(uc)

	if h.Bridge != nil {
		h.Bridge.SetPresence(r.Context(), ident.UserID)
		defer h.Bridge.ClearPresence(r.Context(), ident.UserID)
	}

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Presence expires via TTL after a disconnect.
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		var msg chatClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		msg.ChatID = strings.TrimSpace(msg.ChatID)

		switch msg.Type {
		case "joinChat":
			if msg.ChatID != "" {
				h.Hub.JoinChat(ident.UserID, msg.ChatID)
			}
		case "leaveChat":
			if msg.ChatID != "" {
				h.Hub.LeaveChat(ident.UserID, msg.ChatID)
			}
		case "typing":
			if msg.ChatID != "" {
				h.Hub.Broadcast(msg.ChatID, services.DeliveryEvent{
					Type:      services.EventTypeTyping,
					SenderID:  ident.UserID,
					ChatID:    msg.ChatID,
					Timestamp: time.Now().UTC(),
				}, ident.UserID)
			}
		case "ping":
			if h.Bridge != nil {
				h.Bridge.SetPresence(r.Context(), ident.UserID)
			}
		default:
			// Ignore unknown types.
		}
	}
}
