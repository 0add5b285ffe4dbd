package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// Event types pushed to connected clients.
const (
	EventTypeMessage = "message"
	EventTypeTyping  = "typing"
)

// DeliveryEvent is the typed payload the message ledger publishes and the
// gateway pushes to connected recipients. The ledger never talks to a
// transport directly; it only sees the Publisher interface.
type DeliveryEvent struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Publisher delivers an event toward a user's personal channel. Delivery is
// best-effort: the ledger is the durable source of truth and clients recover
// missed events by reloading the conversation.
type Publisher interface {
	Deliver(ctx context.Context, targetUserID string, event DeliveryEvent) error
}

// ChatConn is the minimal connection surface the hub needs; satisfied by
// *websocket.Conn and by test fakes.
type ChatConn interface {
	WriteJSON(v any) error
	Close() error
}

// UserConnection is one live connection bound to a user's personal channel,
// plus the named chat channels it has joined.
type UserConnection struct {
	UserID string
	conn   ChatConn

	// writeMu enforces the single-writer-per-connection discipline.
	writeMu sync.Mutex

	mu    sync.Mutex
	chats map[string]struct{}
}

func (uc *UserConnection) write(v any) error {
	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()
	return uc.conn.WriteJSON(v)
}

// Hub is the in-process connection registry: one personal channel per
// connected user. It is the only shared mutable structure in the gateway.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*UserConnection
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*UserConnection)}
}

// Register binds a connection to the user's personal channel, replacing and
// closing any previous connection for the same user.
func (h *Hub) Register(userID string, conn ChatConn) *UserConnection {
	uc := &UserConnection{
		UserID: userID,
		conn:   conn,
		chats:  make(map[string]struct{}),
	}

	h.mu.Lock()
	old := h.conns[userID]
	h.conns[userID] = uc
	h.mu.Unlock()

	if old != nil {
		_ = old.conn.Close()
	}
	return uc
}

// Unregister removes the connection, but only if it is still the user's
// current one (a reconnect may already have replaced it).
func (h *Hub) Unregister(uc *UserConnection) {
	h.mu.Lock()
	if h.conns[uc.UserID] == uc {
		delete(h.conns, uc.UserID)
	}
	h.mu.Unlock()
}

// JoinChat adds the user's connection to a named chat channel.
func (h *Hub) JoinChat(userID, chatID string) {
	h.mu.RLock()
	uc := h.conns[userID]
	h.mu.RUnlock()
	if uc == nil {
		return
	}
	uc.mu.Lock()
	uc.chats[chatID] = struct{}{}
	uc.mu.Unlock()
}

// LeaveChat removes the user's connection from a named chat channel.
func (h *Hub) LeaveChat(userID, chatID string) {
	h.mu.RLock()
	uc := h.conns[userID]
	h.mu.RUnlock()
	if uc == nil {
		return
	}
	uc.mu.Lock()
	delete(uc.chats, chatID)
	uc.mu.Unlock()
}

// InChat reports whether the user's live connection has joined the chat
// channel.
func (h *Hub) InChat(userID, chatID string) bool {
	h.mu.RLock()
	uc := h.conns[userID]
	h.mu.RUnlock()
	if uc == nil {
		return false
	}
	uc.mu.Lock()
	defer uc.mu.Unlock()
	_, ok := uc.chats[chatID]
	return ok
}

// Connected reports whether the user currently has a live connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[userID]
	return ok
}

// Deliver pushes an event to the target's personal channel. If the target is
// not connected the event is dropped.
func (h *Hub) Deliver(ctx context.Context, targetUserID string, event DeliveryEvent) error {
	h.mu.RLock()
	uc := h.conns[targetUserID]
	h.mu.RUnlock()
	if uc == nil {
		return nil
	}

	if err := uc.write(event); err != nil {
		log.Printf("failed to deliver event to user %s: %v", targetUserID, err)
	}
	return nil
}

// Broadcast pushes an event to every connection joined to the chat channel,
// except the originating user.
func (h *Hub) Broadcast(chatID string, event DeliveryEvent, exceptUserID string) {
	h.mu.RLock()
	targets := make([]*UserConnection, 0)
	for userID, uc := range h.conns {
		if userID == exceptUserID {
			continue
		}
		uc.mu.Lock()
		_, joined := uc.chats[chatID]
		uc.mu.Unlock()
		if joined {
			targets = append(targets, uc)
		}
	}
	h.mu.RUnlock()

	for _, uc := range targets {
		if err := uc.write(event); err != nil {
			log.Printf("failed to broadcast to user %s: %v", uc.UserID, err)
		}
	}
}
