package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/astrochat/astrochat-backend/internal/models"
)

type sendMessageBody struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.authenticate(w, r, models.KindMortal)
	if !ok {
		return
	}
	var body sendMessageBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.validate.Struct(body); err != nil {
		respondMessage(w, http.StatusBadRequest, "Receiver id and content are required")
		return
	}
	id, err := h.Messages.Send(r.Context(), ident.UserID, body.ReceiverID, body.Content)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "message_id": id})
}

// GetConversation returns the recent exchange with one contact. Fetching a
// page also marks the caller's side of it read.
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.authenticate(w, r, models.KindMortal)
	if !ok {
		return
	}
	contactID := chi.URLParam(r, "contactId")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondMessage(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondMessage(w, http.StatusBadRequest, "Invalid before timestamp, expected RFC 3339")
			return
		}
		before = &t
	}

	messages, err := h.Messages.ListConversation(r.Context(), ident.UserID, contactID, limit, before)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "messages": messages})
}

func (h *Handlers) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.authenticate(w, r, models.KindMortal)
	if !ok {
		return
	}
	contactID := chi.URLParam(r, "contactId")
	if err := h.Messages.MarkRead(r.Context(), ident.UserID, contactID); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Conversation marked as read")
}
