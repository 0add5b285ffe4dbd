package handlers

import (
	"net/http"

	"github.com/astrochat/astrochat-backend/internal/models"
	"github.com/astrochat/astrochat-backend/pkg/utils"
)

type friendRequestBody struct {
	FriendCode string `json:"friend_code" validate:"required"`
}

type requestDecisionBody struct {
	SenderID string `json:"sender_id" validate:"required"`
}

func (h *Handlers) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.authenticate(w, r, models.KindMortal)
	if !ok {
		return
	}
	var body friendRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	// Shape check before any store lookup; codes are "#" + 8 alphanumerics.
	if err := h.validate.Struct(body); err != nil || !utils.ValidFriendCode(body.FriendCode) {
		respondMessage(w, http.StatusBadRequest, "A valid friend code is required")
		return
	}
	if err := h.Contacts.SendRequest(r.Context(), ident.UserID, body.FriendCode); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Friend request sent")
}

func (h *Handlers) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.authenticate(w, r, models.KindMortal)
	if !ok {
		return
	}
	var body requestDecisionBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.validate.Struct(body); err != nil {
		respondMessage(w, http.StatusBadRequest, "Sender id is required")
		return
	}
	if err := h.Contacts.AcceptRequest(r.Context(), ident.UserID, body.SenderID); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Friend request accepted")
}

func (h *Handlers) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.authenticate(w, r, models.KindMortal, models.KindAdmin)
	if !ok {
		return
	}
	var body requestDecisionBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.validate.Struct(body); err != nil {
		respondMessage(w, http.StatusBadRequest, "Sender id is required")
		return
	}
	if err := h.Contacts.RejectRequest(r.Context(), ident.UserID, body.SenderID); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Friend request rejected")
}

func (h *Handlers) ListFriendRequests(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.authenticate(w, r, models.KindMortal)
	if !ok {
		return
	}
	requests, err := h.Contacts.ListPendingRequests(r.Context(), ident.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "requests": requests})
}

func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.authenticate(w, r, models.KindMortal)
	if !ok {
		return
	}
	contacts, err := h.Contacts.ListContacts(r.Context(), ident.UserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "contacts": contacts})
}
