package handlers

import (
	"net/http"
	"strings"

	"github.com/astrochat/astrochat-backend/internal/apperrors"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type loginResponse struct {
	Success    bool   `json:"success"`
	Token      string `json:"token"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Type       string `json:"type"`
	FriendCode string `json:"friendCode"`
	Avatar     string `json:"avatar,omitempty"`
}

// Register creates an account and immediately issues a session so the client
// lands signed in.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Name, email and a password of at least 8 characters are required")
		return
	}

	user, err := h.Users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}

	token, _, err := h.Sessions.Issue(r.Context(), user.ID, false)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, loginResponse{
		Success:    true,
		Token:      token,
		Name:       user.Name,
		Email:      user.Email,
		Type:       string(user.Kind),
		FriendCode: user.FriendCode,
	})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.Users.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}

	token, _, err := h.Sessions.Issue(r.Context(), user.ID, req.RememberMe)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Success:    true,
		Token:      token,
		Name:       user.Name,
		Email:      user.Email,
		Type:       string(user.Kind),
		FriendCode: user.FriendCode,
		Avatar:     user.ProfilePictureURL,
	})
}

// Logout revokes the presented token. Revoking an already-dead token still
// reports success so clients can always clear local state.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		var body struct {
			SessionToken string `json:"session_token"`
		}
		_ = decodeBodyLenient(r, &body)
		token = body.SessionToken
	}
	if token == "" {
		respondMessage(w, http.StatusBadRequest, "No session token provided")
		return
	}
	if err := h.Sessions.Revoke(r.Context(), token); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *Handlers) CheckEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		respondMessage(w, http.StatusBadRequest, "Email is required")
		return
	}
	exists, err := h.Users.EmailExists(r.Context(), email)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "exists": exists})
}

type updatePasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"new_password" validate:"required"`
}

// UpdatePassword resets the password for an account and kills every open
// session it has. The reset link that leads here is vended out of band.
func (h *Handlers) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondMessage(w, http.StatusBadRequest, "Email and new password are required")
		return
	}

	user, err := h.Users.UpdatePassword(r.Context(), req.Email, req.NewPassword)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.Sessions.RevokeAll(r.Context(), user.ID); err != nil {
		respondError(w, apperrors.Wrap(apperrors.KindStoreUnavailable, "Password updated but sessions could not be revoked", err))
		return
	}
	respondMessage(w, http.StatusOK, "Password updated successfully")
}
