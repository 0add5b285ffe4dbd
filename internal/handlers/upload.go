package handlers

import (
	"net/http"

	"github.com/astrochat/astrochat-backend/internal/models"
)

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// UploadAvatar accepts a multipart image, pushes it to Cloudinary and stores
// the resulting URL on the caller's profile.
func (h *Handlers) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.authenticate(w, r, models.KindMortal, models.KindAdmin)
	if !ok {
		return
	}
	if h.Avatars == nil {
		respondMessage(w, http.StatusServiceUnavailable, "Avatar uploads are not configured")
		return
	}

	// 10MB cap, matching what the frontend enforces.
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondMessage(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	url, err := h.Avatars.Upload(r.Context(), fileHeader)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.Users.SetAvatar(r.Context(), ident.UserID, url); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		Message: "Avatar updated successfully",
		URL:     url,
	})
}
