package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/astrochat/astrochat-backend/internal/apperrors"
	"github.com/astrochat/astrochat-backend/internal/models"
	"github.com/astrochat/astrochat-backend/internal/services"
)

// Handlers carries every service the HTTP layer needs. Constructed once in
// main; no handler reaches for package-level state.
type Handlers struct {
	Users    *services.UserService
	Sessions *services.SessionService
	Contacts *services.ContactService
	Messages *services.MessageService
	Hub      *services.Hub

	// Bridge is optional; without Redis the gateway still serves local
	// connections and presence is simply not tracked.
	Bridge *services.RedisBridge

	// Avatars is optional; uploads 503 when Cloudinary is not configured.
	Avatars *services.AvatarService

	validate *validator.Validate
}

func New(users *services.UserService, sessions *services.SessionService, contacts *services.ContactService, messages *services.MessageService, hub *services.Hub) *Handlers {
	return &Handlers{
		Users:    users,
		Sessions: sessions,
		Contacts: contacts,
		Messages: messages,
		Hub:      hub,
		validate: validator.New(),
	}
}

// messageResponse is the minimal success/failure envelope.
type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondMessage(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, messageResponse{Success: status < 400, Message: msg})
}

// respondError renders the failure with the status its kind maps to.
// Unclassified and store-level failures are logged; their details never
// reach the client.
func respondError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindUnknown || kind == apperrors.KindStoreUnavailable {
		log.Printf("request failed: %v", err)
	}
	respondJSON(w, apperrors.HTTPStatus(kind), messageResponse{
		Success: false,
		Message: apperrors.MessageOf(err),
	})
}

// extractBearerToken pulls the token out of an Authorization header value.
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, prefix))
	}
	return ""
}

// authenticate validates the request's bearer token against the session
// authority before any domain logic runs. Returns false after writing the
// 401/403 response.
func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request, kinds ...models.UserKind) (services.Identity, bool) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	ident, err := h.Sessions.Validate(r.Context(), token, kinds...)
	if err != nil {
		respondError(w, err)
		return services.Identity{}, false
	}
	return ident, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// decodeBodyLenient decodes without writing an error response; used where a
// body is one of several places a value may come from.
func decodeBodyLenient(r *http.Request, dest any) error {
	return json.NewDecoder(r.Body).Decode(dest)
}
