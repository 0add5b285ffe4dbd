package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/astrochat/astrochat-backend/internal/handlers"
	"github.com/astrochat/astrochat-backend/internal/middleware"
)

// Setup registers every route on the router. Handlers carry their own
// dependencies; nothing here touches globals.
func Setup(r *chi.Mux, h *handlers.Handlers) {
	loginLimit := middleware.NewLoginRateLimiter().Handler

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth
	r.With(loginLimit).Post("/api/auth/register", h.Register)
	r.With(loginLimit).Post("/api/auth/login", h.Login)
	r.Post("/api/auth/logout", h.Logout)
	r.Get("/api/auth/check-email", h.CheckEmail)
	r.With(loginLimit).Post("/api/auth/update-password", h.UpdatePassword)

	// Contacts
	r.Post("/api/contacts/request", h.SendFriendRequest)
	r.Post("/api/contacts/accept", h.AcceptFriendRequest)
	r.Post("/api/contacts/reject", h.RejectFriendRequest)
	r.Get("/api/contacts/requests", h.ListFriendRequests)
	r.Get("/api/contacts", h.ListContacts)

	// Messages
	r.Post("/api/messages", h.SendMessage)
	r.Get("/api/messages/{contactId}", h.GetConversation)
	r.Post("/api/messages/{contactId}/read", h.MarkConversationRead)

	// Uploads
	r.Post("/api/upload", h.UploadAvatar)

	// Realtime gateway
	r.Get("/ws/chat", h.ChatWebSocket)
}
