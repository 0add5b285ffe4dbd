package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/astrochat/astrochat-backend/internal/apperrors"
	"github.com/astrochat/astrochat-backend/internal/models"
	"github.com/astrochat/astrochat-backend/internal/store"
)

// ContactService maintains per-user contact sets and pending-request queues.
// Contacts are symmetric: linking always updates both user documents in one
// atomic batch.
type ContactService struct {
	store store.Store
	now   func() time.Time
}

func NewContactService(st store.Store) *ContactService {
	return &ContactService{store: st, now: time.Now}
}

// ContactSummary is one row of the contact list: profile plus, when the
// conversation has any history, a last-message preview.
type ContactSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar,omitempty"`
	LastMessage  string    `json:"last_message"`
	Timestamp    string    `json:"timestamp,omitempty"`
	RawTimestamp time.Time `json:"raw_timestamp,omitempty"`
	HasUnread    bool      `json:"has_unread_messages"`
	UnreadCount  int       `json:"unread_count"`
}

// SendRequest resolves a friend code and appends a pending request to the
// target's queue. The duplicate check is read-then-write and therefore
// best-effort under concurrent identical requests.
//
// When the target already has a request pending in the opposite direction
// (both sides invited each other), the second request is treated as an
// implicit accept instead of piling up a mirrored entry.
func (s *ContactService) SendRequest(ctx context.Context, fromID, friendCode string) error {
	var sender models.User
	if err := s.store.FindByID(ctx, store.ColUsers, fromID, &sender); err != nil {
		return userLookupErr(err)
	}

	var receiver models.User
	err := s.store.FindOne(ctx, store.ColUsers, store.Filter{"friend_code": strings.TrimSpace(friendCode)}, &receiver)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.E(apperrors.KindNotFound, "Friend code not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to look up friend code", err)
	}

	if receiver.ID == sender.ID {
		return apperrors.E(apperrors.KindConflict, "You cannot send a request to yourself")
	}
	if containsString(sender.Contacts, receiver.ID) {
		return apperrors.E(apperrors.KindConflict, "This user is already your contact")
	}
	if pendingIndex(receiver.PendingRequests, sender.ID) >= 0 {
		return apperrors.E(apperrors.KindConflict, "You have already sent a request to this user")
	}

	// Crossing requests: the other side already invited us, so link now.
	if pendingIndex(sender.PendingRequests, receiver.ID) >= 0 {
		return s.AcceptRequest(ctx, sender.ID, receiver.ID)
	}

	updated := append(receiver.PendingRequests[:0:0], receiver.PendingRequests...)
	updated = append(updated, models.PendingRequest{
		SenderID:     sender.ID,
		SenderName:   sender.Name,
		SenderAvatar: sender.ProfilePictureURL,
		ReceivedAt:   s.store.Now(),
	})

	err = s.store.UpdateFields(ctx, store.ColUsers, receiver.ID, store.Filter{"pending_requests": updated})
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to send friend request", err)
	}
	return nil
}

// AcceptRequest removes the pending entry and links both users. The removal
// and both contact insertions are one atomic batch, so no observable state
// has the request gone but only one side linked.
func (s *ContactService) AcceptRequest(ctx context.Context, receiverID, senderID string) error {
	var receiver models.User
	if err := s.store.FindByID(ctx, store.ColUsers, receiverID, &receiver); err != nil {
		return userLookupErr(err)
	}

	idx := pendingIndex(receiver.PendingRequests, senderID)
	if idx < 0 {
		return apperrors.E(apperrors.KindNotFound, "Request not found")
	}

	var sender models.User
	if err := s.store.FindByID(ctx, store.ColUsers, senderID, &sender); err != nil {
		return userLookupErr(err)
	}

	remaining := append(receiver.PendingRequests[:0:0], receiver.PendingRequests[:idx]...)
	remaining = append(remaining, receiver.PendingRequests[idx+1:]...)

	err := s.store.AtomicBatch(ctx, []store.Op{
		{
			Type:       store.OpUpdate,
			Collection: store.ColUsers,
			ID:         receiver.ID,
			Fields: store.Filter{
				"pending_requests": remaining,
				"contacts":         appendUnique(receiver.Contacts, sender.ID),
			},
		},
		{
			Type:       store.OpUpdate,
			Collection: store.ColUsers,
			ID:         sender.ID,
			Fields: store.Filter{
				"contacts": appendUnique(sender.Contacts, receiver.ID),
			},
		},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to accept friend request", err)
	}
	return nil
}

// RejectRequest drops the pending entry. The contact graph is untouched.
func (s *ContactService) RejectRequest(ctx context.Context, receiverID, senderID string) error {
	var receiver models.User
	if err := s.store.FindByID(ctx, store.ColUsers, receiverID, &receiver); err != nil {
		return userLookupErr(err)
	}

	idx := pendingIndex(receiver.PendingRequests, senderID)
	if idx < 0 {
		return apperrors.E(apperrors.KindNotFound, "Request not found")
	}

	remaining := append(receiver.PendingRequests[:0:0], receiver.PendingRequests[:idx]...)
	remaining = append(remaining, receiver.PendingRequests[idx+1:]...)

	err := s.store.UpdateFields(ctx, store.ColUsers, receiver.ID, store.Filter{"pending_requests": remaining})
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to reject friend request", err)
	}
	return nil
}

// ListPendingRequests returns the queue in insertion order.
func (s *ContactService) ListPendingRequests(ctx context.Context, userID string) ([]models.PendingRequest, error) {
	var user models.User
	if err := s.store.FindByID(ctx, store.ColUsers, userID, &user); err != nil {
		return nil, userLookupErr(err)
	}
	if user.PendingRequests == nil {
		return []models.PendingRequest{}, nil
	}
	return user.PendingRequests, nil
}

// ListContacts joins each contact's profile with the last-message preview.
// The unread count query only runs for contacts whose summary carries the
// unread flag, so a contact list without unread chat costs no extra reads.
func (s *ContactService) ListContacts(ctx context.Context, userID string) ([]ContactSummary, error) {
	var user models.User
	if err := s.store.FindByID(ctx, store.ColUsers, userID, &user); err != nil {
		return nil, userLookupErr(err)
	}

	summaries := make([]ContactSummary, 0, len(user.Contacts))
	for _, contactID := range user.Contacts {
		var contact models.User
		err := s.store.FindByID(ctx, store.ColUsers, contactID, &contact)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to load contacts", err)
		}

		summary := ContactSummary{
			ID:          contactID,
			Name:        contact.Name,
			Avatar:      contact.ProfilePictureURL,
			LastMessage: "No messages yet",
		}

		if lm, ok := user.LastMessageWith[contactID]; ok {
			if lm.Content != "" {
				summary.LastMessage = lm.Content
			}
			summary.RawTimestamp = lm.SentAt
			summary.Timestamp = formatPreviewTime(lm.SentAt, s.now())
			summary.HasUnread = lm.Unread

			if lm.Unread {
				var unread []models.Message
				err := s.store.FindMany(ctx, store.ColMessages, store.Filter{
					"receiver_id": userID,
					"sender_id":   contactID,
					"read":        false,
				}, &unread)
				if err != nil {
					return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to count unread messages", err)
				}
				summary.UnreadCount = len(unread)
			}
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// formatPreviewTime renders the contact-list timestamp: time of day for
// today, "Yesterday" for yesterday, a calendar date for anything older.
func formatPreviewTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now = now.Local()

	y1, m1, d1 := t.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return t.Format("15:04")
	}

	yesterday := now.AddDate(0, 0, -1)
	y3, m3, d3 := yesterday.Date()
	if y1 == y3 && m1 == m3 && d1 == d3 {
		return "Yesterday"
	}

	return t.Format("Jan 2, 2006")
}

func userLookupErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.E(apperrors.KindNotFound, "User not found")
	}
	return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to load user", err)
}

func pendingIndex(requests []models.PendingRequest, senderID string) int {
	for i, r := range requests {
		if r.SenderID == senderID {
			return i
		}
	}
	return -1
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	if containsString(list, s) {
		return list
	}
	return append(append(list[:0:0], list...), s)
}
