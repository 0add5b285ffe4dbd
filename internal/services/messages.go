package services

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/astrochat/astrochat-backend/internal/apperrors"
	"github.com/astrochat/astrochat-backend/internal/models"
	"github.com/astrochat/astrochat-backend/internal/store"
)

const (
	// DefaultConversationLimit applies when the caller passes no explicit
	// limit.
	DefaultConversationLimit = 50
	// MaxConversationLimit is the hard page-size ceiling; larger requests
	// are clamped, not rejected.
	MaxConversationLimit = 100
)

// MessageService is the append-only conversation ledger with read/unread
// bookkeeping. A successful send publishes a delivery event; whether a live
// connection receives it is the gateway's concern.
type MessageService struct {
	store     store.Store
	publisher Publisher
}

func NewMessageService(st store.Store, publisher Publisher) *MessageService {
	return &MessageService{store: st, publisher: publisher}
}

// Send persists a message from sender to receiver and updates both users'
// conversation summaries. Messaging is contacts-only.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperrors.E(apperrors.KindValidation, "Message content is required")
	}

	var sender models.User
	if err := s.store.FindByID(ctx, store.ColUsers, senderID, &sender); err != nil {
		return "", userLookupErr(err)
	}
	if !containsString(sender.Contacts, receiverID) {
		return "", apperrors.E(apperrors.KindForbidden, "The recipient is not one of your contacts")
	}

	now := s.store.Now()
	messageID, err := s.store.Insert(ctx, store.ColMessages, models.Message{
		SenderID:     senderID,
		ReceiverID:   receiverID,
		Content:      content,
		CreatedAt:    now,
		Read:         false,
		Participants: []string{senderID, receiverID},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to send message", err)
	}

	// Conversation summaries on both sides; only the receiver's copy carries
	// the unread flag.
	err = s.store.UpdateFields(ctx, store.ColUsers, senderID, store.Filter{
		"last_message_with." + receiverID: models.LastMessage{Content: content, SentAt: now},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to update conversation summary", err)
	}
	err = s.store.UpdateFields(ctx, store.ColUsers, receiverID, store.Filter{
		"last_message_with." + senderID: models.LastMessage{Content: content, SentAt: now, Unread: true},
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to update conversation summary", err)
	}

	if s.publisher != nil {
		evt := DeliveryEvent{
			Type:      EventTypeMessage,
			MessageID: messageID,
			SenderID:  senderID,
			Content:   content,
			Timestamp: now,
		}
		if err := s.publisher.Deliver(ctx, receiverID, evt); err != nil {
			// Best-effort push; the ledger already holds the message.
			log.Printf("delivery event for message %s not published: %v", messageID, err)
		}
	}

	return messageID, nil
}

// ListConversation returns the messages between userID and contactID,
// oldest first, optionally only those strictly before a given instant,
// capped at limit. As a side effect every unread message addressed to
// userID in this conversation is marked read; a message arriving between
// the query snapshot and the batch commit stays unread until the next call.
func (s *MessageService) ListConversation(ctx context.Context, userID, contactID string, limit int, before *time.Time) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultConversationLimit
	} else if limit > MaxConversationLimit {
		limit = MaxConversationLimit
	}

	var all []models.Message
	err := s.store.FindMany(ctx, store.ColMessages, store.Filter{"participants": userID}, &all)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to load messages", err)
	}

	conversation := make([]models.Message, 0, len(all))
	for _, m := range all {
		if (m.SenderID == userID && m.ReceiverID == contactID) ||
			(m.SenderID == contactID && m.ReceiverID == userID) {
			conversation = append(conversation, m)
		}
	}

	// Creation instant defines the order; insertion order breaks ties.
	sort.SliceStable(conversation, func(i, j int) bool {
		return conversation[i].CreatedAt.Before(conversation[j].CreatedAt)
	})

	view := make([]models.Message, 0, len(conversation))
	for _, m := range conversation {
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		view = append(view, m)
	}
	if len(view) > limit {
		view = view[:limit]
	}

	if err := s.markConversationRead(ctx, userID, contactID, conversation); err != nil {
		return nil, err
	}
	for i := range view {
		if view[i].ReceiverID == userID {
			view[i].Read = true
		}
	}

	return view, nil
}

// MarkRead flips every unread message from contactID to userID and clears
// the unread flag on userID's conversation summary. Nothing unread is a
// successful no-op.
func (s *MessageService) MarkRead(ctx context.Context, userID, contactID string) error {
	var unread []models.Message
	err := s.store.FindMany(ctx, store.ColMessages, store.Filter{
		"receiver_id": userID,
		"sender_id":   contactID,
		"read":        false,
	}, &unread)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to load unread messages", err)
	}
	return s.commitReadBatch(ctx, userID, contactID, unread)
}

// markConversationRead marks the unread snapshot from an already-loaded
// conversation, avoiding a second query.
func (s *MessageService) markConversationRead(ctx context.Context, userID, contactID string, conversation []models.Message) error {
	unread := make([]models.Message, 0)
	for _, m := range conversation {
		if m.ReceiverID == userID && !m.Read {
			unread = append(unread, m)
		}
	}
	return s.commitReadBatch(ctx, userID, contactID, unread)
}

// commitReadBatch applies the read flips plus the summary-flag clear as one
// atomic batch.
func (s *MessageService) commitReadBatch(ctx context.Context, userID, contactID string, unread []models.Message) error {
	var user models.User
	if err := s.store.FindByID(ctx, store.ColUsers, userID, &user); err != nil {
		return userLookupErr(err)
	}

	summary, hasSummary := user.LastMessageWith[contactID]
	if len(unread) == 0 && !(hasSummary && summary.Unread) {
		return nil
	}

	ops := make([]store.Op, 0, len(unread)+1)
	for _, m := range unread {
		ops = append(ops, store.Op{
			Type:       store.OpUpdate,
			Collection: store.ColMessages,
			ID:         m.ID,
			Fields:     store.Filter{"read": true},
		})
	}
	if hasSummary {
		ops = append(ops, store.Op{
			Type:       store.OpUpdate,
			Collection: store.ColUsers,
			ID:         userID,
			Fields:     store.Filter{"last_message_with." + contactID + ".unread": false},
		})
	}

	if err := s.store.AtomicBatch(ctx, ops); err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to mark messages as read", err)
	}
	return nil
}
