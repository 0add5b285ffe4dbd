package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/astrochat/astrochat-backend/internal/apperrors"
	"github.com/astrochat/astrochat-backend/internal/models"
	"github.com/astrochat/astrochat-backend/internal/store"
)

func getUser(t *testing.T, st store.Store, id string) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, st.FindByID(context.Background(), store.ColUsers, id, &user))
	return user
}

func friendCodeOf(t *testing.T, st store.Store, id string) string {
	t.Helper()
	return getUser(t, st, id).FriendCode
}

func TestContactService_SendRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("appends a pending request to the receiver", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)
		bob := seedUser(t, st, "bobcatt", models.KindMortal)

		req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob)))

		pending := getUser(t, st, bob).PendingRequests
		req.Len(pending, 1)
		req.Equal(alice, pending[0].SenderID)
		req.Equal("alice", pending[0].SenderName)
		req.False(pending[0].ReceivedAt.IsZero())

		// Sender state is untouched until the receiver decides.
		req.Empty(getUser(t, st, alice).Contacts)
		req.Empty(getUser(t, st, bob).Contacts)
	})

	t.Run("unknown friend code", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)

		err := svc.SendRequest(ctx, alice, "#zzzzzzzz")
		req.Equal(apperrors.KindNotFound, apperrors.KindOf(err))
		req.Equal("Friend code not found", apperrors.MessageOf(err))
	})

	t.Run("own friend code is rejected", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)

		err := svc.SendRequest(ctx, alice, friendCodeOf(t, st, alice))
		req.Equal(apperrors.KindConflict, apperrors.KindOf(err))
	})

	t.Run("duplicate request is rejected", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)
		bob := seedUser(t, st, "bobcatt", models.KindMortal)

		req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob)))
		err := svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob))
		req.Equal(apperrors.KindConflict, apperrors.KindOf(err))
		req.Len(getUser(t, st, bob).PendingRequests, 1)
	})

	t.Run("request to an existing contact is rejected", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)
		bob := seedUser(t, st, "bobcatt", models.KindMortal)

		req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob)))
		req.NoError(svc.AcceptRequest(ctx, bob, alice))

		err := svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob))
		req.Equal(apperrors.KindConflict, apperrors.KindOf(err))
	})

	t.Run("crossing requests resolve to an immediate link", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)
		bob := seedUser(t, st, "bobcatt", models.KindMortal)

		req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob)))
		req.NoError(svc.SendRequest(ctx, bob, friendCodeOf(t, st, alice)))

		req.Contains(getUser(t, st, alice).Contacts, bob)
		req.Contains(getUser(t, st, bob).Contacts, alice)
		req.Empty(getUser(t, st, alice).PendingRequests)
		req.Empty(getUser(t, st, bob).PendingRequests)
	})
}

func TestContactService_AcceptRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("links both sides and clears the queue entry", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)
		bob := seedUser(t, st, "bobcatt", models.KindMortal)

		req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob)))
		req.NoError(svc.AcceptRequest(ctx, bob, alice))

		req.Equal([]string{alice}, getUser(t, st, bob).Contacts)
		req.Equal([]string{bob}, getUser(t, st, alice).Contacts)
		req.Empty(getUser(t, st, bob).PendingRequests)
	})

	t.Run("accept without a matching request", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)
		bob := seedUser(t, st, "bobcatt", models.KindMortal)

		err := svc.AcceptRequest(ctx, bob, alice)
		req.Equal(apperrors.KindNotFound, apperrors.KindOf(err))
	})

	t.Run("accepting twice reports the request gone", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)
		bob := seedUser(t, st, "bobcatt", models.KindMortal)

		req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob)))
		req.NoError(svc.AcceptRequest(ctx, bob, alice))
		err := svc.AcceptRequest(ctx, bob, alice)
		req.Equal(apperrors.KindNotFound, apperrors.KindOf(err))

		// The earlier link is not duplicated or damaged.
		req.Equal([]string{alice}, getUser(t, st, bob).Contacts)
	})

	t.Run("only the named entry leaves the queue", func(t *testing.T) {
		req := require.New(t)
		st := store.NewMemory()
		svc := NewContactService(st)
		alice := seedUser(t, st, "alice", models.KindMortal)
		bob := seedUser(t, st, "bobcatt", models.KindMortal)
		carol := seedUser(t, st, "carolyn", models.KindMortal)

		req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, carol)))
		req.NoError(svc.SendRequest(ctx, bob, friendCodeOf(t, st, carol)))
		req.NoError(svc.AcceptRequest(ctx, carol, alice))

		pending := getUser(t, st, carol).PendingRequests
		req.Len(pending, 1)
		req.Equal(bob, pending[0].SenderID)
	})
}

func TestContactService_RejectRequest(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	st := store.NewMemory()
	svc := NewContactService(st)
	alice := seedUser(t, st, "alice", models.KindMortal)
	bob := seedUser(t, st, "bobcatt", models.KindMortal)

	req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob)))
	req.NoError(svc.RejectRequest(ctx, bob, alice))

	// Queue entry gone, graph untouched.
	req.Empty(getUser(t, st, bob).PendingRequests)
	req.Empty(getUser(t, st, bob).Contacts)
	req.Empty(getUser(t, st, alice).Contacts)

	err := svc.RejectRequest(ctx, bob, alice)
	req.Equal(apperrors.KindNotFound, apperrors.KindOf(err))

	// Rejection does not block a later request.
	req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, bob)))
	req.Len(getUser(t, st, bob).PendingRequests, 1)
}

func TestContactService_ListPendingRequests(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	st := store.NewMemory()
	svc := NewContactService(st)
	alice := seedUser(t, st, "alice", models.KindMortal)
	bob := seedUser(t, st, "bobcatt", models.KindMortal)
	carol := seedUser(t, st, "carolyn", models.KindMortal)

	list, err := svc.ListPendingRequests(ctx, carol)
	req.NoError(err)
	req.NotNil(list)
	req.Empty(list)

	req.NoError(svc.SendRequest(ctx, alice, friendCodeOf(t, st, carol)))
	req.NoError(svc.SendRequest(ctx, bob, friendCodeOf(t, st, carol)))

	list, err = svc.ListPendingRequests(ctx, carol)
	req.NoError(err)
	req.Len(list, 2)
	req.Equal(alice, list[0].SenderID)
	req.Equal(bob, list[1].SenderID)
}

func TestContactService_ListContacts(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	st := store.NewMemory()
	contacts := NewContactService(st)
	messages := NewMessageService(st, nil)

	alice := seedUser(t, st, "alice", models.KindMortal)
	bob := seedUser(t, st, "bobcatt", models.KindMortal)
	req.NoError(contacts.SendRequest(ctx, alice, friendCodeOf(t, st, bob)))
	req.NoError(contacts.AcceptRequest(ctx, bob, alice))

	t.Run("contact without history has the placeholder preview", func(t *testing.T) {
		req := require.New(t)
		list, err := contacts.ListContacts(ctx, alice)
		req.NoError(err)
		req.Len(list, 1)
		req.Equal(bob, list[0].ID)
		req.Equal("No messages yet", list[0].LastMessage)
		req.False(list[0].HasUnread)
		req.Zero(list[0].UnreadCount)
	})

	t.Run("last message and unread count show on the receiver side", func(t *testing.T) {
		req := require.New(t)
		_, err := messages.Send(ctx, alice, bob, "hello")
		req.NoError(err)
		_, err = messages.Send(ctx, alice, bob, "you there?")
		req.NoError(err)

		list, err := contacts.ListContacts(ctx, bob)
		req.NoError(err)
		req.Len(list, 1)
		req.Equal("you there?", list[0].LastMessage)
		req.True(list[0].HasUnread)
		req.Equal(2, list[0].UnreadCount)

		// The sender sees the same preview without the unread flag.
		list, err = contacts.ListContacts(ctx, alice)
		req.NoError(err)
		req.Equal("you there?", list[0].LastMessage)
		req.False(list[0].HasUnread)
		req.Zero(list[0].UnreadCount)
	})

	t.Run("reading the conversation clears the unread preview", func(t *testing.T) {
		req := require.New(t)
		_, err := messages.ListConversation(ctx, bob, alice, 0, nil)
		req.NoError(err)

		list, err := contacts.ListContacts(ctx, bob)
		req.NoError(err)
		req.False(list[0].HasUnread)
		req.Zero(list[0].UnreadCount)
	})
}

func TestFormatPreviewTime(t *testing.T) {
	now := time.Date(2026, time.March, 10, 14, 30, 0, 0, time.Local)

	t.Run("zero time renders empty", func(t *testing.T) {
		require.Equal(t, "", formatPreviewTime(time.Time{}, now))
	})

	t.Run("same day renders the clock time", func(t *testing.T) {
		at := time.Date(2026, time.March, 10, 9, 5, 0, 0, time.Local)
		require.Equal(t, "09:05", formatPreviewTime(at, now))
	})

	t.Run("previous day renders Yesterday", func(t *testing.T) {
		at := time.Date(2026, time.March, 9, 23, 59, 0, 0, time.Local)
		require.Equal(t, "Yesterday", formatPreviewTime(at, now))
	})

	t.Run("older renders the calendar date", func(t *testing.T) {
		at := time.Date(2026, time.January, 2, 8, 0, 0, 0, time.Local)
		require.Equal(t, "Jan 2, 2026", formatPreviewTime(at, now))
	})
}
