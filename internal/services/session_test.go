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

const testSecret = "unit-test-secret"

func seedUser(t *testing.T, st store.Store, name string, kind models.UserKind) string {
	t.Helper()
	id, err := st.Insert(context.Background(), store.ColUsers, models.User{
		Name:            name,
		Email:           name + "@example.com",
		Password:        "irrelevant-hash",
		Kind:            kind,
		FriendCode:      "#" + name + "123",
		Contacts:        []string{},
		PendingRequests: []models.PendingRequest{},
		CreatedAt:       st.Now(),
	})
	require.NoError(t, err)
	return id
}

func TestSessionService_IssueAndValidate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewSessionService(st, testSecret)
	userID := seedUser(t, st, "otter", models.KindMortal)

	t.Run("issued token validates to the issuing user", func(t *testing.T) {
		req := require.New(t)
		token, expiresAt, err := svc.Issue(ctx, userID, false)
		req.NoError(err)
		req.NotEmpty(token)
		req.WithinDuration(time.Now().Add(SessionDuration), expiresAt, time.Minute)

		ident, err := svc.Validate(ctx, token)
		req.NoError(err)
		req.Equal(userID, ident.UserID)
		req.Equal(models.KindMortal, ident.Kind)
	})

	t.Run("rememberMe extends the lifetime", func(t *testing.T) {
		req := require.New(t)
		_, expiresAt, err := svc.Issue(ctx, userID, true)
		req.NoError(err)
		req.WithinDuration(time.Now().Add(RememberMeDuration), expiresAt, time.Minute)
	})

	t.Run("two tokens for one user are independent", func(t *testing.T) {
		req := require.New(t)
		first, _, err := svc.Issue(ctx, userID, false)
		req.NoError(err)
		second, _, err := svc.Issue(ctx, userID, false)
		req.NoError(err)
		req.NotEqual(first, second)

		req.NoError(svc.Revoke(ctx, first))
		_, err = svc.Validate(ctx, second)
		req.NoError(err)
	})
}

func TestSessionService_ValidateRejects(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewSessionService(st, testSecret)
	userID := seedUser(t, st, "walrus", models.KindMortal)

	t.Run("empty token", func(t *testing.T) {
		req := require.New(t)
		_, err := svc.Validate(ctx, "")
		req.Equal(apperrors.KindUnauthenticated, apperrors.KindOf(err))
		req.Equal("Access denied. No token provided.", apperrors.MessageOf(err))
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Validate(ctx, "not-a-jwt")
		require.Equal(t, apperrors.KindUnauthenticated, apperrors.KindOf(err))
	})

	t.Run("well-signed token missing from the store", func(t *testing.T) {
		req := require.New(t)
		other := NewSessionService(store.NewMemory(), testSecret)
		otherUser := seedUser(t, st, "seal", models.KindMortal)
		token, _, err := other.Issue(ctx, otherUser, false)
		req.NoError(err)

		// Signature checks out but this store never saw the token.
		_, err = svc.Validate(ctx, token)
		req.Equal(apperrors.KindUnauthenticated, apperrors.KindOf(err))
	})

	t.Run("expired token", func(t *testing.T) {
		req := require.New(t)
		token, _, err := svc.Issue(ctx, userID, false)
		req.NoError(err)

		svc.now = func() time.Time { return time.Now().Add(SessionDuration + time.Hour) }
		defer func() { svc.now = time.Now }()

		_, err = svc.Validate(ctx, token)
		req.Equal(apperrors.KindUnauthenticated, apperrors.KindOf(err))
	})

	t.Run("revoked token fails despite a valid signature", func(t *testing.T) {
		req := require.New(t)
		token, _, err := svc.Issue(ctx, userID, false)
		req.NoError(err)
		req.NoError(svc.Revoke(ctx, token))

		_, err = svc.Validate(ctx, token)
		req.Equal(apperrors.KindUnauthenticated, apperrors.KindOf(err))
	})

	t.Run("revoking twice is a no-op", func(t *testing.T) {
		req := require.New(t)
		token, _, err := svc.Issue(ctx, userID, false)
		req.NoError(err)
		req.NoError(svc.Revoke(ctx, token))
		req.NoError(svc.Revoke(ctx, token))
	})
}

func TestSessionService_KindGate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewSessionService(st, testSecret)
	mortalID := seedUser(t, st, "mortal", models.KindMortal)
	adminID := seedUser(t, st, "admin", models.KindAdmin)

	mortalToken, _, err := svc.Issue(ctx, mortalID, false)
	require.NoError(t, err)
	adminToken, _, err := svc.Issue(ctx, adminID, false)
	require.NoError(t, err)

	t.Run("kind outside the allow-list is forbidden", func(t *testing.T) {
		req := require.New(t)
		_, err := svc.Validate(ctx, mortalToken, models.KindAdmin)
		req.Equal(apperrors.KindForbidden, apperrors.KindOf(err))
	})

	t.Run("kind inside the allow-list passes", func(t *testing.T) {
		req := require.New(t)
		ident, err := svc.Validate(ctx, adminToken, models.KindMortal, models.KindAdmin)
		req.NoError(err)
		req.Equal(models.KindAdmin, ident.Kind)
	})

	t.Run("empty allow-list admits any kind", func(t *testing.T) {
		_, err := svc.Validate(ctx, adminToken)
		require.NoError(t, err)
	})
}

func TestSessionService_RevokeAll(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewSessionService(st, testSecret)
	userID := seedUser(t, st, "otter", models.KindMortal)
	bystanderID := seedUser(t, st, "walrus", models.KindMortal)

	req := require.New(t)
	first, _, err := svc.Issue(ctx, userID, false)
	req.NoError(err)
	second, _, err := svc.Issue(ctx, userID, true)
	req.NoError(err)
	bystander, _, err := svc.Issue(ctx, bystanderID, false)
	req.NoError(err)

	req.NoError(svc.RevokeAll(ctx, userID))

	_, err = svc.Validate(ctx, first)
	req.Equal(apperrors.KindUnauthenticated, apperrors.KindOf(err))
	_, err = svc.Validate(ctx, second)
	req.Equal(apperrors.KindUnauthenticated, apperrors.KindOf(err))

	// Other users keep their sessions.
	_, err = svc.Validate(ctx, bystander)
	req.NoError(err)

	// No sessions left is still success.
	req.NoError(svc.RevokeAll(ctx, userID))
}
