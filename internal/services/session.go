package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/astrochat/astrochat-backend/internal/apperrors"
	"github.com/astrochat/astrochat-backend/internal/models"
	"github.com/astrochat/astrochat-backend/internal/store"
)

const (
	// SessionDuration is the default token lifetime.
	SessionDuration = 24 * time.Hour
	// RememberMeDuration is the lifetime when the client asks to stay signed in.
	RememberMeDuration = 30 * 24 * time.Hour
)

// Identity is the result of a successful token validation.
type Identity struct {
	UserID string
	Kind   models.UserKind
}

// SessionService issues, validates, and revokes bearer session tokens.
// Tokens are signed JWTs carrying a random 128-bit id, but validation is
// store-backed: a token that was revoked fails even with a valid signature.
type SessionService struct {
	store  store.Store
	secret []byte
	now    func() time.Time
}

func NewSessionService(st store.Store, jwtSecret string) *SessionService {
	return &SessionService{
		store:  st,
		secret: []byte(jwtSecret),
		now:    time.Now,
	}
}

type sessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Issue creates a session token for userID and persists it. Expiry is
// absolute; nothing renews it implicitly.
func (s *SessionService) Issue(ctx context.Context, userID string, rememberMe bool) (string, time.Time, error) {
	duration := SessionDuration
	if rememberMe {
		duration = RememberMeDuration
	}
	expiresAt := s.now().Add(duration)

	// 16 random bytes in the jti make the token unguessable regardless of
	// the claim contents; no collision retry is needed at this size.
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", time.Time{}, err
	}

	claims := &sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        hex.EncodeToString(nonce),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			Issuer:    "astrochat",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	_, err = s.store.Insert(ctx, store.ColSessionTokens, models.SessionToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to save session", err)
	}

	return token, expiresAt, nil
}

// Validate resolves a bearer token to an identity. It fails Unauthenticated
// when the token is missing, unknown, or expired, and Forbidden when the
// user's kind is not in allowedKinds (an empty allow-list admits any kind).
func (s *SessionService) Validate(ctx context.Context, token string, allowedKinds ...models.UserKind) (Identity, error) {
	if token == "" {
		return Identity{}, apperrors.E(apperrors.KindUnauthenticated, "Access denied. No token provided.")
	}

	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Identity{}, apperrors.E(apperrors.KindUnauthenticated, "Invalid or expired token.")
	}

	var record models.SessionToken
	err = s.store.FindOne(ctx, store.ColSessionTokens, store.Filter{"token": token}, &record)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, apperrors.E(apperrors.KindUnauthenticated, "Invalid or expired token.")
	}
	if err != nil {
		return Identity{}, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to verify token", err)
	}
	if s.now().After(record.ExpiresAt) {
		return Identity{}, apperrors.E(apperrors.KindUnauthenticated, "Token has expired.")
	}

	var user models.User
	err = s.store.FindByID(ctx, store.ColUsers, record.UserID, &user)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, apperrors.E(apperrors.KindUnauthenticated, "User not found.")
	}
	if err != nil {
		return Identity{}, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to verify token", err)
	}

	if len(allowedKinds) > 0 && !kindAllowed(user.Kind, allowedKinds) {
		return Identity{}, apperrors.E(apperrors.KindForbidden, "Access denied. Insufficient permissions.")
	}

	return Identity{UserID: record.UserID, Kind: user.Kind}, nil
}

// Revoke deletes a session token. Revoking an unknown token is a no-op.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	var record models.SessionToken
	err := s.store.FindOne(ctx, store.ColSessionTokens, store.Filter{"token": token}, &record)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to revoke session", err)
	}

	err = s.store.AtomicBatch(ctx, []store.Op{
		{Type: store.OpDelete, Collection: store.ColSessionTokens, ID: record.ID},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to revoke session", err)
	}
	return nil
}

// RevokeAll deletes every session for a user, used on credential rotation.
// A token issued concurrently with the revocation may survive it; that race
// is accepted rather than serialized.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) error {
	var records []models.SessionToken
	err := s.store.FindMany(ctx, store.ColSessionTokens, store.Filter{"user_id": userID}, &records)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to revoke sessions", err)
	}
	if len(records) == 0 {
		return nil
	}

	ops := make([]store.Op, 0, len(records))
	for _, r := range records {
		ops = append(ops, store.Op{Type: store.OpDelete, Collection: store.ColSessionTokens, ID: r.ID})
	}
	if err := s.store.AtomicBatch(ctx, ops); err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to revoke sessions", err)
	}
	return nil
}

func kindAllowed(kind models.UserKind, allowed []models.UserKind) bool {
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}
