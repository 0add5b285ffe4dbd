package services

import (
	"context"
	"errors"
	"strings"

	"github.com/astrochat/astrochat-backend/internal/apperrors"
	"github.com/astrochat/astrochat-backend/internal/models"
	"github.com/astrochat/astrochat-backend/internal/store"
	"github.com/astrochat/astrochat-backend/pkg/utils"
)

// friendCodeAttempts bounds the uniqueness check during registration. The
// check is best-effort; the store's unique index is the real guarantee.
const friendCodeAttempts = 5

// UserService covers account lifecycle: registration, credential checks,
// and profile updates. Credential hashing lives in pkg/utils; federated
// token exchange happens outside this service entirely.
type UserService struct {
	store store.Store
}

func NewUserService(st store.Store) *UserService {
	return &UserService{store: st}
}

// Register creates an ordinary account with a fresh unique friend code and
// empty contact state.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var existing models.User
	err := s.store.FindOne(ctx, store.ColUsers, store.Filter{"email": email}, &existing)
	if err == nil {
		return nil, apperrors.E(apperrors.KindConflict, "A user with this email already exists")
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to check email", err)
	}

	friendCode, err := s.uniqueFriendCode(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		CreatedAt:       s.store.Now(),
		Name:            name,
		Email:           email,
		Password:        hash,
		Kind:            models.KindMortal,
		FriendCode:      friendCode,
		Contacts:        []string{},
		PendingRequests: []models.PendingRequest{},
	}

	id, err := s.store.Insert(ctx, store.ColUsers, user)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to create user", err)
	}
	user.ID = id
	return &user, nil
}

// VerifyCredentials resolves email+password to a user. Accounts created via
// federated login have no password and are reported as such so the client
// can redirect to the provider.
func (s *UserService) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.store.FindOne(ctx, store.ColUsers, store.Filter{"email": strings.ToLower(strings.TrimSpace(email))}, &user)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.E(apperrors.KindUnauthenticated, "Invalid credentials")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to look up user", err)
	}

	if user.Password == "" {
		return nil, apperrors.E(apperrors.KindValidation, "This account uses federated sign-in and has no password")
	}

	ok, err := utils.VerifyPassword(password, user.Password)
	if err != nil || !ok {
		return nil, apperrors.E(apperrors.KindUnauthenticated, "Invalid credentials")
	}
	return &user, nil
}

// EmailExists reports whether an account uses the given email.
func (s *UserService) EmailExists(ctx context.Context, email string) (bool, error) {
	var user models.User
	err := s.store.FindOne(ctx, store.ColUsers, store.Filter{"email": strings.ToLower(strings.TrimSpace(email))}, &user)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to check email", err)
	}
	return true, nil
}

// UpdatePassword re-hashes the user's password after a strength check. The
// caller is responsible for revoking live sessions afterwards.
func (s *UserService) UpdatePassword(ctx context.Context, email, newPassword string) (*models.User, error) {
	var user models.User
	err := s.store.FindOne(ctx, store.ColUsers, store.Filter{"email": strings.ToLower(strings.TrimSpace(email))}, &user)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.E(apperrors.KindNotFound, "User not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to look up user", err)
	}

	if user.Password == "" && user.FederatedID != "" {
		return nil, apperrors.E(apperrors.KindValidation, "Federated accounts cannot change their password here")
	}
	if err := utils.ValidatePasswordStrength(newPassword); err != nil {
		return nil, apperrors.E(apperrors.KindValidation, err.Error())
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	err = s.store.UpdateFields(ctx, store.ColUsers, user.ID, store.Filter{
		"password":   hash,
		"updated_at": s.store.Now(),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to update password", err)
	}
	return &user, nil
}

// SetAvatar stores the uploaded avatar URL on the user record.
func (s *UserService) SetAvatar(ctx context.Context, userID, url string) error {
	err := s.store.UpdateFields(ctx, store.ColUsers, userID, store.Filter{"profile_picture_url": url})
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.E(apperrors.KindNotFound, "User not found")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to update avatar", err)
	}
	return nil
}

// GetByID loads a user record.
func (s *UserService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.store.FindByID(ctx, store.ColUsers, userID, &user); err != nil {
		return nil, userLookupErr(err)
	}
	return &user, nil
}

// uniqueFriendCode generates codes until one is free. Two concurrent
// registrations can still race past the check; the store's unique index on
// friend_code rejects the loser.
func (s *UserService) uniqueFriendCode(ctx context.Context) (string, error) {
	for i := 0; i < friendCodeAttempts; i++ {
		code, err := utils.NewFriendCode()
		if err != nil {
			return "", err
		}
		var taken models.User
		err = s.store.FindOne(ctx, store.ColUsers, store.Filter{"friend_code": code}, &taken)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindStoreUnavailable, "Failed to check friend code", err)
		}
	}
	return "", apperrors.E(apperrors.KindStoreUnavailable, "Could not allocate a friend code")
}
