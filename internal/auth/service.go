package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sathunt/internal/ledger"

	"github.com/google/uuid"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// Service wires password/session auth on top of the ledger's user and
// settings repositories.
type Service struct {
	users    *ledger.UserRepository
	settings *ledger.SettingsRepository
}

func NewService(users *ledger.UserRepository, settings *ledger.SettingsRepository) *Service {
	return &Service{users: users, settings: settings}
}

// Register creates a password-authenticated user.
func (s *Service) Register(ctx context.Context, username, password string) (*ledger.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	method := Password(hash)
	data, err := method.ToJSON()
	if err != nil {
		return nil, err
	}

	u := &ledger.User{
		ID:             uuid.NewString(),
		Username:       &username,
		AuthMethodType: method.Type,
		AuthData:       data,
		CreatedAt:      time.Now(),
		Role:           int(RoleUser),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies a username/password pair and returns the user, updating
// their last-login timestamp on success.
func (s *Service) Login(ctx context.Context, username, password string) (*ledger.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	method, err := FromJSON(u.AuthMethodType, u.AuthData)
	if err != nil {
		return nil, err
	}
	if method.Type != MethodPassword {
		return nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, method.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.users.UpdateLastLogin(ctx, u.ID, now); err != nil {
		return nil, err
	}
	u.LastLoginAt = &now
	return u, nil
}

// RoleOf looks up a user's current role, used to authorize admin-only
// actions such as force-deactivating a location.
func (s *Service) RoleOf(ctx context.Context, userID string) (Role, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return RoleUser, err
	}
	return Role(u.Role), nil
}

// NewAnonymousID mints a fresh identifier for an anonymous finder. The
// corresponding user row is created lazily, on first collect, by the claim
// engine's transaction — see ledger.UserRepository.GetOrCreateAnonymous.
func NewAnonymousID() string {
	return uuid.NewString()
}

// CookieSecret returns the server's session-cookie signing secret,
// generating one on first use.
func (s *Service) CookieSecret(ctx context.Context) (string, error) {
	return s.settings.GetOrCreateCookieSecret(ctx)
}
