package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/Lookout84/agromarket/internal/domain/auth"
	"github.com/Lookout84/agromarket/internal/domain/user"
)

var (
	ErrInvalidCredentials   = errors.New("auth service: invalid credentials")
	ErrPasswordTooShort     = errors.New("auth service: password must be at least 8 characters")
	ErrAccountSuspended     = errors.New("auth service: account suspended")
	ErrServiceNotConfigured = errors.New("auth service: not fully configured")
)

const minPasswordLength = 8

// PasswordHasher hides the hashing algorithm from the service.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenGenerator produces opaque session tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

type Service struct {
	Users      user.Repository
	Sessions   domainauth.SessionStore
	Hasher     PasswordHasher
	Tokens     TokenGenerator
	SessionTTL time.Duration
	Logger     *slog.Logger
	Clock      func() time.Time
}

type RegisterParams struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Region   string
}

func (s *Service) Register(ctx context.Context, params RegisterParams) (*user.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(params.Password)) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := s.Hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	account, err := user.NewUser(user.CreateParams{
		ID:           user.ID(uuid.NewString()),
		Email:        params.Email,
		Name:         params.Name,
		Phone:        params.Phone,
		Region:       params.Region,
		PasswordHash: hash,
		Roles:        []user.Role{user.RoleBuyer},
		CreatedAt:    s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Users.Save(ctx, account); err != nil {
		return nil, err
	}
	s.logger().Info("user registered", "user_id", account.ID)
	return account, nil
}

// Login checks the credentials and opens a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*domainauth.Session, *user.User, error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}
	account, err := s.Users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if err := s.Hasher.Compare(account.PasswordHash, password); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if account.Suspended {
		return nil, nil, ErrAccountSuspended
	}

	token, err := s.Tokens.NewToken()
	if err != nil {
		return nil, nil, fmt.Errorf("generate token: %w", err)
	}
	session, err := domainauth.NewSession(domainauth.Token(token), account.ID, s.SessionTTL, s.now())
	if err != nil {
		return nil, nil, err
	}
	if err := s.Sessions.Save(ctx, session); err != nil {
		return nil, nil, err
	}
	s.logger().Info("session opened", "user_id", account.ID)
	return session, account, nil
}

func (s *Service) Logout(ctx context.Context, token domainauth.Token) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.Sessions.Delete(ctx, token); err != nil && !errors.Is(err, domainauth.ErrSessionNotFound) {
		return err
	}
	return nil
}

// ResolveToken maps a bearer token to its user. Expired sessions are
// treated as unknown and removed opportunistically.
func (s *Service) ResolveToken(ctx context.Context, token domainauth.Token) (*user.User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	session, err := s.Sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, domainauth.ErrSessionNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if session.Expired(s.now()) {
		_ = s.Sessions.Delete(ctx, token)
		return nil, ErrInvalidCredentials
	}
	account, err := s.Users.ByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if account.Suspended {
		return nil, ErrAccountSuspended
	}
	return account, nil
}

func (s *Service) ready() error {
	if s.Users == nil || s.Sessions == nil || s.Hasher == nil || s.Tokens == nil || s.SessionTTL <= 0 {
		return ErrServiceNotConfigured
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
