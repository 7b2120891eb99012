package auth

import (
	"context"
	"strings"
	"time"
)

// Service provides registration, login and principal resolution. Token
// lifetimes are owned by Tokens, which carries its own clock.
type Service struct {
	store  Store
	tokens *Tokens
}

// NewService constructs the auth service.
func NewService(store Store, tokens *Tokens) *Service {
	return &Service{store: store, tokens: tokens}
}

// Session is the result of a successful login or registration.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
}

// Register creates an account with a student role and an empty wishlist.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName, grade string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return Session{}, ErrInvalidInput
	}
	if len(password) < 8 {
		return Session{}, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	acc := &Account{Email: email, PasswordHash: hash, Status: "active"}
	profile := &Profile{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Grade:     strings.TrimSpace(grade),
	}
	if err := s.store.CreateAccount(ctx, acc, profile); err != nil {
		return Session{}, err
	}
	if err := s.store.SetRole(ctx, acc.ID, RoleStudent); err != nil {
		return Session{}, err
	}
	return s.sessionFor(ctx, acc.ID)
}

// Login verifies credentials and mints an access token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrUnauthorized
	}
	acc, err := s.store.FindAccountByEmail(ctx, email)
	if err != nil {
		return Session{}, ErrUnauthorized
	}
	if acc.Status != "active" {
		return Session{}, ErrUnauthorized
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return Session{}, ErrUnauthorized
	}
	return s.sessionFor(ctx, acc.ID)
}

// Principal loads an account with its profile and resolved roles.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	acc, err := s.store.FindAccount(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	profile, err := s.store.Profile(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	roles, err := s.store.RolesForUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{Account: *acc, Profile: *profile, Roles: roles}, nil
}

// AuthenticateToken validates an access token and returns its principal.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	principal, err := s.Principal(ctx, claims.Subject)
	if err != nil {
		if err == ErrNotFound {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, err
	}
	return principal, nil
}

// SetRole replaces a user's role; used by the admin user management surface.
func (s *Service) SetRole(ctx context.Context, userID, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != RoleStudent && role != RoleAdmin {
		return ErrInvalidInput
	}
	return s.store.SetRole(ctx, userID, role)
}

func (s *Service) sessionFor(ctx context.Context, userID string) (Session, error) {
	principal, err := s.Principal(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	token, expiresAt, err := s.tokens.Issue(userID, principal.Roles)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, Principal: principal}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
