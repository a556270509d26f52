package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
)

const (
	minPasswordLength = 8
	minNameLength     = 4
	maxNameLength     = 25

	timingGuardSecret = "neocompliance-timing-guard"
)

// Service implements login, logout, explicit refresh and registration.
type Service struct {
	dir     *Directory
	tokens  *TokenService
	gate    *Gate
	hasher  PasswordHasher
	members Memberships
	now     func() time.Time

	guardOnce sync.Once
	guardHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithHasher overrides the password hasher (bcrypt by default).
func WithHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithMemberships wires the store hierarchy updated by registration.
func WithMemberships(m Memberships) ServiceOption {
	return func(s *Service) { s.members = m }
}

// WithTimeSource overrides the clock used for record timestamps.
func WithTimeSource(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(dir *Directory, tokens *TokenService, opts ...ServiceOption) *Service {
	s := &Service{
		dir:    dir,
		tokens: tokens,
		gate:   NewGate(tokens, dir),
		hasher: Bcrypt{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Gate() *Gate           { return s.gate }
func (s *Service) Directory() *Directory { return s.dir }
func (s *Service) Tokens() *TokenService { return s.tokens }

// Session is an authenticated identity together with its fresh token pair.
type Session struct {
	Identity Identity
	Tokens   TokenPair
}

// Login checks credentials and opens a session. Unknown emails and wrong
// passwords fail identically with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, apperr.BadRequest("Email and password are required.")
	}
	if !validEmail(email) {
		return Session{}, apperr.BadRequest("Invalid Email Address")
	}
	identity, err := s.dir.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.hasher.Verify(s.timingGuard(), password)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("login: %w", err)
	}
	if !s.hasher.Verify(identity.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	if !identity.Active() {
		return Session{}, ErrAccountDisabled
	}
	pair, err := s.tokens.IssueTokenPair(identity.Principal())
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	if err := s.tokens.PersistRefreshToken(ctx, identity.ID, pair.RefreshToken); err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	return Session{Identity: identity, Tokens: pair}, nil
}

// Logout revokes refreshToken for p. Nothing to revoke is reported as
// ErrRefreshTokenNotFound so callers can tell a stale session apart.
func (s *Service) Logout(ctx context.Context, p Principal, refreshToken string) error {
	if p.ID == "" {
		return ErrMissingCredential
	}
	removed, err := s.tokens.RevokeRefreshToken(ctx, p.ID, refreshToken)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if !removed {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// Refresh exchanges a live refresh token for a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, Decision, error) {
	d := s.gate.Refresh(ctx, refreshToken)
	if !d.Authorized() {
		return Session{}, d, d.Err
	}
	return Session{Identity: *d.Identity, Tokens: *d.Tokens}, d, nil
}

// Me resolves the full record of the authenticated principal.
func (s *Service) Me(ctx context.Context, p Principal) (Identity, error) {
	return s.dir.FindByID(ctx, p.ID)
}

// timingGuard returns a hash to compare against when the email is unknown,
// so both failure paths pay for one hash comparison.
func (s *Service) timingGuard() string {
	s.guardOnce.Do(func() {
		s.guardHash, _ = s.hasher.Hash(timingGuardSecret)
	})
	return s.guardHash
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}
