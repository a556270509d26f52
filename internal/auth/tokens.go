package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the JWT body for both token kinds. Type keeps them apart.
type Claims struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Role     Role    `json:"role"`
	Variant  Variant `json:"variant"`
	Type     string  `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService issues, verifies and tracks access/refresh token pairs.
type TokenService struct {
	store         RefreshTokenStore
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time

	mu         sync.Mutex
	lastIssued int64
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

func NewTokenService(accessSecret, refreshSecret string, store RefreshTokenStore, opts ...TokenOption) (*TokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if store == nil {
		return nil, errors.New("auth: refresh token store is required")
	}
	svc := &TokenService{
		store:         store,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.accessTTL >= svc.refreshTTL {
		return nil, errors.New("auth: access ttl must be shorter than refresh ttl")
	}
	return svc, nil
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueTokenPair signs a new pair for p. Output depends only on p, the clock,
// the secrets and the issuance id, which is the nanosecond instant of issue
// bumped past the previous one so no two pairs are ever identical.
func (s *TokenService) IssueTokenPair(p Principal) (TokenPair, error) {
	if strings.TrimSpace(p.ID) == "" {
		return TokenPair{}, errors.New("auth: principal id is required")
	}
	now := s.now().UTC()
	jti := strconv.FormatInt(s.issueInstant(now), 36)
	access, accessExp, err := s.sign(p, tokenTypeAccess, s.accessSecret, jti, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.sign(p, tokenTypeRefresh, s.refreshSecret, jti, now, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// issueInstant returns now in nanoseconds, strictly increasing across calls.
func (s *TokenService) issueInstant(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := now.UnixNano()
	if n <= s.lastIssued {
		n = s.lastIssued + 1
	}
	s.lastIssued = n
	return n
}

func (s *TokenService) sign(p Principal, typ string, secret []byte, jti string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		Email:    p.Email,
		Username: p.Username,
		Role:     p.Role,
		Variant:  p.Variant,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   p.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign %s token: %w", typ, err)
	}
	return signed, exp.Truncate(time.Second), nil
}

// VerifyAccessToken returns ErrTokenExpired or ErrTokenInvalid on failure.
func (s *TokenService) VerifyAccessToken(token string) (Principal, error) {
	return s.verify(token, s.accessSecret, tokenTypeAccess)
}

// VerifyRefreshToken checks signature and expiry only; see FindRefreshToken for liveness.
func (s *TokenService) VerifyRefreshToken(token string) (Principal, error) {
	return s.verify(token, s.refreshSecret, tokenTypeRefresh)
}

func (s *TokenService) verify(raw string, secret []byte, typ string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrTokenInvalid
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrTokenInvalid
	}
	if claims.Type != typ || claims.Subject == "" {
		return Principal{}, ErrTokenInvalid
	}
	return Principal{
		ID:       claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		Role:     claims.Role,
		Variant:  claims.Variant,
	}, nil
}

// PersistRefreshToken adds token to the subject's live set.
func (s *TokenService) PersistRefreshToken(ctx context.Context, subjectID, token string) error {
	if err := s.store.AddRefreshToken(ctx, subjectID, digestToken(token), s.now().Add(s.refreshTTL)); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken replaces oldToken with newToken. It fails with
// ErrRefreshTokenNotFound when oldToken is no longer live.
func (s *TokenService) RotateRefreshToken(ctx context.Context, subjectID, oldToken, newToken string) error {
	ok, err := s.store.ReplaceRefreshToken(ctx, subjectID, digestToken(oldToken), digestToken(newToken), s.now().Add(s.refreshTTL))
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if !ok {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// RevokeRefreshToken reports whether token was live and has been removed.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, subjectID, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	removed, err := s.store.RemoveRefreshToken(ctx, subjectID, digestToken(token))
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return removed, nil
}

func (s *TokenService) FindRefreshToken(ctx context.Context, subjectID, token string) (bool, error) {
	ok, err := s.store.HasRefreshToken(ctx, subjectID, digestToken(token))
	if err != nil {
		return false, fmt.Errorf("find refresh token: %w", err)
	}
	return ok, nil
}

func digestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
