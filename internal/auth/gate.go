package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
)

// State is a step of a request's authentication.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAccessValid     State = "access_valid"
	StateAccessExpired   State = "access_expired"
	StateRefreshValid    State = "refresh_valid"
	StateRotated         State = "rotated"
	StateAuthorized      State = "authorized"
	StateRejected        State = "rejected"
)

// Reason explains a rejection.
type Reason string

const (
	ReasonMissingCredential   Reason = "missing_credential"
	ReasonInvalidAccessToken  Reason = "invalid_access_token"
	ReasonMissingRefreshToken Reason = "missing_refresh_token"
	ReasonInvalidRefreshToken Reason = "invalid_refresh_token"
	ReasonRefreshNotFound     Reason = "refresh_token_not_found"
	ReasonUnknownIdentity     Reason = "unknown_identity"
	ReasonAccountDisabled     Reason = "account_disabled"
	ReasonInternal            Reason = "internal_error"
)

// Credentials are the raw tokens a request presented.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Decision is the outcome of running the gate for one request.
// Tokens is set whenever a rotation happened and must be handed back to the client.
type Decision struct {
	State     State
	Principal Principal
	Identity  *Identity
	Tokens    *TokenPair
	Reason    Reason
	Err       error
	Trail     []State
}

func (d Decision) Authorized() bool { return d.State == StateAuthorized }

// Rotated reports whether the decision issued a new token pair.
func (d Decision) Rotated() bool { return d.Tokens != nil }

// Gate authenticates requests, transparently rotating expired access tokens
// when a live refresh token accompanies them.
type Gate struct {
	tokens *TokenService
	dir    *Directory
}

func NewGate(tokens *TokenService, dir *Directory) *Gate {
	return &Gate{tokens: tokens, dir: dir}
}

// Authenticate runs the full state machine for one request.
func (g *Gate) Authenticate(ctx context.Context, creds Credentials) Decision {
	d := Decision{Trail: []State{StateUnauthenticated}}
	if creds.AccessToken == "" {
		return d.reject(ReasonMissingCredential, ErrMissingCredential)
	}
	principal, err := g.tokens.VerifyAccessToken(creds.AccessToken)
	switch {
	case err == nil:
		d.Trail = append(d.Trail, StateAccessValid)
		d.Principal = principal
		return d.authorize()
	case errors.Is(err, ErrTokenExpired):
		d.Trail = append(d.Trail, StateAccessExpired)
		return g.refresh(ctx, d, creds.RefreshToken)
	default:
		return d.reject(ReasonInvalidAccessToken, err)
	}
}

// Refresh runs only the refresh path, for clients that hold no access token.
func (g *Gate) Refresh(ctx context.Context, refreshToken string) Decision {
	return g.refresh(ctx, Decision{Trail: []State{StateUnauthenticated}}, refreshToken)
}

func (g *Gate) refresh(ctx context.Context, d Decision, refreshToken string) Decision {
	if refreshToken == "" {
		return d.reject(ReasonMissingRefreshToken, ErrMissingCredential)
	}
	claims, err := g.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return d.reject(ReasonInvalidRefreshToken, err)
	}
	live, err := g.tokens.FindRefreshToken(ctx, claims.ID, refreshToken)
	if err != nil {
		return d.reject(ReasonInternal, err)
	}
	if !live {
		return d.reject(ReasonRefreshNotFound, ErrRefreshTokenNotFound)
	}
	d.Trail = append(d.Trail, StateRefreshValid)

	pair, err := g.tokens.IssueTokenPair(claims)
	if err != nil {
		return d.reject(ReasonInternal, err)
	}
	if err := g.tokens.RotateRefreshToken(ctx, claims.ID, refreshToken, pair.RefreshToken); err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return d.reject(ReasonRefreshNotFound, err)
		}
		return d.reject(ReasonInternal, err)
	}
	d.Trail = append(d.Trail, StateRotated)

	identity, err := g.dir.FindByID(ctx, claims.ID)
	if err != nil {
		g.discard(ctx, claims.ID, pair.RefreshToken)
		if errors.Is(err, apperr.ErrNotFound) {
			return d.reject(ReasonUnknownIdentity, ErrRefreshTokenNotFound)
		}
		return d.reject(ReasonInternal, err)
	}
	if !identity.Active() {
		g.discard(ctx, claims.ID, pair.RefreshToken)
		return d.reject(ReasonAccountDisabled, ErrAccountDisabled)
	}

	d.Principal = identity.Principal()
	d.Identity = &identity
	d.Tokens = &pair
	return d.authorize()
}

// discard revokes a freshly rotated token that will never reach the client.
func (g *Gate) discard(ctx context.Context, subjectID, token string) {
	_, _ = g.tokens.RevokeRefreshToken(ctx, subjectID, token)
}

func (d Decision) authorize() Decision {
	d.State = StateAuthorized
	d.Trail = append(d.Trail, StateAuthorized)
	return d
}

func (d Decision) reject(reason Reason, err error) Decision {
	d.State = StateRejected
	d.Reason = reason
	if reason == ReasonInternal {
		err = fmt.Errorf("auth gate: %w", err)
	}
	d.Err = err
	d.Principal = Principal{}
	d.Identity = nil
	d.Tokens = nil
	d.Trail = append(d.Trail, StateRejected)
	return d
}
