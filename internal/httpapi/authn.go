package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/Chitrarthrai/NeoCompliance/internal/audit"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// withAuth runs the auth gate. A rotation performed by the gate is handed
// back to the client as fresh cookies before the handler runs.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := auth.Credentials{
			AccessToken:  accessToken(r),
			RefreshToken: cookieValue(r, refreshCookie),
		}
		d := a.deps.Auth.Gate().Authenticate(r.Context(), creds)
		obs.ObserveAuthDecision(string(d.State), string(d.Reason))
		if !d.Authorized() {
			if d.Reason == auth.ReasonRefreshNotFound || d.Reason == auth.ReasonAccountDisabled {
				a.clearSessionCookies(w)
			}
			writeDomainError(w, r, d.Err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), d.Principal)
		if d.Rotated() {
			ctx = auth.ContextWithTokens(ctx, *d.Tokens)
			a.setSessionCookies(w, *d.Tokens)
			obs.ObserveRotation("gate")
			_ = audit.LogEvent(ctx, "auth.token.rotated", map[string]any{"trigger": "gate"})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRoles is the per-route role gate; it runs after withAuth.
func requireRoles(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeDomainError(w, r, auth.ErrMissingCredential)
				return
			}
			if err := auth.Authorize(p, roles...); err != nil {
				writeDomainError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessToken prefers the bearer header and falls back to the cookie.
func accessToken(r *http.Request) string {
	if token := extractBearerToken(r.Header.Get(authHeader)); token != "" {
		return token
	}
	return cookieValue(r, accessCookie)
}

func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

// refreshToken is the session's live refresh token: the one the gate just
// rotated in, or else the cookie the client sent.
func refreshToken(r *http.Request) string {
	if pair, ok := auth.TokensFromContext(r.Context()); ok {
		return pair.RefreshToken
	}
	return cookieValue(r, refreshCookie)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (a *API) setSessionCookies(w http.ResponseWriter, pair auth.TokenPair) {
	tokens := a.deps.Auth.Tokens()
	http.SetCookie(w, a.sessionCookie(accessCookie, pair.AccessToken, tokens.AccessTTL(), pair.AccessExpiresAt))
	http.SetCookie(w, a.sessionCookie(refreshCookie, pair.RefreshToken, tokens.RefreshTTL(), pair.RefreshExpiresAt))
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		c := a.sessionCookie(name, "", 0, time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (a *API) sessionCookie(name, value string, ttl time.Duration, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
