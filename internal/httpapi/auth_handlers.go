package httpapi

import (
	"net/http"

	"github.com/Chitrarthrai/NeoCompliance/internal/audit"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse carries the identity alongside the token pair so that
// non-browser clients need not read cookies.
type sessionResponse struct {
	User auth.Profile `json:"user"`
	auth.TokenPair
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bind(w, r, &req) {
		return
	}
	sess, err := a.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"email": req.Email})
		writeDomainError(w, r, err)
		return
	}
	a.setSessionCookies(w, sess.Tokens)
	ctx := auth.ContextWithPrincipal(r.Context(), sess.Identity.Principal())
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"variant": string(sess.Identity.Variant)})
	writeSuccess(w, http.StatusOK, "Login Successful", sessionResponse{
		User:      sess.Identity.Profile(),
		TokenPair: sess.Tokens,
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	err := a.deps.Auth.Logout(r.Context(), p, refreshToken(r))
	a.clearSessionCookies(w)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeSuccess(w, http.StatusOK, "Logout Successfully", nil)
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	token := cookieValue(r, refreshCookie)
	sess, d, err := a.deps.Auth.Refresh(r.Context(), token)
	obs.ObserveAuthDecision(string(d.State), string(d.Reason))
	if err != nil {
		a.clearSessionCookies(w)
		writeDomainError(w, r, err)
		return
	}
	a.setSessionCookies(w, sess.Tokens)
	obs.ObserveRotation("refresh")
	ctx := auth.ContextWithPrincipal(r.Context(), d.Principal)
	_ = audit.LogEvent(ctx, "auth.token.rotated", map[string]any{"trigger": "refresh"})
	writeSuccess(w, http.StatusOK, "Secure access has been granted", sessionResponse{
		User:      sess.Identity.Profile(),
		TokenPair: sess.Tokens,
	})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	identity, err := a.deps.Auth.Me(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "User fetched successfully", map[string]any{"user": identity.Profile()})
}
