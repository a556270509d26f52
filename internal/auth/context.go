package auth

import "context"

type (
	principalContextKey struct{}
	tokensContextKey    struct{}
)

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ContextWithTokens records a pair issued while serving the request, so
// handlers act on the live refresh token rather than the one the client sent.
func ContextWithTokens(ctx context.Context, pair TokenPair) context.Context {
	return context.WithValue(ctx, tokensContextKey{}, pair)
}

func TokensFromContext(ctx context.Context) (TokenPair, bool) {
	if ctx == nil {
		return TokenPair{}, false
	}
	pair, ok := ctx.Value(tokensContextKey{}).(TokenPair)
	return pair, ok
}
