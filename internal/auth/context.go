package auth

import "context"

type tokenDetailsContextKey struct{}

// ContextWithToken attaches the introspected token to the context.
func ContextWithToken(ctx context.Context, td TokenDetails) context.Context {
	return context.WithValue(ctx, tokenDetailsContextKey{}, &td)
}

// TokenFromContext returns the token attached by ContextWithToken.
func TokenFromContext(ctx context.Context) (TokenDetails, bool) {
	if ctx == nil {
		return TokenDetails{}, false
	}
	v, ok := ctx.Value(tokenDetailsContextKey{}).(*TokenDetails)
	if !ok || v == nil {
		return TokenDetails{}, false
	}
	return *v, true
}

// ClientIDFromContext is a shortcut used by audit logging.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	td, ok := TokenFromContext(ctx)
	if !ok || td.ClientID == "" {
		return "", false
	}
	return td.ClientID, true
}
