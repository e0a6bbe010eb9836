package shared

import "context"

type sessionTokenKey struct{}

// ContextWithToken stores the session token in context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

// TokenFromContext extracts the session token from context.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(sessionTokenKey{}).(string)
	return token
}
