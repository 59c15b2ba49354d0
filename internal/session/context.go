package session

import "context"

type storeKey struct{}

// WithStore scopes s to ctx.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the store scoped to ctx, or nil.
func FromContext(ctx context.Context) *Store {
	s, _ := ctx.Value(storeKey{}).(*Store)
	return s
}

// TokenFromContext is an apiclient.TokenSource reading the scoped store.
func TokenFromContext(ctx context.Context) string {
	if s := FromContext(ctx); s != nil {
		return s.Token()
	}
	return ""
}

// InvalidateFromContext is an apiclient.UnauthorizedHandler clearing the scoped store.
func InvalidateFromContext(ctx context.Context) {
	if s := FromContext(ctx); s != nil {
		s.Invalidate(ctx)
	}
}
