package domain

import "context"

// TokenStore persists the bearer token so a session can be restored after a restart.
// Load returns an empty string when no token is stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}
