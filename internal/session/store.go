// Package session holds the bearer token and the signed-in user for one
// browser request or one CLI process.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/msomdec/agun-web/internal/domain"
)

type State int

const (
	Loading State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Gateway is the subset of the auth gateway the store needs.
type Gateway interface {
	Login(ctx context.Context, email, password string) (*domain.Credentials, error)
	CurrentUser(ctx context.Context) (*domain.User, error)
}

// Store is the session. Its mutex is never held across a network call; a
// generation counter discards results that settle after an invalidation.
type Store struct {
	tokens domain.TokenStore
	gw     Gateway

	mu    sync.Mutex
	state State
	token string
	user  *domain.User
	gen   uint64
}

// New returns a store in the Loading state. Call Restore to leave it.
func New(tokens domain.TokenStore, gw Gateway) *Store {
	return &Store{tokens: tokens, gw: gw}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the in-memory bearer token, or "".
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns a copy of the signed-in user, or nil.
func (s *Store) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Restore re-establishes the session from the persisted token. Without a
// token it makes no network call. Any failure leaves the session anonymous
// and removes the persisted token.
func (s *Store) Restore(ctx context.Context) {
	ctx = WithStore(ctx, s)

	token, err := s.tokens.Load(ctx)
	if err != nil {
		slog.Warn("load session token", "error", err)
	}
	if err != nil || token == "" {
		s.mu.Lock()
		s.token, s.user, s.state = "", nil, Anonymous
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.token = token
	s.mu.Unlock()

	user, err := s.gw.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthorized) {
			slog.Warn("restore session", "error", err)
		}
		s.reset(ctx)
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.user, s.state = user, Authenticated
	s.mu.Unlock()
}

// Login exchanges credentials for a token, persists it and loads the user.
// Rejected credentials leave the previous session untouched.
func (s *Store) Login(ctx context.Context, email, password string) (*domain.User, error) {
	ctx = WithStore(ctx, s)

	creds, err := s.gw.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(ctx, creds.Token); err != nil {
		return nil, fmt.Errorf("persist session token: %w", err)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.token, s.user = creds.Token, nil
	s.mu.Unlock()

	user, err := s.gw.CurrentUser(ctx)
	if err != nil {
		s.reset(ctx)
		return nil, fmt.Errorf("fetch current user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil, domain.ErrUnauthorized
	}
	s.user, s.state = user, Authenticated
	u := *user
	return &u, nil
}

// Logout forgets the session. It cannot fail.
func (s *Store) Logout(ctx context.Context) {
	s.reset(ctx)
}

// Invalidate is the 401 path: it clears the session and discards any
// request still settling against the old token.
func (s *Store) Invalidate(ctx context.Context) {
	slog.Info("session invalidated by backend")
	s.reset(ctx)
}

func (s *Store) reset(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	s.token, s.user, s.state = "", nil, Anonymous
	s.mu.Unlock()

	if err := s.tokens.Clear(ctx); err != nil {
		slog.Error("clear session token", "error", err)
	}
}
