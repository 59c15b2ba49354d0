package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenStore implements domain.TokenStore as one named row of the tokens table.
type TokenStore struct {
	db   *sql.DB
	name string
}

// NewTokenStore returns a store for the token saved under name.
func NewTokenStore(db *DB, name string) *TokenStore {
	return &TokenStore{db: db.SqlDB, name: name}
}

func (s *TokenStore) Load(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM tokens WHERE name = ?`, s.name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token %s: %w", s.name, err)
	}
	return value, nil
}

func (s *TokenStore) Save(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, s.name, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save token %s: %w", s.name, err)
	}
	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE name = ?`, s.name); err != nil {
		return fmt.Errorf("clear token %s: %w", s.name, err)
	}
	return nil
}
