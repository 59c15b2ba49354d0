package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/msomdec/agun-web/internal/repository/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle shared by the repositories.
type DB struct {
	SqlDB *sql.DB
}

// New opens a SQLite database at the given path and configures it for use.
// It enables WAL mode and foreign keys.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// A single writer keeps the claim UPDATE and its follow-up reads serialised.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{SqlDB: db}, nil
}

// Schema sets, one per binary. Pass the ones a process owns to Migrate.
var (
	WebSchema        = migrations.Web
	CLISchema        = migrations.CLI
	DevBackendSchema = migrations.DevBackend
)

// Migrate applies the pending migrations of each schema set in turn.
func (d *DB) Migrate(ctx context.Context, schemas ...fs.FS) error {
	for _, schema := range schemas {
		if err := migrations.Run(ctx, d.SqlDB, schema); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.SqlDB.Close()
}

// isUniqueConstraintError checks if the error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "unique constraint")
}

// Drafts returns the registration draft repository.
func (d *DB) Drafts() *DraftRepository { return NewDraftRepository(d) }

// Accounts returns the account repository.
func (d *DB) Accounts() *AccountRepository { return NewAccountRepository(d) }

// Tokens returns the token store for the named token.
func (d *DB) Tokens(name string) *TokenStore { return NewTokenStore(d, name) }
