package domain

import (
	"context"
	"io/fs"
)

// Database defines lifecycle operations for a process's local store.
// Migrate applies only the schema sets the caller passes, so each binary
// creates the tables it uses and nothing else.
type Database interface {
	Migrate(ctx context.Context, schemas ...fs.FS) error
	Close() error
}
