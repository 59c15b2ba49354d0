package migrations

import (
	"embed"
	"io/fs"
)

//go:embed web/*.sql cli/*.sql devbackend/*.sql
var files embed.FS

// Each binary owns its own schema set. The filenames are unique across sets
// so that a shared database (tests wire the dev backend and the front-end
// onto one file) can record all of them in schema_migrations.
var (
	// Web is the front-end's schema: registration drafts.
	Web = mustSub("web")
	// CLI is agunctl's schema: the stored session tokens.
	CLI = mustSub("cli")
	// DevBackend is the development auth backend's schema: accounts.
	DevBackend = mustSub("devbackend")
)

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
