// Command agunctl signs in to the AGUN backend from a terminal. The session
// token is kept in a local SQLite file, so whoami works across runs.
//
//	agunctl [-api URL] [-db PATH] [-timeout D] login [email]
//	agunctl whoami
//	agunctl logout
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/msomdec/agun-web/internal/apiclient"
	"github.com/msomdec/agun-web/internal/config"
	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/gateway"
	"github.com/msomdec/agun-web/internal/repository/sqlite"
	"github.com/msomdec/agun-web/internal/session"
)

const tokenName = "agunctl"

var (
	errInvalidCredentials = errors.New("email ou mot de passe incorrect")
	errUnreachable        = errors.New("impossible de joindre le serveur, veuillez réessayer")
	errNotSignedIn        = errors.New("non connecté")
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.LoadCLI()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	fs := flag.NewFlagSet("agunctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.APIURL, "api", cfg.APIURL, "authentication backend URL")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "local state database")
	fs.DurationVar(&cfg.APITimeout, "timeout", cfg.APITimeout, "backend request timeout")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: agunctl [flags] login [email] | whoami | logout")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := config.ValidateAPIURL(cfg.APIURL); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cmd, rest := fs.Arg(0), fs.Args()
	if len(rest) > 0 {
		rest = rest[1:]
	}
	if cmd != "login" && cmd != "whoami" && cmd != "logout" {
		fs.Usage()
		return 2
	}

	app, err := newApp(ctx, cfg, stdin, stdout)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer app.Close()

	switch cmd {
	case "login":
		err = app.Login(ctx, rest)
	case "whoami":
		err = app.Whoami(ctx)
	case "logout":
		err = app.Logout(ctx)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// App is one agunctl invocation: a session restored from the local token store.
type App struct {
	db    *sqlite.DB
	store *session.Store
	stdin io.Reader
	in    *bufio.Reader
	out   io.Writer
}

func newApp(ctx context.Context, cfg config.CLI, stdin io.Reader, stdout io.Writer) (*App, error) {
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	if err := db.Migrate(ctx, sqlite.CLISchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate local database: %w", err)
	}

	api, err := apiclient.New(cfg.APIURL,
		apiclient.WithTimeout(cfg.APITimeout),
		apiclient.WithTokenSource(session.TokenFromContext),
		apiclient.WithUnauthorizedHandler(session.InvalidateFromContext),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		db:    db,
		store: session.New(db.Tokens(tokenName), gateway.NewAuth(api)),
		stdin: stdin,
		in:    bufio.NewReader(stdin),
		out:   stdout,
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// Login asks for the missing credentials and opens a session.
func (a *App) Login(ctx context.Context, args []string) error {
	var email string
	if len(args) > 0 {
		email = args[0]
	} else {
		var err error
		if email, err = prompt(a.in, a.out, "Email : "); err != nil {
			return fmt.Errorf("read email: %w", err)
		}
	}
	password, err := promptPassword(a.stdin, a.in, a.out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	user, err := a.store.Login(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			return errInvalidCredentials
		case errors.Is(err, domain.ErrNetwork):
			return errUnreachable
		}
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(a.out, "Connecté en tant que %s.\n", user.DisplayName())
	return nil
}

// Whoami restores the stored session and prints the user.
func (a *App) Whoami(ctx context.Context) error {
	a.store.Restore(ctx)
	user := a.store.User()
	if user == nil {
		return errNotSignedIn
	}
	active := "actif"
	if !user.Active {
		active = "inactif"
	}
	role := user.Role
	if role == "" {
		role = "user"
	}
	fmt.Fprintf(a.out, "Nom : %s\nEmail : %s\nRôle : %s\nStatut : %s\n", user.DisplayName(), user.Email, role, active)
	return nil
}

// Logout forgets the stored token.
func (a *App) Logout(ctx context.Context) error {
	a.store.Logout(ctx)
	fmt.Fprintln(a.out, "Déconnecté.")
	return nil
}
