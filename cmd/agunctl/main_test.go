package main

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/msomdec/agun-web/internal/devbackend"
	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/repository/sqlite"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "backend.db"))
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background(), sqlite.DevBackendSchema); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	auth := devbackend.NewAuthService(db.Accounts(), "agunctl-test-secret-agunctl-test-secret", 4)
	_, err = auth.Register(context.Background(), domain.Profile{
		FirstName: "Awa",
		LastName:  "Diallo",
		BirthDate: time.Date(1998, 4, 2, 0, 0, 0, 0, time.UTC),
		Gender:    domain.GenderFemale,
		Status:    domain.StatusStudent,
		Email:     "awa@example.com",
		Password:  "abc123",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	mux := http.NewServeMux()
	devbackend.RegisterRoutes(mux, auth)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func (r result) expectCode(t *testing.T, want int) {
	t.Helper()
	if r.code != want {
		t.Fatalf("expected exit code %d, got %d (stderr: %s)", want, r.code, r.stderr)
	}
}

func expectContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Fatalf("expected %q in %q", want, got)
	}
}

func TestLoginWhoamiLogout(t *testing.T) {
	srv := newBackend(t)
	dbPath := filepath.Join(t.TempDir(), "agunctl.db")
	flags := []string{"-api", srv.URL, "-db", dbPath}

	res := runCLI(t, "abc123\n", append(flags, "login", "awa@example.com")...)
	res.expectCode(t, 0)
	expectContains(t, res.stdout, "Connecté en tant que Awa Diallo.")

	// A new process restores the session from the stored token.
	res = runCLI(t, "", append(flags, "whoami")...)
	res.expectCode(t, 0)
	expectContains(t, res.stdout, "Nom : Awa Diallo")
	expectContains(t, res.stdout, "Email : awa@example.com")
	expectContains(t, res.stdout, "Statut : actif")

	res = runCLI(t, "", append(flags, "logout")...)
	res.expectCode(t, 0)

	res = runCLI(t, "", append(flags, "whoami")...)
	res.expectCode(t, 1)
	expectContains(t, res.stderr, errNotSignedIn.Error())
}

func TestLogin_PromptsForEmail(t *testing.T) {
	srv := newBackend(t)
	res := runCLI(t, "awa@example.com\nabc123\n", "-api", srv.URL, "-db", filepath.Join(t.TempDir(), "a.db"), "login")
	res.expectCode(t, 0)
	expectContains(t, res.stdout, "Email : ")
	expectContains(t, res.stdout, "Mot de passe : ")
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := newBackend(t)
	res := runCLI(t, "wrong\n", "-api", srv.URL, "-db", filepath.Join(t.TempDir(), "a.db"), "login", "awa@example.com")
	res.expectCode(t, 1)
	expectContains(t, res.stderr, errInvalidCredentials.Error())
}

func TestLogin_BackendDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := runCLI(t, "abc123\n", "-api", url, "-db", filepath.Join(t.TempDir(), "a.db"), "login", "awa@example.com")
	res.expectCode(t, 1)
	expectContains(t, res.stderr, errUnreachable.Error())
}

func TestRun_Usage(t *testing.T) {
	runCLI(t, "").expectCode(t, 2)
	runCLI(t, "", "frobnicate").expectCode(t, 2)
	runCLI(t, "", "-api", "localhost:8000", "whoami").expectCode(t, 2)
}

func TestPromptPassword(t *testing.T) {
	origRead, origIsTerm := readPassword, isTerminal
	t.Cleanup(func() { readPassword, isTerminal = origRead, origIsTerm })

	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("s3cret"), nil }

	var out bytes.Buffer
	pw, err := promptPassword(os.Stdin, bufio.NewReader(strings.NewReader("")), &out)
	if err != nil {
		t.Fatalf("promptPassword: %v", err)
	}
	if pw != "s3cret" {
		t.Fatalf("expected the terminal password, got %q", pw)
	}

	// Readers that are not files are read line by line.
	pw, err = promptPassword(strings.NewReader(""), bufio.NewReader(strings.NewReader("piped\n")), &out)
	if err != nil {
		t.Fatalf("promptPassword: %v", err)
	}
	if pw != "piped" {
		t.Fatalf("expected the piped password, got %q", pw)
	}
}
