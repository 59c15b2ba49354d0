package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/msomdec/agun-web/internal/repository/sqlite"
)

// revokingBackend accepts any login and answers /users/me with the user
// while its budget lasts, then with 401 as if the token had been revoked.
type revokingBackend struct {
	*httptest.Server
	meBudget atomic.Int32
}

func newRevokingBackend(t *testing.T) *revokingBackend {
	t.Helper()
	b := &revokingBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","user_id":7}`))
	})
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" || b.meBudget.Add(-1) < 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Could not validate credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7,"email":"awa@example.com","full_name":"Awa Diallo","role":"user","is_active":true}`))
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func TestHandleDashboard_ShowsProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerAccount(t, "jean@example.com", "password123")
	c := newClient(t)
	expectRedirect(t, login(t, c, env.srv.URL, "jean@example.com", "password123"), "/dashboard")

	resp, err := c.Get(env.srv.URL + "/dashboard")
	if err != nil {
		t.Fatalf("GET /dashboard: %v", err)
	}
	body := readBody(t, resp)
	for _, want := range []string{"Bonjour, Jean Dupont", `id="profile-card"`, `id="profile-alert"`, "/dashboard/profile"} {
		if !strings.Contains(body, want) {
			t.Fatalf("dashboard: expected %q", want)
		}
	}
}

func TestHandleRefreshProfile_RevokedMidSession(t *testing.T) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background(), sqlite.WebSchema); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backend := newRevokingBackend(t)
	srv := newFrontend(t, db, backend.URL, nil)
	c := newClient(t)

	// Login reads the user once.
	backend.meBudget.Store(1)
	expectRedirect(t, login(t, c, srv.URL, "awa@example.com", "abc123"), "/dashboard")
	if cookieValue(t, c, srv.URL, "access_token") != "tok-1" {
		t.Fatal("expected the access_token cookie after login")
	}

	// The refresh request restores the session, then the profile read is
	// rejected: the backend revoked the token in between.
	backend.meBudget.Store(1)
	resp := datastarGet(t, c, srv.URL+"/dashboard/profile")
	body := readBody(t, resp)

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}
	if !strings.Contains(body, "/login") {
		t.Fatalf("expected a redirect to /login in the stream, got %q", body)
	}
	if strings.Contains(body, "profile-card") {
		t.Fatal("a rejected refresh must not patch the profile card")
	}

	var cleared bool
	for _, sc := range resp.Header.Values("Set-Cookie") {
		if strings.HasPrefix(sc, "access_token=;") && strings.Contains(sc, "Max-Age=0") {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected the access_token cookie to be cleared, got %q", resp.Header.Values("Set-Cookie"))
	}
	if cookieValue(t, c, srv.URL, "access_token") != "" {
		t.Fatal("expected the browser to drop the access_token cookie")
	}

	resp, err = c.Get(srv.URL + "/dashboard")
	if err != nil {
		t.Fatalf("GET /dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("dashboard after revocation: expected 303, got %d", resp.StatusCode)
	}
}
