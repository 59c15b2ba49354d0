package handler_test

import (
	"net/http"
	"strings"
	"testing"
)

func TestHandleHome(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Rejoindre AGUN gratuitement") {
		t.Fatal("expected the sign-up call to action for anonymous visitors")
	}
	if !strings.Contains(body, "France") {
		t.Fatal("expected host countries to be listed")
	}
}

func TestHandleHome_SignedIn(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerAccount(t, "jean@example.com", "password123")
	c := newClient(t)
	login(t, c, env.srv.URL, "jean@example.com", "password123").Body.Close()

	resp, err := c.Get(env.srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, "Bon retour, Jean Dupont.") {
		t.Fatal("expected the display name on the home page")
	}
}

func TestHandleHomeNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Page introuvable") {
		t.Fatal("expected the not found page")
	}
}
