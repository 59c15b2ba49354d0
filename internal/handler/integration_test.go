package handler_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

var (
	step1Form = url.Values{
		"first_name": {"Awa"},
		"last_name":  {"Diallo"},
		"birth_date": {"1998-04-02"},
		"gender":     {"Female"},
		"status":     {"Student"},
		"action":     {"next"},
	}
	step2Form = url.Values{
		"nationality": {"sn"},
		"origin_city": {"dakar"},
		"country":     {"fr"},
		"city":        {"lyon"},
		"action":      {"next"},
	}
	step3Form = url.Values{
		"email":            {"awa@example.com"},
		"password":         {"abc123"},
		"confirm_password": {"abc123"},
	}
)

func postForm(t *testing.T, c *http.Client, rawURL string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(rawURL, form)
	if err != nil {
		t.Fatalf("POST %s: %v", rawURL, err)
	}
	return resp
}

func expectRedirect(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303 to %s, got %d", want, resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != want {
		t.Fatalf("expected redirect to %s, got %s", want, loc)
	}
}

// walkToStep3 fills steps 1 and 2 of a fresh draft.
func walkToStep3(t *testing.T, c *http.Client, srvURL string) {
	t.Helper()
	resp, err := c.Get(srvURL + "/register")
	if err != nil {
		t.Fatalf("GET /register: %v", err)
	}
	resp.Body.Close()
	expectRedirect(t, postForm(t, c, srvURL+"/register", step1Form), "/register")
	expectRedirect(t, postForm(t, c, srvURL+"/register", step2Form), "/register")
}

func TestIntegration_RegisterDashboardLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	c := newClient(t)

	// 1. Open the wizard: a draft is created.
	resp, err := c.Get(env.srv.URL + "/register")
	if err != nil {
		t.Fatalf("GET /register: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register page: expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `id="first_name"`) {
		t.Fatal("expected step 1 fields")
	}
	if cookieValue(t, c, env.srv.URL+"/register", "reg_draft") == "" {
		t.Fatal("expected reg_draft cookie")
	}

	// 2. Steps 1 and 2.
	expectRedirect(t, postForm(t, c, env.srv.URL+"/register", step1Form), "/register")
	resp, _ = c.Get(env.srv.URL + "/register")
	if body := readBody(t, resp); !strings.Contains(body, `id="nationality"`) {
		t.Fatal("expected step 2 after a valid step 1")
	}
	expectRedirect(t, postForm(t, c, env.srv.URL+"/register", step2Form), "/register")
	resp, _ = c.Get(env.srv.URL + "/register")
	if body := readBody(t, resp); !strings.Contains(body, `id="confirm_password"`) {
		t.Fatal("expected step 3 after a valid step 2")
	}

	// 3. Submit: the account is created and the user signed in.
	expectRedirect(t, postForm(t, c, env.srv.URL+"/register/submit", step3Form), "/dashboard")
	if cookieValue(t, c, env.srv.URL, "access_token") == "" {
		t.Fatal("expected access_token cookie after registration")
	}
	if cookieValue(t, c, env.srv.URL+"/register", "reg_draft") != "" {
		t.Fatal("expected reg_draft cookie to be cleared after registration")
	}

	// 4. Dashboard greets the new user.
	resp, err = c.Get(env.srv.URL + "/dashboard")
	if err != nil {
		t.Fatalf("GET /dashboard: %v", err)
	}
	body = readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", resp.StatusCode)
	}
	for _, want := range []string{"Bonjour, Awa Diallo", "awa@example.com", "Utilisateur", "Actif"} {
		if !strings.Contains(body, want) {
			t.Fatalf("dashboard: expected %q", want)
		}
	}

	// 5. Profile refresh over SSE.
	resp = datastarGet(t, c, env.srv.URL+"/dashboard/profile")
	body = readBody(t, resp)
	if !strings.Contains(body, "profile-card") || !strings.Contains(body, "awa@example.com") {
		t.Fatalf("expected a profile card patch, got %q", body)
	}

	// 6. Logout.
	expectRedirect(t, postForm(t, c, env.srv.URL+"/logout", nil), "/")
	resp, err = c.Get(env.srv.URL + "/dashboard")
	if err != nil {
		t.Fatalf("GET /dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("dashboard after logout: expected 303, got %d", resp.StatusCode)
	}

	// 7. The new credentials work on the login form.
	expectRedirect(t, login(t, c, env.srv.URL, "awa@example.com", "abc123"), "/dashboard")
}

func TestIntegration_SessionSurvivesFrontendRestart(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerAccount(t, "jean@example.com", "password123")
	c := newClient(t)
	expectRedirect(t, login(t, c, env.srv.URL, "jean@example.com", "password123"), "/dashboard")
	token := cookieValue(t, c, env.srv.URL, "access_token")

	// A second front-end process on the same backend accepts the same token.
	restarted := newFrontend(t, env.db, env.backend.URL, nil)
	u, _ := url.Parse(restarted.URL)
	c.Jar.SetCookies(u, []*http.Cookie{{Name: "access_token", Value: token, Path: "/"}})

	resp, err := c.Get(restarted.URL + "/dashboard")
	if err != nil {
		t.Fatalf("GET /dashboard: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "Jean Dupont") {
		t.Fatalf("expected the restored session on the new process, got %d", resp.StatusCode)
	}
}
