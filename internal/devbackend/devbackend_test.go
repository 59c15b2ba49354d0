package devbackend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/msomdec/agun-web/internal/devbackend"
	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/repository/sqlite"
)

const testJWTSecret = "test-secret-key-for-devbackend-tests"

func newTestAuthService(t *testing.T) *devbackend.AuthService {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background(), sqlite.DevBackendSchema); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Use cost 4 for fast tests.
	return devbackend.NewAuthService(db.Accounts(), testJWTSecret, 4)
}

func newTestServer(t *testing.T) (*httptest.Server, *devbackend.AuthService) {
	t.Helper()
	auth := newTestAuthService(t)
	mux := http.NewServeMux()
	devbackend.RegisterRoutes(mux, auth)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, auth
}

func testProfile(email string) domain.Profile {
	return domain.Profile{
		FirstName:   "Awa",
		LastName:    "Diallo",
		BirthDate:   time.Date(1998, 4, 2, 0, 0, 0, 0, time.UTC),
		Gender:      domain.GenderFemale,
		Status:      domain.StatusStudent,
		Nationality: "sn",
		OriginCity:  "dakar",
		Country:     "fr",
		City:        "lyon",
		Email:       email,
		Password:    "abc123",
	}
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	account, err := auth.Register(ctx, testProfile("awa@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if account.ID == 0 {
		t.Fatal("expected account ID to be set")
	}
	if account.PasswordHash == "" || account.PasswordHash == "abc123" {
		t.Fatal("expected a password hash")
	}
	if account.Profile.Password != "" {
		t.Fatal("plain password must not be kept on the account")
	}

	token, got, err := auth.Login(ctx, "awa@example.com", "abc123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != account.ID {
		t.Fatalf("expected account %d, got %d", account.ID, got.ID)
	}

	id, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != account.ID {
		t.Fatalf("expected sub %d, got %d", account.ID, id)
	}
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()

	if _, err := auth.Register(ctx, testProfile("dup@example.com")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := auth.Register(ctx, testProfile("DUP@example.com"))
	if !errors.Is(err, domain.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestAuthService_RegisterInvalid(t *testing.T) {
	auth := newTestAuthService(t)

	tests := []struct {
		name   string
		mutate func(p *domain.Profile)
	}{
		{"short password", func(p *domain.Profile) { p.Password = "abc" }},
		{"bad email", func(p *domain.Profile) { p.Email = "not-an-email" }},
		{"missing name", func(p *domain.Profile) { p.FirstName = "" }},
		{"unknown gender", func(p *domain.Profile) { p.Gender = "x" }},
		{"no birth date", func(p *domain.Profile) { p.BirthDate = time.Time{} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := testProfile("invalid@example.com")
			tc.mutate(&p)
			_, err := auth.Register(context.Background(), p)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestAuthService_LoginWrongPassword(t *testing.T) {
	auth := newTestAuthService(t)
	ctx := context.Background()
	if _, err := auth.Register(ctx, testProfile("awa@example.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, err := auth.Login(ctx, "awa@example.com", "wrong"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := auth.Login(ctx, "nobody@example.com", "abc123"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown email, got %v", err)
	}
}

func TestAuthService_ValidateTokenRejects(t *testing.T) {
	auth := newTestAuthService(t)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	expiredToken, err := expired.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	foreignToken, err := foreign.SignedString([]byte("another-secret-another-secret-xx"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, token := range map[string]string{"expired": expiredToken, "foreign": foreignToken, "garbage": "abc"} {
		if _, err := auth.ValidateToken(token); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", strings.NewReader(string(buf)))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

var registerBody = map[string]string{
	"first_name":  "Awa",
	"last_name":   "Diallo",
	"full_name":   "Awa Diallo",
	"birth_date":  "1998-04-02",
	"gender":      "Female",
	"status":      "Student",
	"nationality": "sn",
	"origin_city": "dakar",
	"country":     "fr",
	"city":        "lyon",
	"email":       "awa@example.com",
	"password":    "abc123",
}

func TestAPI_RegisterLoginMe(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/auth/register", registerBody)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		ID       int64  `json:"id"`
		FullName string `json:"full_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	if created.FullName != "Awa Diallo" {
		t.Fatalf("expected full_name Awa Diallo, got %q", created.FullName)
	}

	resp = postJSON(t, srv.URL+"/api/v1/auth/login", map[string]string{"email": "awa@example.com", "password": "abc123"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var login struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		UserID      int64  `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.AccessToken == "" || login.TokenType != "bearer" || login.UserID != created.ID {
		t.Fatalf("unexpected login response: %+v", login)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /users/me: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", resp.StatusCode)
	}
	var me devbackend.UserDTO
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Email != "awa@example.com" || me.FullName != "Awa Diallo" || me.Role != "user" || !me.IsActive {
		t.Fatalf("unexpected user: %+v", me)
	}
}

func TestAPI_LoginAcceptsForm(t *testing.T) {
	srv, auth := newTestServer(t)
	account, err := auth.Register(context.Background(), testProfile("awa@example.com"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp, err := http.PostForm(srv.URL+"/api/v1/auth/login", url.Values{
		"username": {"awa@example.com"},
		"password": {"abc123"},
	})
	if err != nil {
		t.Fatalf("POST login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var login map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := strconv.FormatFloat(login["user_id"].(float64), 'f', 0, 64); got != strconv.FormatInt(account.ID, 10) {
		t.Fatalf("expected user_id %d, got %s", account.ID, got)
	}
}

func TestAPI_Errors(t *testing.T) {
	srv, auth := newTestServer(t)
	if _, err := auth.Register(context.Background(), testProfile("awa@example.com")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	resp := postJSON(t, srv.URL+"/api/v1/auth/register", registerBody)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", resp.StatusCode)
	}

	bad := map[string]string{}
	for k, v := range registerBody {
		bad[k] = v
	}
	bad["birth_date"] = "02/04/1998"
	bad["email"] = "other@example.com"
	resp = postJSON(t, srv.URL+"/api/v1/auth/register", bad)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad birth date: expected 422, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/v1/auth/login", map[string]string{"email": "awa@example.com", "password": "wrong"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", resp.StatusCode)
	}

	for _, header := range []string{"", "Bearer", "Bearer garbage", "Basic abc"} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/users/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /users/me: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("me with %q: expected 401, got %d", header, resp.StatusCode)
		}
	}
}

func TestAPI_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
