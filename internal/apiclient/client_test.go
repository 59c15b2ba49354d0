package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/msomdec/agun-web/internal/apiclient"
	"github.com/msomdec/agun-web/internal/domain"
)

func staticToken(token string) apiclient.TokenSource {
	return func(context.Context) string { return token }
}

func newClient(t *testing.T, baseURL string, opts ...apiclient.Option) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(baseURL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func statusError(t *testing.T, err error) *apiclient.StatusError {
	t.Helper()
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected a *StatusError, got %v", err)
	}
	return statusErr
}

func TestDo_AttachesBearerToken(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"7"}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, apiclient.WithTokenSource(staticToken("tok-123")))

	var out struct {
		ID string `json:"id"`
	}
	if err := c.Do(context.Background(), http.MethodGet, "/users/me", nil, &out); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected a bearer token, got %q", gotAuth)
	}
	if gotPath != "/api/v1/users/me" {
		t.Fatalf("expected the versioned path, got %s", gotPath)
	}
	if out.ID != "7" {
		t.Fatalf("expected the decoded body, got %+v", out)
	}
}

func TestDo_NoTokenIsNotAnError(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, apiclient.WithTokenSource(staticToken("")))

	if err := c.Do(context.Background(), http.MethodPost, "/ping", map[string]string{"a": "b"}, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestDo_SendsJSONBody(t *testing.T) {
	var got map[string]string
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL+"/")

	if err := c.Do(context.Background(), http.MethodPost, "auth/login", map[string]string{"email": "a@b.co"}, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if contentType != "application/json" {
		t.Fatalf("expected application/json, got %s", contentType)
	}
	if got["email"] != "a@b.co" {
		t.Fatalf("expected the JSON body, got %v", got)
	}
}

func TestDo_UnauthorizedRunsHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	}))
	defer srv.Close()

	var hooked atomic.Int32
	c := newClient(t, srv.URL,
		apiclient.WithTokenSource(staticToken("expired")),
		apiclient.WithUnauthorizedHandler(func(context.Context) { hooked.Add(1) }),
	)

	err := c.Do(context.Background(), http.MethodGet, "/users/me", nil, nil)

	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if detail := statusError(t, err).Detail; detail != "Could not validate credentials" {
		t.Fatalf("unexpected detail %q", detail)
	}
	if n := hooked.Load(); n != 1 {
		t.Fatalf("expected the hook to run once, ran %d times", n)
	}
}

func TestDo_CredentialExchangeSkipsHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var hooked atomic.Int32
	c := newClient(t, srv.URL,
		apiclient.WithUnauthorizedHandler(func(context.Context) { hooked.Add(1) }),
	)

	ctx := apiclient.WithCredentialExchange(context.Background())
	err := c.Do(ctx, http.MethodPost, "/auth/login", map[string]string{}, nil)

	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if n := hooked.Load(); n != 0 {
		t.Fatalf("a credential exchange must not run the hook, ran %d times", n)
	}
}

func TestDo_OtherStatusesPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","email"],"msg":"value is not a valid email address"}]}`))
	}))
	defer srv.Close()

	var hooked atomic.Int32
	c := newClient(t, srv.URL,
		apiclient.WithUnauthorizedHandler(func(context.Context) { hooked.Add(1) }),
	)

	err := c.Do(context.Background(), http.MethodPost, "/auth/register", map[string]string{}, nil)

	statusErr := statusError(t, err)
	if statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", statusErr.StatusCode)
	}
	if msg := statusErr.Fields["email"]; msg != "value is not a valid email address" {
		t.Fatalf("unexpected email message %q", msg)
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		t.Fatal("a 422 must not read as unauthorized")
	}
	if n := hooked.Load(); n != 0 {
		t.Fatalf("expected no hook call, got %d", n)
	}
}

func TestDo_ErrorBodyShapes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantDetail string
		wantField  string
	}{
		{"detail string", `{"detail":"User already registered"}`, "User already registered", ""},
		{"error key", `{"error":"An account with that email already exists."}`, "An account with that email already exists.", ""},
		{"errors map", `{"error":"invalid","errors":{"birth_date":"bad"}}`, "invalid", "birth_date"},
		{"plain text", `upstream exploded`, "upstream exploded", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := newClient(t, srv.URL).Do(context.Background(), http.MethodGet, "/x", nil, nil)

			statusErr := statusError(t, err)
			if statusErr.Detail != tc.wantDetail {
				t.Fatalf("expected detail %q, got %q", tc.wantDetail, statusErr.Detail)
			}
			if tc.wantField != "" {
				if _, ok := statusErr.Fields[tc.wantField]; !ok {
					t.Fatalf("expected a %s field error, got %v", tc.wantField, statusErr.Fields)
				}
			}
		})
	}
}

func TestDo_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newClient(t, url).Do(context.Background(), http.MethodGet, "/users/me", nil, nil)
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newClient(t, srv.URL).Do(ctx, http.MethodGet, "/users/me", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrNetwork) {
		t.Fatal("a cancelled request is not a network failure")
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	for _, u := range []string{"localhost:8000", "/api"} {
		if _, err := apiclient.New(u); err == nil {
			t.Fatalf("expected an error for %q", u)
		}
	}
}

func TestTracing_RecordsClientSpan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	c := newClient(t, srv.URL, apiclient.WithTracerProvider(tp))
	if err := c.Do(context.Background(), http.MethodGet, "/users/me", nil, nil); err != nil {
		t.Fatalf("Do: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if name := spans[0].Name(); name != "HTTP GET" {
		t.Fatalf("expected span HTTP GET, got %s", name)
	}
}
