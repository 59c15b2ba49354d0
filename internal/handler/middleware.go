package handler

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	datastar "github.com/starfederation/datastar-go/datastar"

	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/session"
)

// WithSession gives every request its own session.Store, backed by the
// access_token cookie, and carries it in the request context. The store
// starts in Loading; it is restored on first use.
func WithSession(gw session.Gateway, cookieSecure bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := session.New(newCookieTokens(w, r, cookieSecure), gw)
		ctx := session.WithStore(r.Context(), store)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser restores the request's session if needed and returns the
// signed-in user, or nil.
func currentUser(r *http.Request) *domain.User {
	store := session.FromContext(r.Context())
	if store == nil {
		return nil
	}
	if store.State() == session.Loading {
		store.Restore(r.Context())
	}
	return store.User()
}

// RequireSession protects routes that need a signed-in user. The session is
// fully restored before deciding, so a valid cookie never bounces to /login.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r) == nil {
			redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// redirectToLogin sends the browser to the login page. Plain page loads keep
// the requested path as the post-login target.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	if isDatastar(r) {
		sse := datastar.NewSSE(w, r)
		if err := sse.Redirect("/login"); err != nil {
			slog.Error("send login redirect", "error", err)
		}
		return
	}
	target := "/login"
	if r.Method == http.MethodGet {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// redirect navigates to target with a 303, or over SSE for datastar requests.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isDatastar(r) {
		sse := datastar.NewSSE(w, r)
		if err := sse.Redirect(target); err != nil {
			slog.Error("send redirect", "target", target, "error", err)
		}
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func isDatastar(r *http.Request) bool {
	return r.Header.Get("Datastar-Request") == "true"
}

// safeNext keeps only local paths, so the login form cannot be used as an open redirect.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

// SecurityHeaders sets the response headers every page gets.
func SecurityHeaders(next http.Handler) http.Handler {
	const csp = "default-src 'self'; " +
		"script-src 'self' https://cdn.jsdelivr.net 'unsafe-eval'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"connect-src 'self'; " +
		"base-uri 'self'; form-action 'self'; frame-ancestors 'none'"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", csp)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code. It forwards Flush so SSE
// responses stream through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// LogRequests logs one line per request.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// clientIP is the peer address. Forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
