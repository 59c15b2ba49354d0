package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/service"
	"github.com/msomdec/agun-web/internal/session"
	"github.com/msomdec/agun-web/internal/view"
)

const (
	msgBadCredentials = "Email ou mot de passe incorrect."
	msgMissingFields  = "Email et mot de passe requis."
	msgRegistered     = "Ton compte a été créé. Connecte-toi pour continuer."
)

// AuthHandler handles the login form and logout.
type AuthHandler struct {
	limiter *service.TokenBucket
}

// NewAuthHandler creates a new AuthHandler. A nil limiter disables rate limiting.
func NewAuthHandler(limiter *service.TokenBucket) *AuthHandler {
	return &AuthHandler{limiter: limiter}
}

// HandleLoginPage renders the login form. A signed-in user goes straight to
// the post-login target.
// GET /login
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if currentUser(r) != nil {
		http.Redirect(w, r, afterLogin(next), http.StatusSeeOther)
		return
	}

	form := view.LoginForm{Next: next}
	if r.URL.Query().Get("registered") == "1" {
		form.Notice = msgRegistered
	}
	renderPage(w, r, http.StatusOK, view.LoginPage(form))
}

// HandleLogin exchanges the submitted credentials for a session.
// POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderPage(w, r, http.StatusBadRequest, view.LoginPage(view.LoginForm{Error: msgMissingFields}))
		return
	}
	form := view.LoginForm{
		Email: strings.TrimSpace(r.PostFormValue("email")),
		Next:  safeNext(r.PostFormValue("next")),
	}

	if h.limiter != nil {
		if ok, retryAfter := h.limiter.Allow(clientIP(r)); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			form.Error = msgTooMany
			renderPage(w, r, http.StatusTooManyRequests, view.LoginPage(form))
			return
		}
	}

	password := r.PostFormValue("password")
	if form.Email == "" || password == "" {
		form.Error = msgMissingFields
		renderPage(w, r, http.StatusBadRequest, view.LoginPage(form))
		return
	}

	store := session.FromContext(r.Context())
	if _, err := store.Login(r.Context(), form.Email, password); err != nil {
		status := http.StatusUnauthorized
		form.Error = msgBadCredentials
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			status, form.Error = backendStatus(err)
			slog.Error("login", "error", err)
		}
		renderPage(w, r, status, view.LoginPage(form))
		return
	}

	http.Redirect(w, r, afterLogin(form.Next), http.StatusSeeOther)
}

// HandleLogout ends the session and returns to the home page.
// POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if store := session.FromContext(r.Context()); store != nil {
		store.Logout(r.Context())
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func afterLogin(next string) string {
	if next == "" {
		return "/dashboard"
	}
	return next
}
