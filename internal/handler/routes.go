package handler

import (
	"net/http"
	"time"

	"github.com/msomdec/agun-web/internal/gateway"
	"github.com/msomdec/agun-web/internal/location"
	"github.com/msomdec/agun-web/internal/service"
)

// RegisterRoutes sets up all HTTP routes on the given mux. Every page route
// runs inside WithSession; loginLimiter may be nil.
func RegisterRoutes(
	mux *http.ServeMux,
	gw *gateway.Auth,
	registrations *service.RegistrationService,
	locs *location.Catalog,
	loginLimiter *service.TokenBucket,
	cookieSecure bool,
	draftTTL time.Duration,
) {
	home := NewHomeHandler(locs.ResidenceCountries())
	auth := NewAuthHandler(loginLimiter)
	register := NewRegisterHandler(registrations, locs, cookieSecure, draftTTL)
	dashboard := NewDashboardHandler(gw)

	withSession := func(h http.HandlerFunc) http.Handler {
		return WithSession(gw, cookieSecure, h)
	}
	guarded := func(h http.HandlerFunc) http.Handler {
		return WithSession(gw, cookieSecure, RequireSession(h))
	}

	mux.HandleFunc("GET /healthz", HandleHealthz)

	mux.Handle("GET /{$}", withSession(home.HandleHome))
	mux.Handle("/", withSession(HandleNotFound))

	mux.Handle("GET /login", withSession(auth.HandleLoginPage))
	mux.Handle("POST /login", withSession(auth.HandleLogin))
	mux.Handle("POST /logout", withSession(auth.HandleLogout))

	mux.Handle("GET /register", withSession(register.HandleRegisterPage))
	mux.Handle("POST /register", withSession(register.HandleRegisterStep))
	mux.Handle("POST /register/submit", withSession(register.HandleSubmit))
	mux.Handle("GET /register/cities", withSession(register.HandleCities))

	mux.Handle("GET /dashboard", guarded(dashboard.HandleDashboard))
	mux.Handle("GET /dashboard/profile", guarded(dashboard.HandleRefreshProfile))
}
