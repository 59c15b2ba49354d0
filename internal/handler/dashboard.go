package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	datastar "github.com/starfederation/datastar-go/datastar"

	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/view"
)

// UserSource fetches the signed-in user from the backend.
type UserSource interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
}

// DashboardHandler handles the dashboard page.
type DashboardHandler struct {
	users UserSource
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(users UserSource) *DashboardHandler {
	return &DashboardHandler{users: users}
}

// HandleDashboard renders the dashboard for the user RequireSession restored.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, http.StatusOK, view.DashboardPage(currentUser(r)))
}

// HandleRefreshProfile re-reads the current user and patches the profile card.
// A 401 has already reset the session through the client's hook; the
// browser is sent to the login page.
func (h *DashboardHandler) HandleRefreshProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.CurrentUser(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			redirectToLogin(w, r)
			return
		}
		slog.Error("refresh profile", "error", err)
		_, msg := backendStatus(err)
		sse := datastar.NewSSE(w, r)
		if err := sse.PatchElementTempl(view.Alert("profile-alert", msg)); err != nil {
			slog.Error("patch profile alert", "error", err)
		}
		return
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElementTempl(view.ProfileCard(user)); err != nil {
		slog.Error("patch profile card", "error", err)
		return
	}
	if err := sse.PatchElementTempl(view.Alert("profile-alert", "")); err != nil {
		slog.Error("clear profile alert", "error", err)
	}
}
