package handler

import (
	"net/http"

	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/view"
)

// HomeHandler serves the landing page.
type HomeHandler struct {
	hostCountries []domain.Country
}

// NewHomeHandler creates a new HomeHandler listing the given host countries.
func NewHomeHandler(hostCountries []domain.Country) *HomeHandler {
	return &HomeHandler{hostCountries: hostCountries}
}

// HandleHome renders the home page, greeting the user when signed in.
func (h *HomeHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, http.StatusOK, view.HomePage(currentUser(r), h.hostCountries))
}
