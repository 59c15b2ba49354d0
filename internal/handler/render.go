package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/session"
	"github.com/msomdec/agun-web/internal/view"
)

const (
	msgUnexpected  = "Une erreur est survenue. Veuillez réessayer."
	msgUnreachable = "Impossible de joindre le serveur. Veuillez réessayer."
	msgNotFound    = "La page demandée n'existe pas."
	msgTooMany     = "Trop de tentatives. Réessaie dans quelques instants."
)

var errorTitles = map[int]string{
	http.StatusNotFound:        "Page introuvable",
	http.StatusTooManyRequests: "Trop de tentatives",
	http.StatusBadGateway:      "Service indisponible",
}

func renderPage(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render page", "path", r.URL.Path, "error", err)
	}
}

// renderError shows the error page. It never calls the backend: the nav shows
// the user only if this request already restored the session.
func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	title, ok := errorTitles[status]
	if !ok {
		title = "Erreur"
	}
	var user *domain.User
	if store := session.FromContext(r.Context()); store != nil {
		user = store.User()
	}
	renderPage(w, r, status, view.ErrorPage(user, title, message))
}

// backendStatus picks the page status and message for a failed backend call.
func backendStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, msgUnreachable
	}
	return http.StatusInternalServerError, msgUnexpected
}

// HandleNotFound renders the 404 page.
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	renderError(w, r, http.StatusNotFound, msgNotFound)
}
