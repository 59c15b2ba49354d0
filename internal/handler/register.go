package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	datastar "github.com/starfederation/datastar-go/datastar"

	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/location"
	"github.com/msomdec/agun-web/internal/service"
	"github.com/msomdec/agun-web/internal/session"
	"github.com/msomdec/agun-web/internal/view"
	"github.com/msomdec/agun-web/internal/wizard"
)

const maxFormMemory = 32 << 10

// RegisterHandler drives the registration wizard. The draft id travels in
// the reg_draft cookie; the draft itself lives in the database.
type RegisterHandler struct {
	registrations *service.RegistrationService
	locs          *location.Catalog
	cookieSecure  bool
	draftTTL      time.Duration
	now           func() time.Time
}

// NewRegisterHandler creates a new RegisterHandler.
func NewRegisterHandler(registrations *service.RegistrationService, locs *location.Catalog, cookieSecure bool, draftTTL time.Duration) *RegisterHandler {
	return &RegisterHandler{
		registrations: registrations,
		locs:          locs,
		cookieSecure:  cookieSecure,
		draftTTL:      draftTTL,
		now:           time.Now,
	}
}

// loadFlow returns the draft named by the cookie. With create set, a missing
// or expired draft is replaced by a new one.
func (h *RegisterHandler) loadFlow(w http.ResponseWriter, r *http.Request, create bool) (*service.Flow, error) {
	if c, err := r.Cookie(draftCookie); err == nil && c.Value != "" {
		f, err := h.registrations.Load(r.Context(), c.Value)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if !create {
		return nil, domain.ErrNotFound
	}
	f, err := h.registrations.Start(r.Context())
	if err != nil {
		return nil, err
	}
	setDraftCookie(w, f.ID, h.cookieSecure, h.draftTTL)
	return f, nil
}

func (h *RegisterHandler) form(f *service.Flow) view.RegisterForm {
	return view.NewRegisterForm(f.Wizard, h.locs, h.now())
}

// respondForm renders the whole page, or patches the wizard block for datastar requests.
func (h *RegisterHandler) respondForm(w http.ResponseWriter, r *http.Request, status int, form view.RegisterForm) {
	if store := session.FromContext(r.Context()); store != nil {
		form.Nav = view.Nav{User: store.User()}
	}
	if isDatastar(r) {
		sse := datastar.NewSSE(w, r)
		if err := sse.PatchElementTempl(view.RegisterFormFragment(form)); err != nil {
			slog.Error("patch register form", "error", err)
		}
		return
	}
	renderPage(w, r, status, view.RegisterPage(form))
}

// HandleRegisterPage shows the current step of the visitor's draft.
// GET /register
func (h *RegisterHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if currentUser(r) != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	f, err := h.loadFlow(w, r, true)
	if err != nil {
		slog.Error("load registration draft", "error", err)
		renderError(w, r, http.StatusInternalServerError, msgUnexpected)
		return
	}
	h.respondForm(w, r, http.StatusOK, h.form(f))
}

// HandleRegisterStep saves the posted step and moves the wizard.
// POST /register with action = next | back | refresh
func (h *RegisterHandler) HandleRegisterStep(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		renderError(w, r, http.StatusBadRequest, msgUnexpected)
		return
	}
	f, err := h.loadFlow(w, r, true)
	if err != nil {
		slog.Error("load registration draft", "error", err)
		renderError(w, r, http.StatusInternalServerError, msgUnexpected)
		return
	}

	if err := f.Wizard.Apply(submittedFields(r, f.Wizard.Step())); err != nil {
		h.handleEditError(w, r, f, err)
		return
	}

	var moveErr error
	switch r.PostFormValue("action") {
	case "next":
		moveErr = f.Wizard.Next()
	case "back":
		moveErr = f.Wizard.Back()
	case "refresh", "":
	default:
		renderError(w, r, http.StatusBadRequest, msgUnexpected)
		return
	}

	if err := h.registrations.Save(r.Context(), f); err != nil {
		slog.Error("save registration draft", "error", err)
		renderError(w, r, http.StatusInternalServerError, msgUnexpected)
		return
	}

	var stepErr *wizard.StepError
	switch {
	case moveErr == nil, errors.Is(moveErr, wizard.ErrIllegalTransition):
		redirect(w, r, "/register")
	case errors.As(moveErr, &stepErr):
		h.respondForm(w, r, http.StatusUnprocessableEntity, h.form(f))
	default:
		h.handleEditError(w, r, f, moveErr)
	}
}

func (h *RegisterHandler) handleEditError(w http.ResponseWriter, r *http.Request, f *service.Flow, err error) {
	switch {
	case errors.Is(err, domain.ErrSubmissionInFlight):
		h.respondForm(w, r, http.StatusConflict, h.form(f))
	case errors.Is(err, domain.ErrInvalidInput):
		renderError(w, r, http.StatusBadRequest, msgUnexpected)
	default:
		slog.Error("update registration draft", "error", err)
		renderError(w, r, http.StatusInternalServerError, msgUnexpected)
	}
}

// HandleSubmit sends the completed draft to the backend, then signs the new
// user in. The submitted passwords are used for this request only.
// POST /register/submit
func (h *RegisterHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		renderError(w, r, http.StatusBadRequest, msgUnexpected)
		return
	}
	f, err := h.loadFlow(w, r, false)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			redirect(w, r, "/register")
			return
		}
		slog.Error("load registration draft", "error", err)
		renderError(w, r, http.StatusInternalServerError, msgUnexpected)
		return
	}

	if err := f.Wizard.Apply(submittedFields(r, 3)); err != nil {
		h.handleEditError(w, r, f, err)
		return
	}
	draft := f.Wizard.Draft()

	reg, err := h.registrations.Submit(r.Context(), f)
	if err == nil {
		clearDraftCookie(w, h.cookieSecure)
		slog.Info("account registered", "id", reg.ID)
		h.signIn(w, r, draft.Email, draft.Password)
		return
	}

	var stepErr *wizard.StepError
	switch {
	case errors.As(err, &stepErr):
		h.respondForm(w, r, http.StatusUnprocessableEntity, h.form(f))
	case errors.Is(err, domain.ErrSubmissionInFlight):
		h.respondForm(w, r, http.StatusConflict, h.form(f))
	case errors.Is(err, wizard.ErrIllegalTransition):
		redirect(w, r, "/register")
	case f.Wizard.Phase() == domain.PhaseFailed:
		slog.Warn("registration rejected", "error", err)
		h.respondForm(w, r, submitFailureStatus(err), h.form(f))
	default:
		slog.Error("submit registration", "error", err)
		renderError(w, r, http.StatusInternalServerError, msgUnexpected)
	}
}

// signIn logs the new account in. When that fails the account still exists,
// so the user is sent to the login page with a notice instead of an error.
func (h *RegisterHandler) signIn(w http.ResponseWriter, r *http.Request, email, password string) {
	store := session.FromContext(r.Context())
	if store == nil {
		redirect(w, r, "/login?registered=1")
		return
	}
	ctx := context.WithoutCancel(r.Context())
	if _, err := store.Login(ctx, email, password); err != nil {
		slog.Warn("sign in after registration", "error", err)
		redirect(w, r, "/login?registered=1")
		return
	}
	redirect(w, r, "/dashboard")
}

func submitFailureStatus(err error) int {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrDuplicateAccount):
		return http.StatusConflict
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	}
	status, _ := backendStatus(err)
	return status
}

// HandleCities patches a city select. A country change replaces the whole
// field and clears its search box; with filter=1 only the options are
// narrowed to the search text.
// GET /register/cities?pair=origin|residence[&filter=1]
func (h *RegisterHandler) HandleCities(w http.ResponseWriter, r *http.Request) {
	var signals struct {
		Nationality  string `json:"nationality"`
		Country      string `json:"country"`
		OriginSearch string `json:"originSearch"`
		CitySearch   string `json:"citySearch"`
	}
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	f, err := h.loadFlow(w, r, false)
	persisted := err == nil
	if errors.Is(err, domain.ErrNotFound) {
		f = &service.Flow{Wizard: wizard.New(h.locs)}
	} else if err != nil {
		slog.Error("load registration draft", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var (
		field     view.CityField
		countryID string
		query     string
	)
	switch r.URL.Query().Get("pair") {
	case view.PairOrigin:
		field, countryID, query = view.OriginCityField(f.Wizard), signals.Nationality, signals.OriginSearch
	case view.PairResidence:
		field, countryID, query = view.ResidenceCityField(f.Wizard), signals.Country, signals.CitySearch
	default:
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("filter") == "1" {
		field.Query = query
		field.Cities = location.FilterCities(h.locs.CitiesOf(countryID), query, field.Selected)
		sse := datastar.NewSSE(w, r)
		if err := sse.PatchElementTempl(view.CityOptions(field)); err != nil {
			slog.Error("patch city options", "error", err)
		}
		return
	}

	if field.Pair == view.PairOrigin {
		err = f.Wizard.SelectNationality(countryID)
		field = view.OriginCityField(f.Wizard)
	} else {
		err = f.Wizard.SelectResidenceCountry(countryID)
		field = view.ResidenceCityField(f.Wizard)
	}
	if err != nil {
		if errors.Is(err, domain.ErrSubmissionInFlight) {
			http.Error(w, "Conflict", http.StatusConflict)
			return
		}
		slog.Error("select country", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if persisted {
		if err := h.registrations.Save(r.Context(), f); err != nil {
			slog.Error("save registration draft", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElementTempl(view.CitySelect(field)); err != nil {
		slog.Error("patch city select", "error", err)
	}
	if err := sse.MarshalAndPatchSignals(map[string]string{field.Signal: ""}); err != nil {
		slog.Error("reset city search", "error", err)
	}
}

// submittedFields picks the posted values of one step's fields. Fields
// absent from the form are left untouched.
func submittedFields(r *http.Request, step int) map[wizard.Field]string {
	values := make(map[wizard.Field]string)
	for _, f := range wizard.StepFields[step] {
		if vs, ok := r.PostForm[string(f)]; ok && len(vs) > 0 {
			values[f] = vs[0]
		}
	}
	return values
}

// parseForm accepts urlencoded and multipart bodies; datastar may send either.
func parseForm(r *http.Request) error {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}
