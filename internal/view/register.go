package view

import (
	"encoding/json"
	"time"

	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/wizard"
)

// City pairs: which country select a city field depends on.
const (
	PairOrigin    = "origin"
	PairResidence = "residence"
)

// CityField is a city <select> tied to a country choice, with a search box
// that narrows its options.
type CityField struct {
	ID       string
	Name     string
	Label    string
	Pair     string
	Signal   string // datastar signal bound to the search box
	Query    string
	Cities   []domain.City
	Selected string
	Error    string
}

// Disabled reports whether there is nothing to choose from yet.
func (f CityField) Disabled() bool {
	return len(f.Cities) == 0 && f.Query == ""
}

func (f CityField) Placeholder() string {
	switch {
	case len(f.Cities) > 0:
		return "Choisir une ville"
	case f.Query != "":
		return "Aucune ville trouvée"
	}
	return "Choisir d'abord un pays"
}

func (f CityField) changeAction() string {
	return "@get('/register/cities?pair=" + f.Pair + "')"
}

func (f CityField) filterAction() string {
	return "@get('/register/cities?pair=" + f.Pair + "&filter=1')"
}

// StepInfo is one entry of the progress indicator.
type StepInfo struct {
	Number  int
	Title   string
	Current bool
	Done    bool
}

func (s StepInfo) class() string {
	switch {
	case s.Current:
		return "current"
	case s.Done:
		return "done"
	}
	return ""
}

var stepTitles = []string{"Identité", "Origine et résidence", "Compte"}

// RegisterForm is everything the registration page shows. Passwords are
// never part of it: a re-rendered step 3 always starts with empty fields.
type RegisterForm struct {
	Nav           Nav
	Step          int
	Steps         []StepInfo
	Draft         domain.Draft
	Errors        map[string]string
	Failure       string
	Submitting    bool
	Today         string
	Genders       []domain.Gender
	Statuses      []domain.Status
	Nationalities []domain.Country
	Residences    []domain.Country
	OriginCity    CityField
	ResidenceCity CityField
}

// Countries supplies the country choices for step 2.
type Countries interface {
	Nationalities() []domain.Country
	ResidenceCountries() []domain.Country
}

// NewRegisterForm builds the page state from a wizard.
func NewRegisterForm(w *wizard.Wizard, countries Countries, now time.Time) RegisterForm {
	d := w.Draft()
	d.Password, d.ConfirmPassword = "", ""
	errs := make(map[string]string)
	for f, msg := range w.Errors() {
		errs[string(f)] = msg
	}

	step := w.Step()
	steps := make([]StepInfo, len(stepTitles))
	for i, title := range stepTitles {
		steps[i] = StepInfo{Number: i + 1, Title: title, Current: i+1 == step, Done: i+1 < step}
	}

	return RegisterForm{
		Step:          step,
		Steps:         steps,
		Draft:         d,
		Errors:        errs,
		Failure:       w.Failure(),
		Submitting:    w.Phase() == domain.PhaseSubmitting,
		Today:         today(now),
		Genders:       domain.Genders,
		Statuses:      domain.Statuses,
		Nationalities: countries.Nationalities(),
		Residences:    countries.ResidenceCountries(),
		OriginCity:    OriginCityField(w),
		ResidenceCity: ResidenceCityField(w),
	}
}

// OriginCityField is the origin city select for the wizard's nationality.
func OriginCityField(w *wizard.Wizard) CityField {
	d := w.Draft()
	return CityField{
		ID:       "origin_city",
		Name:     string(wizard.FieldOriginCity),
		Label:    "Ville d'origine",
		Pair:     PairOrigin,
		Signal:   "originSearch",
		Cities:   w.OriginCities(),
		Selected: d.OriginCity,
		Error:    w.Errors()[wizard.FieldOriginCity],
	}
}

// ResidenceCityField is the residence city select for the wizard's residence country.
func ResidenceCityField(w *wizard.Wizard) CityField {
	d := w.Draft()
	return CityField{
		ID:       "city",
		Name:     string(wizard.FieldCity),
		Label:    "Ville de résidence",
		Pair:     PairResidence,
		Signal:   "citySearch",
		Cities:   w.ResidenceCities(),
		Selected: d.City,
		Error:    w.Errors()[wizard.FieldCity],
	}
}

// signals is the form's initial datastar state. Signals starting with an
// underscore stay in the browser.
func (f RegisterForm) signals() string {
	b, err := json.Marshal(map[string]any{
		"nationality":          f.Draft.Nationality,
		"country":              f.Draft.Country,
		f.OriginCity.Signal:    f.OriginCity.Query,
		f.ResidenceCity.Signal: f.ResidenceCity.Query,
		"_showPassword":        false,
	})
	if err != nil {
		return "{}"
	}
	return string(b)
}
