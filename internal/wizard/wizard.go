// Package wizard implements the three-step registration form as a finite
// state machine.
//
//	Step1 --Next--> Step2 --Next--> Step3 --BeginSubmit--> Submitting
//	Step1 <--Back-- Step2 <--Back-- Step3                  |        |
//	                      <--Back-- Failed <----Fail-------+        +--Complete--> Completed
//	                                Failed --BeginSubmit--> Submitting
//
// Forward moves are guarded by validation of the current step's fields;
// Back never validates and keeps every value.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/msomdec/agun-web/internal/domain"
)

// ErrIllegalTransition is returned when an event does not apply to the current phase.
var ErrIllegalTransition = errors.New("illegal wizard transition")

// StepError reports a failed step validation. It wraps domain.ErrInvalidInput.
type StepError struct {
	Step   int
	Fields FieldErrors
}

func (e *StepError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range StepFields[e.Step] {
		if _, ok := e.Fields[f]; ok {
			names = append(names, string(f))
		}
	}
	return fmt.Sprintf("step %d: invalid %s", e.Step, strings.Join(names, ", "))
}

func (e *StepError) Unwrap() error { return domain.ErrInvalidInput }

// Registrar submits a validated profile to the backend.
type Registrar interface {
	Register(ctx context.Context, profile domain.Profile) (*domain.Registration, error)
}

// Wizard holds the phase, the draft and the feedback of one registration.
// It is not safe for concurrent use; callers serialise events per draft.
type Wizard struct {
	phase   domain.Phase
	draft   domain.Draft
	errors  FieldErrors
	failure string
	locs    Locations
	now     func() time.Time
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithClock overrides the clock used for birth date checks.
func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

// New starts a wizard at Step1 with an empty draft.
func New(locs Locations, opts ...Option) *Wizard {
	return Resume(locs, domain.PhaseStep1, domain.NewDraft(), "", opts...)
}

// Resume rebuilds a wizard from persisted state. Unknown phases restart at Step1.
func Resume(locs Locations, phase domain.Phase, draft domain.Draft, failure string, opts ...Option) *Wizard {
	if !phase.Valid() {
		phase = domain.PhaseStep1
	}
	w := &Wizard{
		phase:   phase,
		draft:   draft,
		errors:  FieldErrors{},
		failure: failure,
		locs:    locs,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wizard) Phase() domain.Phase { return w.phase }
func (w *Wizard) Draft() domain.Draft { return w.draft }
func (w *Wizard) Failure() string     { return w.failure }

// Errors returns the field errors of the last rejected transition.
func (w *Wizard) Errors() FieldErrors { return maps.Clone(w.errors) }

// Step is the form step to display: Submitting, Failed and Completed render as step 3.
func (w *Wizard) Step() int {
	switch w.phase {
	case domain.PhaseStep1:
		return 1
	case domain.PhaseStep2:
		return 2
	default:
		return 3
	}
}

func (w *Wizard) guardEditable() error {
	switch w.phase {
	case domain.PhaseSubmitting:
		return domain.ErrSubmissionInFlight
	case domain.PhaseCompleted:
		return fmt.Errorf("%w: registration already completed", ErrIllegalTransition)
	}
	return nil
}

// Set assigns a plain field. Country fields go through their selection
// methods so that the paired city is kept consistent.
func (w *Wizard) Set(field Field, value string) error {
	if err := w.guardEditable(); err != nil {
		return err
	}
	d := &w.draft
	switch field {
	case FieldFirstName:
		d.FirstName = value
	case FieldLastName:
		d.LastName = value
	case FieldBirthDate:
		d.BirthDate = strings.TrimSpace(value)
	case FieldGender:
		d.Gender = domain.Gender(value)
	case FieldStatus:
		d.Status = domain.Status(value)
	case FieldNationality:
		w.selectCountry(&d.Nationality, &d.OriginCity, FieldOriginCity, value)
	case FieldCountry:
		w.selectCountry(&d.Country, &d.City, FieldCity, value)
	case FieldOriginCity:
		d.OriginCity = value
	case FieldCity:
		d.City = value
	case FieldEmail:
		d.Email = strings.TrimSpace(value)
	case FieldPassword:
		d.Password = value
	case FieldConfirmPassword:
		d.ConfirmPassword = value
	default:
		return fmt.Errorf("%w: unknown field %q", domain.ErrInvalidInput, field)
	}
	delete(w.errors, field)
	return nil
}

// Apply assigns several fields at once. Countries are applied before cities
// so a form posting both keeps a city that belongs to the new country.
func (w *Wizard) Apply(values map[Field]string) error {
	ordered := []Field{FieldNationality, FieldCountry}
	for f := range values {
		if f != FieldNationality && f != FieldCountry {
			ordered = append(ordered, f)
		}
	}
	for _, f := range ordered {
		v, ok := values[f]
		if !ok {
			continue
		}
		if err := w.Set(f, v); err != nil {
			return err
		}
	}
	return nil
}

// SelectNationality changes the nationality and clears the origin city
// unless it belongs to the new country.
func (w *Wizard) SelectNationality(countryID string) error {
	return w.Set(FieldNationality, countryID)
}

// SelectResidenceCountry changes the residence country and clears the
// residence city unless it belongs to the new country.
func (w *Wizard) SelectResidenceCountry(countryID string) error {
	return w.Set(FieldCountry, countryID)
}

func (w *Wizard) selectCountry(country, city *string, cityField Field, value string) {
	*country = value
	if *city != "" && !w.locs.HasCity(value, *city) {
		*city = ""
		delete(w.errors, cityField)
	}
}

// OriginCities are the city options for the current nationality.
func (w *Wizard) OriginCities() []domain.City {
	return w.locs.CitiesOf(w.draft.Nationality)
}

// ResidenceCities are the city options for the current residence country.
func (w *Wizard) ResidenceCities() []domain.City {
	return w.locs.CitiesOf(w.draft.Country)
}

// Next validates the current step and advances. Step3 advances through BeginSubmit.
func (w *Wizard) Next() error {
	var next domain.Phase
	switch w.phase {
	case domain.PhaseStep1:
		next = domain.PhaseStep2
	case domain.PhaseStep2:
		next = domain.PhaseStep3
	case domain.PhaseSubmitting:
		return domain.ErrSubmissionInFlight
	default:
		return fmt.Errorf("%w: next from %s", ErrIllegalTransition, w.phase)
	}
	step := w.Step()
	if errs := validateStep(step, w.draft, w.locs, w.now()); len(errs) > 0 {
		w.errors = errs
		return &StepError{Step: step, Fields: maps.Clone(errs)}
	}
	w.errors = FieldErrors{}
	w.phase = next
	return nil
}

// Back retreats one step without validation.
func (w *Wizard) Back() error {
	switch w.phase {
	case domain.PhaseStep2:
		w.phase = domain.PhaseStep1
	case domain.PhaseStep3, domain.PhaseFailed:
		w.phase = domain.PhaseStep2
		w.failure = ""
	case domain.PhaseSubmitting:
		return domain.ErrSubmissionInFlight
	default:
		return fmt.Errorf("%w: back from %s", ErrIllegalTransition, w.phase)
	}
	w.errors = FieldErrors{}
	return nil
}

// BeginSubmit validates the whole draft and moves to Submitting, returning
// the profile to send. Nothing is sent here. When an earlier step no longer
// validates (a stale city, for instance) the wizard returns to that step.
func (w *Wizard) BeginSubmit() (domain.Profile, error) {
	switch w.phase {
	case domain.PhaseStep3, domain.PhaseFailed:
	case domain.PhaseSubmitting:
		return domain.Profile{}, domain.ErrSubmissionInFlight
	default:
		return domain.Profile{}, fmt.Errorf("%w: submit from %s", ErrIllegalTransition, w.phase)
	}

	now := w.now()
	for step := 1; step <= 3; step++ {
		if errs := validateStep(step, w.draft, w.locs, now); len(errs) > 0 {
			w.errors = errs
			switch step {
			case 1:
				w.phase = domain.PhaseStep1
			case 2:
				w.phase = domain.PhaseStep2
			}
			return domain.Profile{}, &StepError{Step: step, Fields: maps.Clone(errs)}
		}
	}

	birth, _ := ParseBirthDate(w.draft.BirthDate, now)
	d := w.draft
	w.errors = FieldErrors{}
	w.failure = ""
	w.phase = domain.PhaseSubmitting
	return domain.Profile{
		FirstName:   strings.TrimSpace(d.FirstName),
		LastName:    strings.TrimSpace(d.LastName),
		BirthDate:   birth,
		Gender:      d.Gender,
		Status:      d.Status,
		Nationality: d.Nationality,
		OriginCity:  d.OriginCity,
		Country:     d.Country,
		City:        d.City,
		Email:       d.Email,
		Password:    d.Password,
	}, nil
}

// Complete records a successful submission.
func (w *Wizard) Complete() error {
	if w.phase != domain.PhaseSubmitting {
		return fmt.Errorf("%w: complete from %s", ErrIllegalTransition, w.phase)
	}
	w.phase = domain.PhaseCompleted
	return nil
}

// Fail records a rejected submission. The draft is kept for a retry.
func (w *Wizard) Fail(message string) error {
	if w.phase != domain.PhaseSubmitting {
		return fmt.Errorf("%w: fail from %s", ErrIllegalTransition, w.phase)
	}
	w.phase = domain.PhaseFailed
	w.failure = message
	return nil
}

// Submit runs BeginSubmit, calls reg and settles in Completed or Failed.
// Validation errors return before reg is called.
func (w *Wizard) Submit(ctx context.Context, reg Registrar, failureMessage func(error) string) (*domain.Registration, error) {
	profile, err := w.BeginSubmit()
	if err != nil {
		return nil, err
	}
	confirmation, err := reg.Register(ctx, profile)
	if err != nil {
		msg := err.Error()
		if failureMessage != nil {
			msg = failureMessage(err)
		}
		_ = w.Fail(msg)
		return nil, err
	}
	_ = w.Complete()
	return confirmation, nil
}
