package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/wizard"
)

// Failure messages shown on the last step when the backend rejects a submission.
const (
	MsgRegistrationFailed = "Une erreur est survenue lors de l'inscription. Veuillez réessayer."
	MsgDuplicateAccount   = "Un compte existe déjà avec cette adresse email."
	MsgRejectedProfile    = "Les informations saisies ont été refusées. Vérifiez-les et réessayez."
	MsgBackendUnreachable = "Impossible de joindre le serveur. Veuillez réessayer."
	MsgSubmitInterrupted  = "L'inscription a été interrompue. Veuillez réessayer."
)

// FailureMessage turns a registration error into the text shown to the user.
func FailureMessage(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrDuplicateAccount):
		return MsgDuplicateAccount
	case errors.As(err, &ve):
		return MsgRejectedProfile
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return MsgBackendUnreachable
	}
	return MsgRegistrationFailed
}

// Flow is a persisted registration wizard.
type Flow struct {
	ID     string
	Wizard *wizard.Wizard
}

// RegistrationService loads, saves and submits registration wizards.
type RegistrationService struct {
	drafts        domain.DraftRepository
	locs          wizard.Locations
	registrar     wizard.Registrar
	submitTimeout time.Duration
	now           func() time.Time
}

// NewRegistrationService creates a new RegistrationService. A draft left in
// the submitting phase for longer than submitTimeout is resumed as failed.
func NewRegistrationService(drafts domain.DraftRepository, locs wizard.Locations, registrar wizard.Registrar, submitTimeout time.Duration) *RegistrationService {
	return &RegistrationService{
		drafts:        drafts,
		locs:          locs,
		registrar:     registrar,
		submitTimeout: submitTimeout,
		now:           time.Now,
	}
}

func (s *RegistrationService) resume(rec *domain.DraftRecord) *wizard.Wizard {
	return wizard.Resume(s.locs, rec.Phase, rec.Draft, rec.Failure, wizard.WithClock(s.now))
}

// Start creates an empty draft at step 1.
func (s *RegistrationService) Start(ctx context.Context) (*Flow, error) {
	rec := &domain.DraftRecord{Phase: domain.PhaseStep1, Draft: domain.NewDraft()}
	if err := s.drafts.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	return &Flow{ID: rec.ID, Wizard: s.resume(rec)}, nil
}

// Load returns the wizard stored under id.
func (s *RegistrationService) Load(ctx context.Context, id string) (*Flow, error) {
	rec, err := s.drafts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Phase == domain.PhaseSubmitting && s.now().Sub(rec.UpdatedAt) > s.submitTimeout {
		slog.Warn("resuming interrupted registration", "draft", id)
		rec.Phase = domain.PhaseFailed
		rec.Failure = MsgSubmitInterrupted
		if err := s.drafts.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("resume interrupted draft: %w", err)
		}
	}
	return &Flow{ID: rec.ID, Wizard: s.resume(rec)}, nil
}

// Save persists the wizard's phase, draft and failure message.
func (s *RegistrationService) Save(ctx context.Context, f *Flow) error {
	rec := &domain.DraftRecord{
		ID:      f.ID,
		Phase:   f.Wizard.Phase(),
		Draft:   f.Wizard.Draft(),
		Failure: f.Wizard.Failure(),
	}
	if err := s.drafts.Update(ctx, rec); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Discard forgets a draft.
func (s *RegistrationService) Discard(ctx context.Context, id string) error {
	return s.drafts.Delete(ctx, id)
}

// Submit validates the whole draft, claims it and sends it to the backend.
// Only one concurrent Submit per draft reaches the backend; the others get
// domain.ErrSubmissionInFlight. A completed draft is deleted.
func (s *RegistrationService) Submit(ctx context.Context, f *Flow) (*domain.Registration, error) {
	claiming := registrarFunc(func(ctx context.Context, p domain.Profile) (*domain.Registration, error) {
		ok, err := s.drafts.ClaimSubmission(ctx, f.ID)
		if err != nil {
			return nil, fmt.Errorf("claim draft: %w", err)
		}
		if !ok {
			return nil, domain.ErrSubmissionInFlight
		}
		return s.registrar.Register(ctx, p)
	})

	reg, err := f.Wizard.Submit(ctx, claiming, FailureMessage)
	if errors.Is(err, domain.ErrSubmissionInFlight) {
		return nil, err
	}
	// The outcome must be recorded even when the request was cancelled.
	saveCtx := context.WithoutCancel(ctx)
	if err != nil {
		var stepErr *wizard.StepError
		if errors.As(err, &stepErr) || f.Wizard.Phase() == domain.PhaseFailed {
			if saveErr := s.Save(saveCtx, f); saveErr != nil {
				slog.Error("save failed registration", "error", saveErr)
			}
		}
		return nil, err
	}

	if err := s.drafts.Delete(saveCtx, f.ID); err != nil {
		slog.Error("delete completed draft", "error", err)
	}
	return reg, nil
}

// PurgeStale deletes drafts untouched for longer than maxAge.
func (s *RegistrationService) PurgeStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.drafts.DeleteStale(ctx, s.now().Add(-maxAge))
}

// RunJanitor purges stale drafts every interval until ctx is done.
func (s *RegistrationService) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeStale(ctx, maxAge)
			if err != nil {
				slog.Error("purge stale drafts", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged stale drafts", "count", n)
			}
		}
	}
}

type registrarFunc func(ctx context.Context, p domain.Profile) (*domain.Registration, error)

func (f registrarFunc) Register(ctx context.Context, p domain.Profile) (*domain.Registration, error) {
	return f(ctx, p)
}
