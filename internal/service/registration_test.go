package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/msomdec/agun-web/internal/domain"
	"github.com/msomdec/agun-web/internal/location"
	"github.com/msomdec/agun-web/internal/repository/sqlite"
	"github.com/msomdec/agun-web/internal/service"
	"github.com/msomdec/agun-web/internal/wizard"
)

type stubRegistrar struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
	got     domain.Profile
	mu      sync.Mutex
}

func (s *stubRegistrar) Register(_ context.Context, p domain.Profile) (*domain.Registration, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.got = p
	s.mu.Unlock()
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Registration{ID: "1", Email: p.Email, FullName: p.FullName()}, nil
}

func newTestRegistration(t *testing.T, reg wizard.Registrar, submitTimeout time.Duration) (*service.RegistrationService, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background(), sqlite.WebSchema); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	locs, err := location.LoadEmbedded(language.French)
	if err != nil {
		t.Fatalf("LoadEmbedded: %v", err)
	}
	return service.NewRegistrationService(db.Drafts(), locs, reg, submitTimeout), db
}

var completeForm = map[wizard.Field]string{
	wizard.FieldFirstName:       "Awa",
	wizard.FieldLastName:        "Diallo",
	wizard.FieldBirthDate:       "1998-04-02",
	wizard.FieldGender:          string(domain.GenderFemale),
	wizard.FieldStatus:          string(domain.StatusStudent),
	wizard.FieldNationality:     "sn",
	wizard.FieldOriginCity:      "dakar",
	wizard.FieldCountry:         "fr",
	wizard.FieldCity:            "lyon",
	wizard.FieldEmail:           "awa@example.com",
	wizard.FieldPassword:        "abc123",
	wizard.FieldConfirmPassword: "abc123",
}

// readyFlow walks a fresh draft to step 3 and persists it.
func readyFlow(t *testing.T, svc *service.RegistrationService) *service.Flow {
	t.Helper()
	ctx := context.Background()
	f, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.Wizard.Apply(completeForm); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.Wizard.Next(); err != nil {
			t.Fatalf("Next %d: %v", i+1, err)
		}
	}
	if err := svc.Save(ctx, f); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return f
}

func TestRegistrationService_StartLoadSave(t *testing.T) {
	svc, _ := newTestRegistration(t, &stubRegistrar{}, time.Minute)
	ctx := context.Background()

	f, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if f.Wizard.Phase() != domain.PhaseStep1 {
		t.Fatalf("expected step1, got %s", f.Wizard.Phase())
	}
	if f.Wizard.Draft().Status != domain.StatusStudent {
		t.Fatalf("expected default status Student, got %q", f.Wizard.Draft().Status)
	}

	if err := f.Wizard.Set(wizard.FieldFirstName, "Awa"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := svc.Save(ctx, f); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := svc.Load(ctx, f.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Wizard.Draft().FirstName != "Awa" {
		t.Fatalf("expected first name to persist, got %q", loaded.Wizard.Draft().FirstName)
	}

	if _, err := svc.Load(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistrationService_SubmitSuccessDeletesDraft(t *testing.T) {
	reg := &stubRegistrar{}
	svc, _ := newTestRegistration(t, reg, time.Minute)
	ctx := context.Background()
	f := readyFlow(t, svc)

	if err := f.Wizard.Apply(map[wizard.Field]string{
		wizard.FieldPassword:        "abc123",
		wizard.FieldConfirmPassword: "abc123",
	}); err != nil {
		t.Fatalf("Apply passwords: %v", err)
	}

	confirmation, err := svc.Submit(ctx, f)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if confirmation.Email != "awa@example.com" {
		t.Fatalf("unexpected confirmation %+v", confirmation)
	}
	if f.Wizard.Phase() != domain.PhaseCompleted {
		t.Fatalf("expected completed, got %s", f.Wizard.Phase())
	}
	if reg.got.FullName() != "Awa Diallo" || reg.got.City != "lyon" {
		t.Fatalf("unexpected profile sent: %+v", reg.got)
	}
	if _, err := svc.Load(ctx, f.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("completed draft must be discarded, got %v", err)
	}
}

func TestRegistrationService_PasswordMismatchNeverCallsBackend(t *testing.T) {
	reg := &stubRegistrar{}
	svc, _ := newTestRegistration(t, reg, time.Minute)
	f := readyFlow(t, svc)

	if err := f.Wizard.Apply(map[wizard.Field]string{
		wizard.FieldPassword:        "abc123",
		wizard.FieldConfirmPassword: "abc124",
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	_, err := svc.Submit(context.Background(), f)
	var stepErr *wizard.StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if stepErr.Fields[wizard.FieldConfirmPassword] != wizard.MsgPasswordMatch {
		t.Fatalf("expected mismatch message, got %v", stepErr.Fields)
	}
	if reg.calls.Load() != 0 {
		t.Fatal("backend must not be called")
	}
}

func TestRegistrationService_BackendFailureIsRetryable(t *testing.T) {
	reg := &stubRegistrar{err: domain.ErrDuplicateAccount}
	svc, _ := newTestRegistration(t, reg, time.Minute)
	ctx := context.Background()
	f := readyFlow(t, svc)

	if _, err := svc.Submit(ctx, f); !errors.Is(err, domain.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	loaded, err := svc.Load(ctx, f.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Wizard.Phase() != domain.PhaseFailed {
		t.Fatalf("expected failed, got %s", loaded.Wizard.Phase())
	}
	if loaded.Wizard.Failure() != service.MsgDuplicateAccount {
		t.Fatalf("unexpected failure message %q", loaded.Wizard.Failure())
	}
	if loaded.Wizard.Draft().Email != "awa@example.com" {
		t.Fatal("entered data must be preserved")
	}

	reg.err = nil
	if err := loaded.Wizard.Apply(map[wizard.Field]string{
		wizard.FieldPassword:        "abc123",
		wizard.FieldConfirmPassword: "abc123",
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, err := svc.Submit(ctx, loaded); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if reg.calls.Load() != 2 {
		t.Fatalf("expected 2 backend calls, got %d", reg.calls.Load())
	}
}

func TestRegistrationService_ConcurrentSubmitReachesBackendOnce(t *testing.T) {
	reg := &stubRegistrar{release: make(chan struct{})}
	svc, _ := newTestRegistration(t, reg, time.Minute)
	ctx := context.Background()
	f := readyFlow(t, svc)

	second, err := svc.Load(ctx, f.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, fl := range []*service.Flow{f, second} {
		if err := fl.Wizard.Apply(map[wizard.Field]string{
			wizard.FieldPassword:        "abc123",
			wizard.FieldConfirmPassword: "abc123",
		}); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, f)
		done <- err
	}()

	// Wait until the first submission holds the claim.
	deadline := time.Now().Add(5 * time.Second)
	for reg.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first submission never reached the backend")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := svc.Submit(ctx, second); !errors.Is(err, domain.ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}

	close(reg.release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if reg.calls.Load() != 1 {
		t.Fatalf("expected exactly one backend call, got %d", reg.calls.Load())
	}
}

func TestRegistrationService_LoadResumesInterruptedSubmission(t *testing.T) {
	svc, db := newTestRegistration(t, &stubRegistrar{}, 0)
	ctx := context.Background()
	f := readyFlow(t, svc)

	if ok, err := db.Drafts().ClaimSubmission(ctx, f.ID); err != nil || !ok {
		t.Fatalf("ClaimSubmission: ok=%v err=%v", ok, err)
	}
	time.Sleep(2 * time.Millisecond)

	loaded, err := svc.Load(ctx, f.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Wizard.Phase() != domain.PhaseFailed {
		t.Fatalf("expected failed, got %s", loaded.Wizard.Phase())
	}
	if loaded.Wizard.Failure() != service.MsgSubmitInterrupted {
		t.Fatalf("unexpected failure %q", loaded.Wizard.Failure())
	}
}

func TestRegistrationService_LoadKeepsFreshSubmission(t *testing.T) {
	svc, db := newTestRegistration(t, &stubRegistrar{}, time.Hour)
	ctx := context.Background()
	f := readyFlow(t, svc)

	if ok, err := db.Drafts().ClaimSubmission(ctx, f.ID); err != nil || !ok {
		t.Fatalf("ClaimSubmission: ok=%v err=%v", ok, err)
	}

	loaded, err := svc.Load(ctx, f.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Wizard.Phase() != domain.PhaseSubmitting {
		t.Fatalf("expected submitting, got %s", loaded.Wizard.Phase())
	}
	if err := loaded.Wizard.Set(wizard.FieldEmail, "x@example.com"); !errors.Is(err, domain.ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
}

func TestRegistrationService_PurgeStale(t *testing.T) {
	svc, _ := newTestRegistration(t, &stubRegistrar{}, time.Minute)
	ctx := context.Background()
	f, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if n, err := svc.PurgeStale(ctx, time.Hour); err != nil || n != 0 {
		t.Fatalf("fresh draft purged: n=%d err=%v", n, err)
	}
	if n, err := svc.PurgeStale(ctx, -time.Hour); err != nil || n != 1 {
		t.Fatalf("expected 1 purged draft: n=%d err=%v", n, err)
	}
	if _, err := svc.Load(ctx, f.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrDuplicateAccount, service.MsgDuplicateAccount},
		{&domain.ValidationError{Message: "bad"}, service.MsgRejectedProfile},
		{domain.ErrNetwork, service.MsgBackendUnreachable},
		{errors.New("boom"), service.MsgRegistrationFailed},
	}
	for _, tc := range tests {
		if got := service.FailureMessage(tc.err); got != tc.want {
			t.Errorf("FailureMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
