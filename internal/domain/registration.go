package domain

import (
	"context"
	"strings"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Genders lists the accepted genders in display order.
var Genders = []Gender{GenderMale, GenderFemale, GenderOther}

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

type Status string

const (
	StatusStudent      Status = "Student"
	StatusEmployed     Status = "Employed"
	StatusEntrepreneur Status = "Entrepreneur"
)

// Statuses lists the accepted statuses in display order.
var Statuses = []Status{StatusStudent, StatusEmployed, StatusEntrepreneur}

func (s Status) Valid() bool {
	switch s {
	case StatusStudent, StatusEmployed, StatusEntrepreneur:
		return true
	}
	return false
}

// Draft is the in-progress registration form. Passwords are never persisted.
type Draft struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	BirthDate       string `json:"birth_date"` // YYYY-MM-DD as entered
	Gender          Gender `json:"gender"`
	Status          Status `json:"status"`
	Nationality     string `json:"nationality"`
	OriginCity      string `json:"origin_city"`
	Country         string `json:"country"` // country of residence
	City            string `json:"city"`    // city of residence
	Email           string `json:"email"`
	Password        string `json:"-"`
	ConfirmPassword string `json:"-"`
}

// NewDraft returns an empty draft with the default status.
func NewDraft() Draft {
	return Draft{Status: StatusStudent}
}

// Profile is a fully validated draft, ready to be submitted to the backend.
type Profile struct {
	FirstName   string
	LastName    string
	BirthDate   time.Time
	Gender      Gender
	Status      Status
	Nationality string
	OriginCity  string
	Country     string
	City        string
	Email       string
	Password    string
}

// FullName joins first and last name the way the backend stores it.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Phase is the registration wizard's state.
type Phase string

const (
	PhaseStep1      Phase = "step1"
	PhaseStep2      Phase = "step2"
	PhaseStep3      Phase = "step3"
	PhaseSubmitting Phase = "submitting"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseStep1, PhaseStep2, PhaseStep3, PhaseSubmitting, PhaseCompleted, PhaseFailed:
		return true
	}
	return false
}

// DraftRecord is a persisted wizard: its phase, draft and last failure message.
type DraftRecord struct {
	ID        string
	Phase     Phase
	Draft     Draft
	Failure   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DraftRepository persists registration wizards between requests.
type DraftRepository interface {
	Create(ctx context.Context, record *DraftRecord) error
	GetByID(ctx context.Context, id string) (*DraftRecord, error)
	Update(ctx context.Context, record *DraftRecord) error
	// ClaimSubmission atomically moves the draft to PhaseSubmitting.
	// It reports false when another submission already holds the draft.
	ClaimSubmission(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
