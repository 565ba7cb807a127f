package casesession

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/carematch/carematch/internal/domain/provider"
)

type Status string

const (
	StatusIntake            Status = "intake"
	StatusAssessment        Status = "assessment"
	StatusReadyToBook       Status = "ready_to_book"
	StatusAppointmentBooked Status = "appointment_booked"
	StatusClosed            Status = "closed"
)

var ErrInvalidTransition = errors.New("invalid case session transition")

var transitions = map[Status][]Status{
	StatusIntake:            {StatusAssessment, StatusClosed},
	StatusAssessment:        {StatusReadyToBook, StatusClosed},
	StatusReadyToBook:       {StatusAppointmentBooked, StatusClosed},
	StatusAppointmentBooked: {StatusReadyToBook, StatusClosed},
}

// Progress is the versioned lifecycle state of a case session. Values are
// immutable; every transition returns a copy with Version incremented.
type Progress struct {
	Version       int        `json:"version"`
	Stage         Status     `json:"stage"`
	AssessmentAt  *time.Time `json:"assessment_at,omitempty"`
	ReadyAt       *time.Time `json:"ready_at,omitempty"`
	BookedAt      *time.Time `json:"booked_at,omitempty"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// NewProgress is the state of a freshly opened session.
func NewProgress() Progress {
	return Progress{Version: 1, Stage: StatusIntake}
}

func (p Progress) advance(to Status) (Progress, error) {
	if !slices.Contains(transitions[p.Stage], to) {
		return p, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Stage, to)
	}
	next := p
	next.Stage = to
	next.Version++
	return next, nil
}

func (p Progress) StartAssessment(at time.Time) (Progress, error) {
	next, err := p.advance(StatusAssessment)
	if err != nil {
		return p, err
	}
	next.AssessmentAt = &at
	return next, nil
}

func (p Progress) MarkReadyToBook(at time.Time) (Progress, error) {
	next, err := p.advance(StatusReadyToBook)
	if err != nil {
		return p, err
	}
	next.ReadyAt = &at
	return next, nil
}

// BookAppointment records the appointment now attached to the session.
func (p Progress) BookAppointment(appointmentID uuid.UUID, at time.Time) (Progress, error) {
	next, err := p.advance(StatusAppointmentBooked)
	if err != nil {
		return p, err
	}
	next.BookedAt = &at
	next.AppointmentID = &appointmentID
	next.ReleasedAt = nil
	return next, nil
}

// ReleaseAppointment returns the session to ready_to_book after its appointment is cancelled.
func (p Progress) ReleaseAppointment(at time.Time) (Progress, error) {
	next, err := p.advance(StatusReadyToBook)
	if err != nil {
		return p, err
	}
	next.ReleasedAt = &at
	next.AppointmentID = nil
	return next, nil
}

// ReplaceAppointment points a booked session at a rescheduled appointment.
func (p Progress) ReplaceAppointment(appointmentID uuid.UUID) (Progress, error) {
	if p.Stage != StatusAppointmentBooked {
		return p, fmt.Errorf("%w: %s has no appointment to replace", ErrInvalidTransition, p.Stage)
	}
	next := p
	next.AppointmentID = &appointmentID
	next.Version++
	return next, nil
}

func (p Progress) Close(at time.Time) (Progress, error) {
	next, err := p.advance(StatusClosed)
	if err != nil {
		return p, err
	}
	next.ClosedAt = &at
	return next, nil
}

// CaseSession maps to the case_sessions table.
type CaseSession struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Status       Status    `db:"status" json:"status"`
	PayerID      *string   `db:"payer_id" json:"payer_id,omitempty"`
	Jurisdiction *string   `db:"jurisdiction" json:"jurisdiction,omitempty"`
	Progress     Progress  `db:"progress" json:"progress"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Apply installs next as the session's progress and mirrors its stage into Status.
func (s *CaseSession) Apply(next Progress) {
	s.Progress = next
	s.Status = next.Stage
}

// ClinicalProfile maps to the clinical_profiles table. Subscale scores are
// computed upstream by the assessment instruments.
type ClinicalProfile struct {
	CaseSessionID         uuid.UUID          `db:"case_session_id" json:"case_session_id"`
	RecipientAge          int                `db:"recipient_age" json:"recipient_age"`
	ConcernSummary        string             `db:"concern_summary" json:"concern_summary"`
	SubscaleScores        map[string]float64 `db:"subscale_scores" json:"subscale_scores"`
	AssessmentCompletedAt *time.Time         `db:"assessment_completed_at" json:"assessment_completed_at,omitempty"`
}

func (p *ClinicalProfile) AssessmentComplete() bool {
	return p != nil && p.AssessmentCompletedAt != nil
}

// RequesterWindow is a weekly window the requester says they can attend.
type RequesterWindow struct {
	DayOfWeek provider.Weekday   `json:"day_of_week"`
	StartTime provider.LocalTime `json:"start_time"`
	EndTime   provider.LocalTime `json:"end_time"`
	TimeZone  string             `json:"time_zone"`
}

func (w RequesterWindow) Validate() error {
	return provider.AvailabilityWindow{
		DayOfWeek: w.DayOfWeek,
		StartTime: w.StartTime,
		EndTime:   w.EndTime,
		TimeZone:  w.TimeZone,
	}.Validate()
}
