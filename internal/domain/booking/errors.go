package booking

import (
	"errors"
	"strings"
)

// ErrNotFound wraps the not-found error of whichever record was missing.
var ErrNotFound = errors.New("not found")

// ErrAppointmentNotFound is returned by the repository for unknown appointment ids.
var ErrAppointmentNotFound = errors.New("appointment not found")

// ReasonSlotUnavailable is reported to every booking that loses an overlap race.
const ReasonSlotUnavailable = "slot no longer available"

// ValidationError carries every business rule a booking request broke.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "booking rejected: " + strings.Join(e.Reasons, "; ")
}

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
)

// Outcome is the uniform result of Create, Cancel and Reschedule.
type Outcome struct {
	Success     bool         `json:"success"`
	Appointment *Appointment `json:"appointment,omitempty"`
	ErrorKind   ErrorKind    `json:"error_kind,omitempty"`
	Reasons     []string     `json:"reasons,omitempty"`
}

// OutcomeOf folds an operation result into an Outcome. ok is false when err is
// neither a validation nor a not-found failure.
func OutcomeOf(a *Appointment, err error) (out Outcome, ok bool) {
	if err == nil {
		return Outcome{Success: true, Appointment: a}, true
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return Outcome{ErrorKind: KindValidation, Reasons: verr.Reasons}, true
	}
	if errors.Is(err, ErrNotFound) {
		return Outcome{ErrorKind: KindNotFound, Reasons: []string{err.Error()}}, true
	}
	return Outcome{}, false
}
