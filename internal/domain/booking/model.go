package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
)

type LocationType string

const (
	LocationTelehealth LocationType = "telehealth"
	LocationInPerson   LocationType = "in_person"
)

func (l LocationType) Valid() bool {
	return l == LocationTelehealth || l == LocationInPerson
}

// ReasonRescheduled is the cancellation reason stamped on a replaced appointment.
const ReasonRescheduled = "rescheduled"

// Appointment maps to the appointments table. A cancelled appointment is never
// scheduled again; rescheduling creates a new row pointing back via RescheduledFrom.
type Appointment struct {
	ID                 uuid.UUID    `db:"id" json:"id"`
	ProviderID         uuid.UUID    `db:"provider_id" json:"provider_id"`
	CaseSessionID      uuid.UUID    `db:"case_session_id" json:"case_session_id"`
	StartTime          time.Time    `db:"start_time" json:"start_time"`
	EndTime            time.Time    `db:"end_time" json:"end_time"`
	DurationMinutes    int          `db:"duration_minutes" json:"duration_minutes"`
	LocationType       LocationType `db:"location_type" json:"location_type"`
	MeetingRef         string       `db:"meeting_ref" json:"meeting_ref"`
	Status             Status       `db:"status" json:"status"`
	CancelledAt        *time.Time   `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string      `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	RescheduledFrom    *uuid.UUID   `db:"rescheduled_from" json:"rescheduled_from,omitempty"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
}

// Overlaps applies the half-open interval test existing.start < end && existing.end > start.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && a.EndTime.After(start)
}

func (a *Appointment) Active() bool {
	return a.Status == StatusScheduled
}
