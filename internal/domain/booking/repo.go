package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carematch/carematch/pkg/pagination"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// LockForUpdate reads the appointment under an exclusive row lock; it must
	// run inside a transaction.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListOverlapping returns scheduled appointments of the provider that
	// intersect [start, end), skipping exclude when it is non-nil.
	ListOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]*Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, at time.Time, reason *string) error
	ListByProvider(ctx context.Context, providerID uuid.UUID, from *time.Time, p pagination.Params) ([]*Appointment, int, error)
}
