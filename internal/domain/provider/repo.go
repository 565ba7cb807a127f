package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("provider not found")

type Repository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	// LockForUpdate reads the provider row under an exclusive row lock; it must
	// run inside a transaction.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Provider, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// ListActiveByPayer returns active providers accepting payer, age ranges loaded.
	ListActiveByPayer(ctx context.Context, payer string) ([]*Provider, error)
}

type AvailabilityRepository interface {
	ListWindows(ctx context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error)
	ReplaceWindows(ctx context.Context, providerID uuid.UUID, windows []AvailabilityWindow) error
	ListTimeOff(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]TimeOff, error)
	AddTimeOff(ctx context.Context, t *TimeOff) error
}
