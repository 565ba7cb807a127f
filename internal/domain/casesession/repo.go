package casesession

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("case session not found")
	ErrProfileNotFound = errors.New("clinical profile not found")
	ErrStaleProgress   = errors.New("case session progress was modified concurrently")
)

type Repository interface {
	Create(ctx context.Context, s *CaseSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*CaseSession, error)
	// LockForUpdate reads the session under an exclusive row lock; it must run
	// inside a transaction.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*CaseSession, error)
	UpdateCoverage(ctx context.Context, id uuid.UUID, payerID, jurisdiction *string) error
	// SaveProgress persists s.Progress and s.Status, failing with
	// ErrStaleProgress unless the stored version is s.Progress.Version-1.
	SaveProgress(ctx context.Context, s *CaseSession) error
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, caseSessionID uuid.UUID) (*ClinicalProfile, error)
	UpsertProfile(ctx context.Context, p *ClinicalProfile) error
	ListRequesterWindows(ctx context.Context, caseSessionID uuid.UUID) ([]RequesterWindow, error)
	ReplaceRequesterWindows(ctx context.Context, caseSessionID uuid.UUID, windows []RequesterWindow) error
}
