package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carematch/carematch/internal/platform/db"
)

type Service struct {
	providers    Repository
	availability AvailabilityRepository
	tx           db.TxRunner
}

func NewService(providers Repository, availability AvailabilityRepository, tx db.TxRunner) *Service {
	return &Service{providers: providers, availability: availability, tx: tx}
}

// -- Provider --

func (s *Service) CreateProvider(ctx context.Context, p *Provider) error {
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("display_name is required")
	}
	if strings.TrimSpace(p.LicenseJurisdiction) == "" {
		return fmt.Errorf("license_jurisdiction is required")
	}
	if p.DefaultDurationMinutes <= 0 {
		return fmt.Errorf("default_duration_minutes must be positive")
	}
	if p.BufferMinutes < 0 {
		return fmt.Errorf("buffer_minutes must not be negative")
	}
	for _, r := range p.AgeRanges {
		if r.Min < 0 || r.Min > r.Max {
			return fmt.Errorf("invalid age range %d-%d", r.Min, r.Max)
		}
	}
	p.Active = true
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.providers.Create(ctx, p)
	})
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) DeactivateProvider(ctx context.Context, id uuid.UUID) error {
	return s.providers.SetActive(ctx, id, false)
}

// -- Availability --

func (s *Service) ListWindows(ctx context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error) {
	if _, err := s.providers.GetByID(ctx, providerID); err != nil {
		return nil, err
	}
	return s.availability.ListWindows(ctx, providerID)
}

// ReplaceWindows swaps the provider's whole window set atomically.
func (s *Service) ReplaceWindows(ctx context.Context, providerID uuid.UUID, windows []AvailabilityWindow) error {
	for i, w := range windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.providers.GetByID(ctx, providerID); err != nil {
			return err
		}
		return s.availability.ReplaceWindows(ctx, providerID, windows)
	})
}

func (s *Service) AddTimeOff(ctx context.Context, t *TimeOff) error {
	if t.StartDate.IsZero() || t.EndDate.IsZero() {
		return fmt.Errorf("start_date and end_date are required")
	}
	if DateKey(t.EndDate) < DateKey(t.StartDate) {
		return fmt.Errorf("end_date must not be before start_date")
	}
	if _, err := s.providers.GetByID(ctx, t.ProviderID); err != nil {
		return err
	}
	return s.availability.AddTimeOff(ctx, t)
}
