package casesession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carematch/carematch/internal/platform/db"
)

// MatchInvalidator drops cached rankings for a session whose inputs changed.
type MatchInvalidator interface {
	Invalidate(ctx context.Context, caseSessionID uuid.UUID)
}

type Service struct {
	sessions Repository
	profiles ProfileRepository
	tx       db.TxRunner
	matches  MatchInvalidator
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(sessions Repository, profiles ProfileRepository, tx db.TxRunner, matches MatchInvalidator, logger zerolog.Logger) *Service {
	return &Service{
		sessions: sessions,
		profiles: profiles,
		tx:       tx,
		matches:  matches,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.matches != nil {
		s.matches.Invalidate(ctx, id)
	}
}

func (s *Service) Open(ctx context.Context, payerID, jurisdiction *string) (*CaseSession, error) {
	cs := &CaseSession{PayerID: trimmed(payerID), Jurisdiction: trimmed(jurisdiction)}
	cs.Apply(NewProgress())
	if err := s.sessions.Create(ctx, cs); err != nil {
		return nil, fmt.Errorf("create case session: %w", err)
	}
	return cs, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CaseSession, error) {
	return s.sessions.GetByID(ctx, id)
}

func (s *Service) SetCoverage(ctx context.Context, id uuid.UUID, payerID, jurisdiction *string) error {
	if err := s.sessions.UpdateCoverage(ctx, id, trimmed(payerID), trimmed(jurisdiction)); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// RecordProfile stores the clinical profile produced by intake. A session still
// in intake moves to assessment.
func (s *Service) RecordProfile(ctx context.Context, p *ClinicalProfile) error {
	if p.RecipientAge < 0 || p.RecipientAge > 130 {
		return fmt.Errorf("recipient_age must be between 0 and 130")
	}
	for name, score := range p.SubscaleScores {
		if score < 0 {
			return fmt.Errorf("subscale %q must not be negative", name)
		}
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		cs, err := s.sessions.LockForUpdate(ctx, p.CaseSessionID)
		if err != nil {
			return err
		}
		if err := s.profiles.UpsertProfile(ctx, p); err != nil {
			return fmt.Errorf("save clinical profile: %w", err)
		}
		if cs.Progress.Stage != StatusIntake {
			return nil
		}
		next, err := cs.Progress.StartAssessment(s.now())
		if err != nil {
			return err
		}
		cs.Apply(next)
		return s.sessions.SaveProgress(ctx, cs)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, p.CaseSessionID)
	return nil
}

func (s *Service) SubmitAvailability(ctx context.Context, id uuid.UUID, windows []RequesterWindow) error {
	for i, w := range windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.sessions.GetByID(ctx, id); err != nil {
			return err
		}
		return s.profiles.ReplaceRequesterWindows(ctx, id, windows)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// MarkReadyToBook requires a payer and a completed assessment.
func (s *Service) MarkReadyToBook(ctx context.Context, id uuid.UUID) (*CaseSession, error) {
	var out *CaseSession
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		cs, err := s.sessions.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cs.PayerID == nil {
			return fmt.Errorf("%w: insurance payer is missing", ErrInvalidTransition)
		}
		profile, err := s.profiles.GetProfile(ctx, id)
		if err != nil && !errors.Is(err, ErrProfileNotFound) {
			return err
		}
		if !profile.AssessmentComplete() {
			return fmt.Errorf("%w: clinical assessment is not complete", ErrInvalidTransition)
		}
		next, err := cs.Progress.MarkReadyToBook(s.now())
		if err != nil {
			return err
		}
		cs.Apply(next)
		out = cs
		return s.sessions.SaveProgress(ctx, cs)
	})
	return out, err
}

func (s *Service) Close(ctx context.Context, id uuid.UUID) (*CaseSession, error) {
	var out *CaseSession
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		cs, err := s.sessions.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := cs.Progress.Close(s.now())
		if err != nil {
			return err
		}
		cs.Apply(next)
		out = cs
		return s.sessions.SaveProgress(ctx, cs)
	})
	if err == nil {
		s.invalidate(ctx, id)
	}
	return out, err
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
