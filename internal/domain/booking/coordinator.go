package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carematch/carematch/internal/domain/casesession"
	"github.com/carematch/carematch/internal/domain/provider"
	"github.com/carematch/carematch/internal/platform/db"
	"github.com/carematch/carematch/internal/platform/metrics"
	"github.com/carematch/carematch/internal/platform/telemetry"
	"github.com/carematch/carematch/pkg/pagination"
)

// ProviderLocker is the slice of provider.Repository the coordinator needs.
type ProviderLocker interface {
	LockForUpdate(ctx context.Context, id uuid.UUID) (*provider.Provider, error)
}

// SessionLocker is the slice of casesession.Repository the coordinator needs.
type SessionLocker interface {
	LockForUpdate(ctx context.Context, id uuid.UUID) (*casesession.CaseSession, error)
	SaveProgress(ctx context.Context, s *casesession.CaseSession) error
}

// MatchInvalidator drops cached rankings once a session's booking state changes.
type MatchInvalidator interface {
	Invalidate(ctx context.Context, caseSessionID uuid.UUID)
}

type Config struct {
	CancellationWindow time.Duration
	// MaxDuration caps the length of a single appointment.
	MaxDuration     time.Duration
	MeetingBaseURL  string
	DefaultLocation LocationType
}

func (c *Config) applyDefaults() {
	if c.CancellationWindow <= 0 {
		c.CancellationWindow = 24 * time.Hour
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 8 * time.Hour
	}
	if c.DefaultLocation == "" {
		c.DefaultLocation = LocationTelehealth
	}
	c.MeetingBaseURL = strings.TrimRight(c.MeetingBaseURL, "/")
}

// Coordinator commits bookings. Every operation runs in one transaction and
// takes row locks in the order provider, case session, appointment.
type Coordinator struct {
	cfg          Config
	providers    ProviderLocker
	sessions     SessionLocker
	appointments Repository
	tx           db.TxRunner
	matches      MatchInvalidator
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

func NewCoordinator(cfg Config, providers ProviderLocker, sessions SessionLocker, appointments Repository,
	tx db.TxRunner, m *metrics.Metrics, logger zerolog.Logger) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:          cfg,
		providers:    providers,
		sessions:     sessions,
		appointments: appointments,
		tx:           tx,
		metrics:      m,
		logger:       logger.With().Str("component", "booking").Logger(),
		now:          time.Now,
	}
}

// SetMatchInvalidator registers the ranking cache to clear after commits.
func (c *Coordinator) SetMatchInvalidator(m MatchInvalidator) {
	c.matches = m
}

type CreateRequest struct {
	CaseSessionID   uuid.UUID    `json:"case_session_id"`
	ProviderID      uuid.UUID    `json:"provider_id"`
	StartTime       time.Time    `json:"start_time"`
	DurationMinutes *int         `json:"duration_minutes,omitempty"`
	LocationType    LocationType `json:"location_type,omitempty"`
}

func notFound(err error) error {
	return fmt.Errorf("%w: %w", ErrNotFound, err)
}

func (c *Coordinator) lockProvider(ctx context.Context, id uuid.UUID) (*provider.Provider, error) {
	p, err := c.providers.LockForUpdate(ctx, id)
	if errors.Is(err, provider.ErrNotFound) {
		return nil, notFound(err)
	}
	return p, err
}

func (c *Coordinator) lockSession(ctx context.Context, id uuid.UUID) (*casesession.CaseSession, error) {
	s, err := c.sessions.LockForUpdate(ctx, id)
	if errors.Is(err, casesession.ErrNotFound) {
		return nil, notFound(err)
	}
	return s, err
}

func (c *Coordinator) lockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := c.appointments.LockForUpdate(ctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, notFound(err)
	}
	return a, err
}

func (c *Coordinator) meetingRef() string {
	ref := uuid.NewString()
	if c.cfg.MeetingBaseURL == "" {
		return ref
	}
	return c.cfg.MeetingBaseURL + "/" + ref
}

// checkWindow enforces the minimum lead time before an appointment may change.
// Exactly CancellationWindow ahead is allowed.
func (c *Coordinator) checkWindow(a *Appointment, now time.Time) []string {
	if a.StartTime.Sub(now) < c.cfg.CancellationWindow {
		return []string{fmt.Sprintf("appointments cannot be changed less than %s before they start", formatWindow(c.cfg.CancellationWindow))}
	}
	return nil
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return d.String()
}

func (c *Coordinator) checkOverlap(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude *uuid.UUID) ([]string, error) {
	conflicts, err := c.appointments.ListOverlapping(ctx, providerID, start, end, exclude)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if len(conflicts) > 0 {
		return []string{ReasonSlotUnavailable}, nil
	}
	return nil, nil
}

// insert maps an exclusion-constraint hit to the same outcome as a failed
// overlap check.
func (c *Coordinator) insert(ctx context.Context, a *Appointment) error {
	if err := c.appointments.Create(ctx, a); err != nil {
		if db.IsExclusionViolation(err) {
			return &ValidationError{Reasons: []string{ReasonSlotUnavailable}}
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// Create books a new appointment for a ready-to-book case session.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	ctx, span := telemetry.StartSpan(ctx, "booking.Create",
		attribute.String("provider.id", req.ProviderID.String()),
		attribute.String("case_session.id", req.CaseSessionID.String()),
	)
	var created *Appointment
	err := c.tx.WithTx(ctx, func(ctx context.Context) error {
		created = nil

		p, err := c.lockProvider(ctx, req.ProviderID)
		if err != nil {
			return err
		}
		s, err := c.lockSession(ctx, req.CaseSessionID)
		if err != nil {
			return err
		}

		now := c.now()
		var reasons []string
		if !p.Active {
			reasons = append(reasons, "provider is not accepting appointments")
		}
		if s.Status != casesession.StatusReadyToBook {
			reasons = append(reasons, fmt.Sprintf("case session is not ready to book (status %s)", s.Status))
		}
		if !req.StartTime.After(now) {
			reasons = append(reasons, "start time must be in the future")
		}
		duration := p.DefaultDurationMinutes
		if req.DurationMinutes != nil {
			duration = *req.DurationMinutes
		}
		maxMinutes := int(c.cfg.MaxDuration / time.Minute)
		validDuration := duration > 0 && duration <= maxMinutes
		if !validDuration {
			reasons = append(reasons, fmt.Sprintf("duration must be between 1 and %d minutes", maxMinutes))
		}
		location := req.LocationType
		if location == "" {
			location = c.cfg.DefaultLocation
		}
		if !location.Valid() {
			reasons = append(reasons, fmt.Sprintf("unknown location type %q", location))
		}

		start := req.StartTime.UTC()
		var end time.Time
		if validDuration {
			end = start.Add(time.Duration(duration) * time.Minute)
			if !end.After(start) {
				reasons = append(reasons, "appointment must end after it starts")
				validDuration = false
			}
		}
		if validDuration {
			conflict, err := c.checkOverlap(ctx, p.ID, start, end, nil)
			if err != nil {
				return err
			}
			reasons = append(reasons, conflict...)
		}
		if len(reasons) > 0 {
			return &ValidationError{Reasons: reasons}
		}

		a := &Appointment{
			ID:              uuid.New(),
			ProviderID:      p.ID,
			CaseSessionID:   s.ID,
			StartTime:       start,
			EndTime:         end,
			DurationMinutes: duration,
			LocationType:    location,
			MeetingRef:      c.meetingRef(),
			Status:          StatusScheduled,
		}
		if err := c.insert(ctx, a); err != nil {
			return err
		}

		next, err := s.Progress.BookAppointment(a.ID, now)
		if err != nil {
			return err
		}
		s.Apply(next)
		if err := c.sessions.SaveProgress(ctx, s); err != nil {
			return fmt.Errorf("advance case session: %w", err)
		}
		created = a
		return nil
	})
	c.finish(ctx, "create", req.CaseSessionID, err)
	telemetry.EndSpan(span, unexpected(err))
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Cancel cancels a scheduled appointment and hands its case session back to
// ready_to_book.
func (c *Coordinator) Cancel(ctx context.Context, appointmentID uuid.UUID, reason *string) (*Appointment, error) {
	ctx, span := telemetry.StartSpan(ctx, "booking.Cancel",
		attribute.String("appointment.id", appointmentID.String()))

	var cancelled *Appointment
	var sessionID uuid.UUID
	err := c.tx.WithTx(ctx, func(ctx context.Context) error {
		cancelled = nil

		current, err := c.appointments.GetByID(ctx, appointmentID)
		if errors.Is(err, ErrAppointmentNotFound) {
			return notFound(err)
		}
		if err != nil {
			return err
		}
		sessionID = current.CaseSessionID

		s, err := c.lockSession(ctx, current.CaseSessionID)
		if err != nil {
			return err
		}
		a, err := c.lockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}

		now := c.now()
		var reasons []string
		if !a.Active() {
			reasons = append(reasons, "appointment is already cancelled")
		}
		reasons = append(reasons, c.checkWindow(a, now)...)
		if len(reasons) > 0 {
			return &ValidationError{Reasons: reasons}
		}

		if err := c.appointments.Cancel(ctx, a.ID, now, reason); err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		a.Status = StatusCancelled
		a.CancelledAt = &now
		a.CancellationReason = reason

		if s.Progress.AppointmentID != nil && *s.Progress.AppointmentID == a.ID {
			next, err := s.Progress.ReleaseAppointment(now)
			if err != nil {
				return err
			}
			s.Apply(next)
			if err := c.sessions.SaveProgress(ctx, s); err != nil {
				return fmt.Errorf("release case session: %w", err)
			}
		}
		cancelled = a
		return nil
	})
	c.finish(ctx, "cancel", sessionID, err)
	telemetry.EndSpan(span, unexpected(err))
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// Reschedule replaces a scheduled appointment with a new one at newStart. The
// old row is cancelled with reason "rescheduled"; both writes commit together.
func (c *Coordinator) Reschedule(ctx context.Context, appointmentID uuid.UUID, newStart time.Time) (*Appointment, error) {
	ctx, span := telemetry.StartSpan(ctx, "booking.Reschedule",
		attribute.String("appointment.id", appointmentID.String()))

	var replacement *Appointment
	var sessionID uuid.UUID
	err := c.tx.WithTx(ctx, func(ctx context.Context) error {
		replacement = nil

		current, err := c.appointments.GetByID(ctx, appointmentID)
		if errors.Is(err, ErrAppointmentNotFound) {
			return notFound(err)
		}
		if err != nil {
			return err
		}
		sessionID = current.CaseSessionID

		p, err := c.lockProvider(ctx, current.ProviderID)
		if err != nil {
			return err
		}
		s, err := c.lockSession(ctx, current.CaseSessionID)
		if err != nil {
			return err
		}
		old, err := c.lockAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}

		now := c.now()
		var reasons []string
		if !old.Active() {
			reasons = append(reasons, "appointment is already cancelled")
		}
		reasons = append(reasons, c.checkWindow(old, now)...)
		if !p.Active {
			reasons = append(reasons, "provider is not accepting appointments")
		}
		if !newStart.After(now) {
			reasons = append(reasons, "start time must be in the future")
		}

		start := newStart.UTC()
		end := start.Add(time.Duration(old.DurationMinutes) * time.Minute)
		conflict, err := c.checkOverlap(ctx, p.ID, start, end, &old.ID)
		if err != nil {
			return err
		}
		reasons = append(reasons, conflict...)
		if len(reasons) > 0 {
			return &ValidationError{Reasons: reasons}
		}

		rescheduled := ReasonRescheduled
		if err := c.appointments.Cancel(ctx, old.ID, now, &rescheduled); err != nil {
			return fmt.Errorf("cancel replaced appointment: %w", err)
		}

		oldID := old.ID
		a := &Appointment{
			ID:              uuid.New(),
			ProviderID:      old.ProviderID,
			CaseSessionID:   old.CaseSessionID,
			StartTime:       start,
			EndTime:         end,
			DurationMinutes: old.DurationMinutes,
			LocationType:    old.LocationType,
			MeetingRef:      old.MeetingRef,
			Status:          StatusScheduled,
			RescheduledFrom: &oldID,
		}
		if err := c.insert(ctx, a); err != nil {
			return err
		}

		if s.Progress.AppointmentID != nil && *s.Progress.AppointmentID == old.ID {
			next, err := s.Progress.ReplaceAppointment(a.ID)
			if err != nil {
				return err
			}
			s.Apply(next)
			if err := c.sessions.SaveProgress(ctx, s); err != nil {
				return fmt.Errorf("update case session: %w", err)
			}
		}
		replacement = a
		return nil
	})
	c.finish(ctx, "reschedule", sessionID, err)
	telemetry.EndSpan(span, unexpected(err))
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// Get returns an appointment without locking it.
func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := c.appointments.GetByID(ctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, notFound(err)
	}
	return a, err
}

func (c *Coordinator) ListByProvider(ctx context.Context, providerID uuid.UUID, from *time.Time, p pagination.Params) ([]*Appointment, int, error) {
	return c.appointments.ListByProvider(ctx, providerID, from, p)
}

func (c *Coordinator) finish(ctx context.Context, op string, sessionID uuid.UUID, err error) {
	var verr *ValidationError
	switch {
	case err == nil:
		c.metrics.BookingOutcome(op, "success")
		if c.matches != nil && sessionID != uuid.Nil {
			c.matches.Invalidate(ctx, sessionID)
		}
	case errors.As(err, &verr):
		c.metrics.BookingOutcome(op, string(KindValidation))
		c.logger.Info().Str("operation", op).Strs("reasons", verr.Reasons).Msg("booking rejected")
	case errors.Is(err, ErrNotFound):
		c.metrics.BookingOutcome(op, string(KindNotFound))
	default:
		c.metrics.BookingOutcome(op, "error")
		c.logger.Error().Err(err).Str("operation", op).Msg("booking failed")
	}
}

// unexpected filters out the outcomes callers are meant to handle.
func unexpected(err error) error {
	if _, ok := OutcomeOf(nil, err); ok {
		return nil
	}
	return err
}
