// Package availability expands providers' recurring weekly windows and time-off
// exclusions into bookable slots.
package availability

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carematch/carematch/internal/domain/provider"
)

// Slot is a candidate, not yet committed interval. Slots are never stored.
type Slot struct {
	ProviderID      uuid.UUID `json:"provider_id"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Overlaps reports whether two slots name the same real-world resource.
func (s Slot) Overlaps(o Slot) bool {
	return s.ProviderID == o.ProviderID && s.Start.Before(o.End) && s.End.After(o.Start)
}

type ProviderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*provider.Provider, error)
}

type Resolver struct {
	providers    ProviderReader
	availability provider.AvailabilityRepository
	logger       zerolog.Logger
}

func NewResolver(providers ProviderReader, availability provider.AvailabilityRepository, logger zerolog.Logger) *Resolver {
	return &Resolver{providers: providers, availability: availability, logger: logger}
}

// schedule is the provider data slot expansion works from, loaded once per call.
type schedule struct {
	providerID uuid.UUID
	step       time.Duration
	duration   int
	windows    []provider.AvailabilityWindow
	zones      []*time.Location
	timeOff    []provider.TimeOff
}

// ComputeSlots returns the slots of providerID for every calendar date in
// [startDate, endDate], expressed in loc. Lookups happen before it returns;
// iterating the sequence performs no I/O and can be repeated.
func (r *Resolver) ComputeSlots(ctx context.Context, providerID uuid.UUID, startDate, endDate time.Time, loc *time.Location) (iter.Seq[Slot], error) {
	if loc == nil {
		loc = time.UTC
	}
	sched, err := r.load(ctx, providerID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return sched.slots(startDate, endDate, loc), nil
}

// NextAvailable returns the first slot starting after from within horizonDays
// calendar days, or false when there is none.
func (r *Resolver) NextAvailable(ctx context.Context, providerID uuid.UUID, from time.Time, horizonDays int) (Slot, bool, error) {
	end := from.AddDate(0, 0, horizonDays)
	// Windows live in their own zones, so start a day early to catch slots
	// whose local date precedes from's UTC date.
	seq, err := r.ComputeSlots(ctx, providerID, from.AddDate(0, 0, -1), end, time.UTC)
	if err != nil {
		return Slot{}, false, err
	}
	var best Slot
	found := false
	for s := range seq {
		if !s.Start.After(from) || s.Start.After(end) {
			continue
		}
		if !found || s.Start.Before(best.Start) {
			best, found = s, true
		}
	}
	return best, found, nil
}

func (r *Resolver) load(ctx context.Context, providerID uuid.UUID, startDate, endDate time.Time) (*schedule, error) {
	p, err := r.providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if p.SlotStep() <= 0 {
		return nil, fmt.Errorf("provider %s has no appointment duration", providerID)
	}

	windows, err := r.availability.ListWindows(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list availability windows: %w", err)
	}
	timeOff, err := r.availability.ListTimeOff(ctx, providerID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("list time off: %w", err)
	}

	sched := &schedule{
		providerID: providerID,
		step:       p.SlotStep(),
		duration:   p.DefaultDurationMinutes + p.BufferMinutes,
		timeOff:    timeOff,
	}
	for _, w := range windows {
		if !w.Repeating {
			continue
		}
		zone, err := time.LoadLocation(w.TimeZone)
		if err != nil {
			r.logger.Warn().Err(err).
				Str("provider_id", providerID.String()).
				Str("window_id", w.ID.String()).
				Msg("skipping availability window with unknown time zone")
			continue
		}
		sched.windows = append(sched.windows, w)
		sched.zones = append(sched.zones, zone)
	}
	return sched, nil
}

func (s *schedule) excluded(year int, month time.Month, day int) bool {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	for _, t := range s.timeOff {
		if t.Covers(d) {
			return true
		}
	}
	return false
}

func (s *schedule) slots(startDate, endDate time.Time, loc *time.Location) iter.Seq[Slot] {
	first := provider.Date(startDate)
	last := provider.Date(endDate)

	return func(yield func(Slot) bool) {
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			y, m, day := d.Date()
			if s.excluded(y, m, day) {
				continue
			}
			weekday := provider.WeekdayOf(d)
			for i, w := range s.windows {
				if w.DayOfWeek != weekday {
					continue
				}
				zone := s.zones[i]
				windowEnd := w.EndTime.On(y, m, day, zone)
				for start := w.StartTime.On(y, m, day, zone); ; start = start.Add(s.step) {
					end := start.Add(s.step)
					if end.After(windowEnd) {
						break
					}
					slot := Slot{
						ProviderID:      s.providerID,
						Start:           start.In(loc),
						End:             end.In(loc),
						DurationMinutes: s.duration,
					}
					if !yield(slot) {
						return
					}
				}
			}
		}
	}
}
