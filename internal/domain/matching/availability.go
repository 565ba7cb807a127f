package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carematch/carematch/internal/domain/availability"
	"github.com/carematch/carematch/internal/domain/casesession"
	"github.com/carematch/carematch/internal/domain/provider"
	"github.com/carematch/carematch/internal/platform/cache"
	"github.com/carematch/carematch/internal/platform/metrics"
)

const (
	nextAvailableHorizonDays = 30
	fullScoreDays            = 7.0
	zeroScoreDays            = 30.0
)

type NextSlotFinder interface {
	NextAvailable(ctx context.Context, providerID uuid.UUID, from time.Time, horizonDays int) (availability.Slot, bool, error)
}

type WindowLister interface {
	ListWindows(ctx context.Context, providerID uuid.UUID) ([]provider.AvailabilityWindow, error)
}

// OverlapScore maps a count of overlapping window pairs through the step function.
func OverlapScore(overlaps int) float64 {
	switch {
	case overlaps <= 0:
		return 0
	case overlaps <= 2:
		return 0.4
	case overlaps <= 5:
		return 0.6
	case overlaps <= 10:
		return 0.8
	default:
		return 1.0
	}
}

// NextAvailableScore is 1 up to a week away, falling linearly to 0 at 30 days.
func NextAvailableScore(next *time.Time, now time.Time) float64 {
	if next == nil {
		return 0
	}
	days := next.Sub(now).Hours() / 24
	switch {
	case days <= fullScoreDays:
		return 1
	case days >= zeroScoreDays:
		return 0
	default:
		return (zeroScoreDays - days) / (zeroScoreDays - fullScoreDays)
	}
}

type weekInterval struct{ start, end time.Time }

// referenceMonday is the Monday starting the UTC week containing now. Weekly
// windows are projected onto this week so their zone offsets reflect current DST.
func referenceMonday(now time.Time) time.Time {
	now = now.UTC()
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -int(provider.WeekdayOf(d)))
}

func project(monday time.Time, day provider.Weekday, start, end provider.LocalTime, zone string) (weekInterval, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return weekInterval{}, err
	}
	d := monday.AddDate(0, 0, int(day))
	return weekInterval{
		start: start.On(d.Year(), d.Month(), d.Day(), loc).UTC(),
		end:   end.On(d.Year(), d.Month(), d.Day(), loc).UTC(),
	}, nil
}

const week = 7 * 24 * time.Hour

// overlapsWeekly treats both intervals as repeating every week.
func overlapsWeekly(a, b weekInterval) bool {
	for _, shift := range []time.Duration{-week, 0, week} {
		s, e := b.start.Add(shift), b.end.Add(shift)
		if a.start.Before(e) && a.end.After(s) {
			return true
		}
	}
	return false
}

// CountOverlaps counts (requester, provider) window pairs that intersect once
// both are placed on the same UTC reference week. Windows with unknown zones
// are ignored.
func CountOverlaps(requester []casesession.RequesterWindow, windows []provider.AvailabilityWindow, now time.Time) int {
	monday := referenceMonday(now)
	var req, prov []weekInterval
	for _, w := range requester {
		if iv, err := project(monday, w.DayOfWeek, w.StartTime, w.EndTime, w.TimeZone); err == nil {
			req = append(req, iv)
		}
	}
	for _, w := range windows {
		if !w.Repeating {
			continue
		}
		if iv, err := project(monday, w.DayOfWeek, w.StartTime, w.EndTime, w.TimeZone); err == nil {
			prov = append(prov, iv)
		}
	}
	n := 0
	for _, r := range req {
		for _, p := range prov {
			if overlapsWeekly(r, p) {
				n++
			}
		}
	}
	return n
}

// AvailabilityScorer computes the availability component and the
// next-opening estimate shown with every result.
type AvailabilityScorer struct {
	slots   NextSlotFinder
	windows WindowLister
	cache   cache.Store
	ttl     time.Duration
	metrics *metrics.Metrics
}

func NewAvailabilityScorer(slots NextSlotFinder, windows WindowLister, store cache.Store, ttl time.Duration, m *metrics.Metrics) *AvailabilityScorer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &AvailabilityScorer{slots: slots, windows: windows, cache: store, ttl: ttl, metrics: m}
}

type availabilityResult struct {
	score         float64
	overlaps      int
	usedRequester bool
	unchecked     bool
	next          *time.Time
}

type nextAvailableEntry struct {
	At *time.Time `json:"at"`
}

func nextAvailableKey(providerID uuid.UUID) string {
	return "next_available:" + providerID.String()
}

// NextAvailable returns the provider's next open slot start, memoized per provider.
func (s *AvailabilityScorer) NextAvailable(ctx context.Context, providerID uuid.UUID, now time.Time) (*time.Time, error) {
	key := nextAvailableKey(providerID)
	if s.cache != nil {
		var entry nextAvailableEntry
		err := cache.GetJSON(ctx, s.cache, key, &entry)
		s.metrics.CacheLookup("next_available", err == nil)
		if err == nil && (entry.At == nil || entry.At.After(now)) {
			return entry.At, nil
		}
	}

	slot, ok, err := s.slots.NextAvailable(ctx, providerID, now, nextAvailableHorizonDays)
	if err != nil {
		return nil, fmt.Errorf("next available for %s: %w", providerID, err)
	}
	var at *time.Time
	if ok {
		start := slot.Start
		at = &start
	}
	if s.cache != nil {
		_ = cache.SetJSON(ctx, s.cache, key, nextAvailableEntry{At: at}, s.ttl)
	}
	return at, nil
}

// score falls back to NeutralAvailability on a nil scorer.
func (s *AvailabilityScorer) score(ctx context.Context, p *provider.Provider, c Criteria, now time.Time) (availabilityResult, error) {
	if s == nil {
		return availabilityResult{score: NeutralAvailability, unchecked: true}, nil
	}
	next, err := s.NextAvailable(ctx, p.ID, now)
	if err != nil {
		return availabilityResult{}, err
	}
	res := availabilityResult{next: next}
	if !c.HasRequesterAvailability() {
		res.score = NextAvailableScore(next, now)
		return res, nil
	}

	windows, err := s.windows.ListWindows(ctx, p.ID)
	if err != nil {
		return availabilityResult{}, fmt.Errorf("list windows for %s: %w", p.ID, err)
	}
	res.usedRequester = true
	res.overlaps = CountOverlaps(c.RequesterWindows, windows, now)
	res.score = OverlapScore(res.overlaps)
	return res, nil
}
