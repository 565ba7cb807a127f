package matching

import (
	"math"
	"testing"
	"time"

	"github.com/carematch/carematch/internal/domain/casesession"
	"github.com/carematch/carematch/internal/domain/provider"
)

func TestAgeFit(t *testing.T) {
	ranges := []provider.AgeRange{{Min: 5, Max: 17}}
	tests := []struct {
		age  int
		want float64
	}{
		{10, 1.0},
		{9, 1.0},
		{13, 1.0},
		{8, 0.9},
		{14, 0.9},
		{5, 0.9},
		{17, 0.9},
		{4, 0},
		{18, 0},
	}
	for _, tt := range tests {
		if got := DefaultAgeFit.Score(tt.age, ranges); got != tt.want {
			t.Errorf("age %d: got %v, want %v", tt.age, got, tt.want)
		}
	}
}

func TestAgeFit_BestRangeWinsAndTunable(t *testing.T) {
	ranges := []provider.AgeRange{{Min: 0, Max: 12}, {Min: 10, Max: 30}}
	if got := DefaultAgeFit.Score(11, ranges); got != 0.9 {
		t.Errorf("expected edge of both ranges to give 0.9, got %v", got)
	}
	if got := DefaultAgeFit.Score(20, ranges); got != 1.0 {
		t.Errorf("expected middle of second range, got %v", got)
	}

	wide := AgeFit{MiddleBandFraction: 1.0, EdgeScore: 0.5}
	if got := wide.Score(6, []provider.AgeRange{{Min: 5, Max: 17}}); got != 1.0 {
		t.Errorf("full-width band should accept 6, got %v", got)
	}
	if got := wide.Score(5, []provider.AgeRange{{Min: 5, Max: 17}}); got != 0.5 {
		t.Errorf("bounds stay edge scores, got %v", got)
	}
}

func TestWeightsSumToOne(t *testing.T) {
	sum := WeightSpecialization + WeightAgeFit + WeightAvailability + WeightModality
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("weights sum to %v", sum)
	}
}

func TestBreakdownFinal(t *testing.T) {
	tests := []struct {
		b    Breakdown
		want float64
	}{
		{Breakdown{1, 1, 1, 1}, 100},
		{Breakdown{0, 0, 0, 0}, 0},
		{Breakdown{1, 1, 1, 0.5}, 95},
		{Breakdown{0.5, 0.9, 0.4, 0.5}, 60},
		{Breakdown{0.333, 0.9, 0.6, 0.5}, 57.3},
		{Breakdown{7, -2, math.NaN(), 0.5}, 45},
	}
	for _, tt := range tests {
		if got := tt.b.Final(); got != tt.want {
			t.Errorf("%+v: got %v, want %v", tt.b, got, tt.want)
		}
	}
}

func TestOverlapScore(t *testing.T) {
	tests := map[int]float64{0: 0, 1: 0.4, 2: 0.4, 3: 0.6, 5: 0.6, 6: 0.8, 10: 0.8, 11: 1.0, 40: 1.0}
	for n, want := range tests {
		if got := OverlapScore(n); got != want {
			t.Errorf("OverlapScore(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestNextAvailableScore(t *testing.T) {
	now := time.Date(2030, 1, 7, 12, 0, 0, 0, time.UTC)
	at := func(days float64) *time.Time {
		t := now.Add(time.Duration(days * 24 * float64(time.Hour)))
		return &t
	}
	tests := []struct {
		next *time.Time
		want float64
	}{
		{nil, 0},
		{at(0.5), 1},
		{at(7), 1},
		{at(18.5), 0.5},
		{at(30), 0},
		{at(45), 0},
	}
	for _, tt := range tests {
		if got := NextAvailableScore(tt.next, now); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NextAvailableScore(%v) = %v, want %v", tt.next, got, tt.want)
		}
	}
}

func TestCountOverlaps(t *testing.T) {
	winter := time.Date(2030, 1, 9, 12, 0, 0, 0, time.UTC)
	lt := provider.MustLocalTime

	requester := []casesession.RequesterWindow{
		// 14:00-17:00 UTC in January.
		{DayOfWeek: provider.Monday, StartTime: lt("09:00"), EndTime: lt("12:00"), TimeZone: "America/New_York"},
		// Monday 04:00-07:00 UTC, across the week boundary.
		{DayOfWeek: provider.Sunday, StartTime: lt("20:00"), EndTime: lt("23:00"), TimeZone: "America/Los_Angeles"},
		{DayOfWeek: provider.Friday, StartTime: lt("09:00"), EndTime: lt("10:00"), TimeZone: "Not/AZone"},
	}
	windows := []provider.AvailabilityWindow{
		{DayOfWeek: provider.Monday, StartTime: lt("14:00"), EndTime: lt("16:00"), TimeZone: "UTC", Repeating: true},
		{DayOfWeek: provider.Monday, StartTime: lt("05:00"), EndTime: lt("06:00"), TimeZone: "UTC", Repeating: true},
		{DayOfWeek: provider.Monday, StartTime: lt("17:00"), EndTime: lt("18:00"), TimeZone: "UTC", Repeating: true},
		{DayOfWeek: provider.Monday, StartTime: lt("14:00"), EndTime: lt("16:00"), TimeZone: "UTC", Repeating: false},
	}
	if got := CountOverlaps(requester, windows, winter); got != 2 {
		t.Errorf("expected 2 overlapping pairs, got %d", got)
	}
}

func TestCountOverlaps_FollowsDST(t *testing.T) {
	lt := provider.MustLocalTime
	requester := []casesession.RequesterWindow{
		{DayOfWeek: provider.Monday, StartTime: lt("09:00"), EndTime: lt("10:00"), TimeZone: "America/New_York"},
	}
	windows := []provider.AvailabilityWindow{
		{DayOfWeek: provider.Monday, StartTime: lt("13:00"), EndTime: lt("14:00"), TimeZone: "UTC", Repeating: true},
	}
	summer := time.Date(2030, 7, 10, 12, 0, 0, 0, time.UTC)
	winter := time.Date(2030, 1, 9, 12, 0, 0, 0, time.UTC)
	if got := CountOverlaps(requester, windows, summer); got != 1 {
		t.Errorf("summer: expected overlap (09:00 EDT = 13:00 UTC), got %d", got)
	}
	if got := CountOverlaps(requester, windows, winter); got != 0 {
		t.Errorf("winter: expected no overlap (09:00 EST = 14:00 UTC), got %d", got)
	}
}

func TestSignals(t *testing.T) {
	got := Signals(map[string]float64{"anxiety": 12, "depression": 9.5, "attention": 6, "sleep": 2})
	if len(got) != 2 || got[0] != "adhd" || got[1] != "anxiety" {
		t.Errorf("unexpected signals %v", got)
	}
}
