package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider maps to the providers table. Providers are deactivated, never deleted.
type Provider struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	DisplayName            string     `db:"display_name" json:"display_name"`
	Active                 bool       `db:"active" json:"active"`
	LicenseJurisdiction    string     `db:"license_jurisdiction" json:"license_jurisdiction"`
	Specializations        []string   `db:"specializations" json:"specializations"`
	AcceptedPayers         []string   `db:"accepted_payers" json:"accepted_payers"`
	DefaultDurationMinutes int        `db:"default_duration_minutes" json:"default_duration_minutes"`
	BufferMinutes          int        `db:"buffer_minutes" json:"buffer_minutes"`
	AgeRanges              []AgeRange `json:"age_ranges"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// AppointmentDuration is the default booked length.
func (p *Provider) AppointmentDuration() time.Duration {
	return time.Duration(p.DefaultDurationMinutes) * time.Minute
}

// SlotStep is the distance between consecutive generated slots: appointment plus buffer.
func (p *Provider) SlotStep() time.Duration {
	return time.Duration(p.DefaultDurationMinutes+p.BufferMinutes) * time.Minute
}

// AcceptsPayer compares payer identifiers case-insensitively.
func (p *Provider) AcceptsPayer(payer string) bool {
	payer = strings.TrimSpace(payer)
	for _, accepted := range p.AcceptedPayers {
		if strings.EqualFold(accepted, payer) {
			return true
		}
	}
	return false
}

// LicensedIn reports whether the provider holds a license for jurisdiction.
func (p *Provider) LicensedIn(jurisdiction string) bool {
	return strings.EqualFold(strings.TrimSpace(p.LicenseJurisdiction), strings.TrimSpace(jurisdiction))
}

// RangeFor returns the first served age range containing age.
func (p *Provider) RangeFor(age int) (AgeRange, bool) {
	for _, r := range p.AgeRanges {
		if r.Contains(age) {
			return r, true
		}
	}
	return AgeRange{}, false
}

// AgeRange is an inclusive range of recipient ages.
type AgeRange struct {
	Min int `db:"min_age" json:"min"`
	Max int `db:"max_age" json:"max"`
}

func (r AgeRange) Contains(age int) bool {
	return age >= r.Min && age <= r.Max
}

// Weekday numbers days with Monday as 0 and Sunday as 6.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// WeekdayOf converts a time's weekday to the Monday-based numbering.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

func (d Weekday) Valid() bool {
	return d >= Monday && d <= Sunday
}

func (d Weekday) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return time.Weekday((int(d) + 1) % 7).String()
}

// LocalTime is a wall-clock time of day without a date or zone.
type LocalTime struct {
	Hour   int
	Minute int
}

// ParseLocalTime accepts "HH:MM" and "HH:MM:SS" (seconds ignored).
func ParseLocalTime(s string) (LocalTime, error) {
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return LocalTime{}, fmt.Errorf("invalid time of day %q", s)
	}
	return LocalTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func MustLocalTime(s string) LocalTime {
	lt, err := ParseLocalTime(s)
	if err != nil {
		panic(err)
	}
	return lt
}

func (t LocalTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t LocalTime) Minutes() int {
	return t.Hour*60 + t.Minute
}

// On returns the instant this wall-clock time names on the given calendar date in loc.
func (t LocalTime) On(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, t.Hour, t.Minute, 0, 0, loc)
}

func (t LocalTime) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *LocalTime) UnmarshalText(b []byte) error {
	lt, err := ParseLocalTime(string(b))
	if err != nil {
		return err
	}
	*t = lt
	return nil
}

// AvailabilityWindow maps to the availability_windows table.
type AvailabilityWindow struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ProviderID uuid.UUID `db:"provider_id" json:"provider_id"`
	DayOfWeek  Weekday   `db:"day_of_week" json:"day_of_week"`
	StartTime  LocalTime `db:"start_time" json:"start_time"`
	EndTime    LocalTime `db:"end_time" json:"end_time"`
	TimeZone   string    `db:"time_zone" json:"time_zone"`
	Repeating  bool      `db:"repeating" json:"repeating"`
}

func (w AvailabilityWindow) Validate() error {
	if !w.DayOfWeek.Valid() {
		return fmt.Errorf("day_of_week must be between 0 and 6")
	}
	if w.StartTime.Minutes() >= w.EndTime.Minutes() {
		return fmt.Errorf("start_time must be before end_time")
	}
	if _, err := time.LoadLocation(w.TimeZone); err != nil || w.TimeZone == "" {
		return fmt.Errorf("invalid time_zone %q", w.TimeZone)
	}
	return nil
}

// TimeOff maps to the time_off table. StartDate and EndDate are calendar dates, both inclusive.
type TimeOff struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ProviderID uuid.UUID `db:"provider_id" json:"provider_id"`
	StartDate  time.Time `db:"start_date" json:"start_date"`
	EndDate    time.Time `db:"end_date" json:"end_date"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
}

// Covers reports whether the calendar date of d falls inside the exclusion.
func (t TimeOff) Covers(d time.Time) bool {
	k := DateKey(d)
	return k >= DateKey(t.StartDate) && k <= DateKey(t.EndDate)
}

// DateKey orders calendar dates as yyyymmdd, ignoring clock time and zone.
func DateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// Date returns midnight UTC of the calendar date of t.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
