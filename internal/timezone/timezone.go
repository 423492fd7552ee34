package timezone

import (
	"errors"
	"strings"
	"time"
)

const DefaultTimezone = "UTC"

const DayKeyLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

func IsValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

func Location(tz string) *time.Location {
	if IsValid(tz) {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}

	return time.UTC
}

// wire layouts carrying an explicit offset
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

// wire layouts without offset, read in the reference zone
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Normalizer converts wire date-times into storage instants (UTC) and
// derives day keys in a single reference zone.
type Normalizer struct {
	loc *time.Location
}

func NewNormalizer(tz string) *Normalizer {
	return &Normalizer{loc: Location(tz)}
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

func (n *Normalizer) ToStorageInstant(wire string) (time.Time, error) {
	v := strings.TrimSpace(wire)
	if v == "" {
		return time.Time{}, ErrInvalidDate
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}

	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, n.loc); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidDate
}

// Combine joins a calendar date and a wall-clock time (HH:MM[:SS]) in the
// reference zone.
func (n *Normalizer) Combine(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, ErrInvalidDate
	}

	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, date+" "+clock, n.loc); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidDate
}

func (n *Normalizer) DayKeyOf(instant time.Time) string {
	return instant.In(n.loc).Format(DayKeyLayout)
}

func (n *Normalizer) ValidateRange(start, end time.Time) bool {
	return start.Before(end)
}

// WithinDay reports whether [start, end) stays on one calendar day of the
// reference zone. An end exactly at midnight belongs to the start day.
func (n *Normalizer) WithinDay(start, end time.Time) bool {
	return n.DayKeyOf(end.Add(-time.Nanosecond)) == n.DayKeyOf(start)
}

// Today is the day key of now in the reference zone.
func (n *Normalizer) Today(now time.Time) string {
	return n.DayKeyOf(now)
}

// ClockOf formats the wall-clock part of an instant in the reference zone.
func (n *Normalizer) ClockOf(instant time.Time) string {
	return instant.In(n.loc).Format("15:04")
}
