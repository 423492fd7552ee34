package timezone

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizer_ToStorageInstant(t *testing.T) {
	n := NewNormalizer("America/Sao_Paulo")

	cases := []struct {
		name string
		wire string
		want time.Time
	}{
		{"rfc3339 utc", "2025-03-10T09:00:00Z", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{"rfc3339 offset", "2025-03-10T09:00:00+02:00", time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)},
		{"rfc3339 nano", "2025-03-10T09:00:00.5Z", time.Date(2025, 3, 10, 9, 0, 0, 500000000, time.UTC)},
		{"local T", "2025-03-10T09:00", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
		{"local space", "2025-03-10 09:00:00", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.ToStorageInstant(tc.wire)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if got.Location() != time.UTC {
				t.Fatalf("expected UTC instant, got %v", got.Location())
			}
		})
	}
}

func TestNormalizer_ToStorageInstant_Invalid(t *testing.T) {
	n := NewNormalizer("")

	for _, wire := range []string{"", "  ", "tomorrow", "2025-13-01T00:00:00Z", "10/03/2025 09:00"} {
		if _, err := n.ToStorageInstant(wire); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("wire %q: expected ErrInvalidDate, got %v", wire, err)
		}
	}
}

func TestNormalizer_DayKeyOf_UsesReferenceZone(t *testing.T) {
	instant := time.Date(2025, 3, 10, 1, 30, 0, 0, time.UTC)

	if got := NewNormalizer("").DayKeyOf(instant); got != "2025-03-10" {
		t.Fatalf("utc: expected 2025-03-10, got %s", got)
	}
	if got := NewNormalizer("America/Sao_Paulo").DayKeyOf(instant); got != "2025-03-09" {
		t.Fatalf("sao paulo: expected 2025-03-09, got %s", got)
	}
}

func TestNormalizer_DayKeyMatchesStoredInstant(t *testing.T) {
	n := NewNormalizer("Europe/Moscow")

	start, err := n.Combine("2025-06-01", "00:15")
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if got := n.DayKeyOf(start); got != "2025-06-01" {
		t.Fatalf("expected 2025-06-01, got %s", got)
	}
}

func TestNormalizer_ValidateRange(t *testing.T) {
	n := NewNormalizer("")
	a := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	b := a.Add(time.Hour)

	if !n.ValidateRange(a, b) {
		t.Fatalf("expected valid range")
	}
	if n.ValidateRange(a, a) {
		t.Fatalf("empty range must be invalid")
	}
	if n.ValidateRange(b, a) {
		t.Fatalf("reversed range must be invalid")
	}
}

func TestNormalizer_WithinDay(t *testing.T) {
	n := NewNormalizer("America/Sao_Paulo")
	day := func(d, h, m int) time.Time {
		return time.Date(2030, 5, d, h, m, 0, 0, n.Location())
	}

	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"same day", day(10, 9, 0), day(10, 10, 0), true},
		{"ends at midnight", day(10, 23, 0), day(11, 0, 0), true},
		{"crosses midnight", day(10, 23, 0), day(11, 2, 0), false},
		{"one minute past midnight", day(10, 23, 59), day(11, 0, 1), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := n.WithinDay(tc.start.UTC(), tc.end.UTC()); got != tc.want {
				t.Fatalf("WithinDay = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLocation_FallsBackToUTC(t *testing.T) {
	if Location("Not/AZone") != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
	if IsValid("") {
		t.Fatalf("empty zone must be invalid")
	}
}
