package utils

import (
	"math"
	"testing"
	"time"
)

func TestThirdFriday(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  string
	}{
		{2026, time.January, "2026-01-16"},
		{2026, time.May, "2026-05-15"},
		{2025, time.August, "2025-08-15"},
		{2026, time.October, "2026-10-16"},
	}
	for _, tt := range tests {
		if got := ThirdFriday(tt.year, tt.month, time.UTC).Format(dateLayout); got != tt.want {
			t.Errorf("ThirdFriday(%d, %s) = %s, want %s", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestNextOptionsExpiration(t *testing.T) {
	tests := []struct {
		now  string
		want string
	}{
		{"2026-10-01", "2026-10-16"}, // before expiration week
		{"2026-10-09", "2026-11-20"}, // week start rolls forward
		{"2026-10-19", "2026-11-20"}, // after expiration
		{"2026-12-28", "2027-01-15"}, // year rollover
	}
	for _, tt := range tests {
		now, _ := time.Parse(dateLayout, tt.now)
		if got := NextOptionsExpiration(now).Format(dateLayout); got != tt.want {
			t.Errorf("NextOptionsExpiration(%s) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestYearFraction(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := YearFraction(from, from.AddDate(0, 0, 365)); math.Abs(got-1) > 1e-12 {
		t.Errorf("365 days = %v years, want 1", got)
	}
	if got := YearFraction(from, from.AddDate(0, 0, 1)); math.Abs(got-1.0/365.0) > 1e-15 {
		t.Errorf("one day = %v years", got)
	}
	if got := YearFraction(from, from.AddDate(0, 0, -73)); math.Abs(got+0.2) > 1e-12 {
		t.Errorf("past date should be negative, got %v", got)
	}
}

func TestTimeToExpiration(t *testing.T) {
	now := time.Date(2026, 10, 16, 4, 0, 0, 0, time.UTC)
	got, err := TimeToExpiration("2026-10-16", now)
	if err != nil {
		t.Fatalf("TimeToExpiration: %v", err)
	}
	if want := 0.5 / DaysPerYear; math.Abs(got-want) > 1e-15 {
		t.Errorf("12 hours to settlement = %v, want %v", got, want)
	}

	if _, err := TimeToExpiration("16/10/2026", now); err == nil {
		t.Errorf("expected an error for a malformed date")
	}
}
