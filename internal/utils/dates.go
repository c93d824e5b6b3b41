package utils

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DaysPerYear is the ACT/365 day count basis
const DaysPerYear = 365.0

// ExpirationHour is the hour (UTC) at which an expiration date settles
const ExpirationHour = 16

// ThirdFriday returns the third Friday of the month
func ThirdFriday(year int, month time.Month, loc *time.Location) time.Time {
	firstFriday := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	for firstFriday.Weekday() != time.Friday {
		firstFriday = firstFriday.AddDate(0, 0, 1)
	}
	return firstFriday.AddDate(0, 0, 14)
}

// NextOptionsExpiration returns the next standard monthly expiration:
// - Third Friday of the current month if its week has not started yet
// - Third Friday of next month once we are in or past the expiration week
func NextOptionsExpiration(now time.Time) time.Time {
	thirdFriday := ThirdFriday(now.Year(), now.Month(), now.Location())
	weekStart := thirdFriday.AddDate(0, 0, -7)

	if now.After(weekStart) || now.Equal(weekStart) {
		next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
		return ThirdFriday(next.Year(), next.Month(), now.Location())
	}
	return thirdFriday
}

// CalculateNextOptionsExpiration returns the next third Friday for options
// expiration as YYYY-MM-DD
func CalculateNextOptionsExpiration() string {
	return NextOptionsExpiration(time.Now()).Format(dateLayout)
}

// YearFraction is the ACT/365 time between two instants in years. It is
// negative when to precedes from.
func YearFraction(from, to time.Time) float64 {
	return to.Sub(from).Hours() / (24 * DaysPerYear)
}

// TimeToExpiration parses a YYYY-MM-DD expiration and returns the years
// remaining from now until ExpirationHour UTC on that date.
func TimeToExpiration(expiration string, now time.Time) (float64, error) {
	date, err := time.Parse(dateLayout, expiration)
	if err != nil {
		return 0, fmt.Errorf("invalid expiration %q (want YYYY-MM-DD): %w", expiration, err)
	}
	settle := date.Add(ExpirationHour * time.Hour)
	return YearFraction(now, settle), nil
}
