package bookings

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// MaxNights caps the length of any range: queries, reservations and stays.
const MaxNights = 366

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrInvalidRange, s)
	}
	return t, nil
}

func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// ValidateRange checks checkIn < checkOut at day granularity and that the
// range covers at most MaxNights nights.
func ValidateRange(checkIn, checkOut time.Time) error {
	if checkIn.IsZero() || checkOut.IsZero() {
		return fmt.Errorf("%w: missing check-in or check-out", ErrInvalidRange)
	}
	if !Day(checkIn).Before(Day(checkOut)) {
		return fmt.Errorf("%w: check-in %s is not before check-out %s",
			ErrInvalidRange, FormatDate(checkIn), FormatDate(checkOut))
	}
	if Day(checkIn).AddDate(0, 0, MaxNights).Before(Day(checkOut)) {
		return fmt.Errorf("%w: %s to %s is longer than %d nights",
			ErrInvalidRange, FormatDate(checkIn), FormatDate(checkOut), MaxNights)
	}
	return nil
}

// Nights enumerates [checkIn, checkOut). The checkout date itself is never included.
func Nights(checkIn, checkOut time.Time) []time.Time {
	from, to := Day(checkIn), Day(checkOut)
	var out []time.Time
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Overlaps tests half-open ranges [a1,a2) and [b1,b2).
func Overlaps(a1, a2, b1, b2 time.Time) bool {
	return a1.Before(b2) && b1.Before(a2)
}
