// Package dates converts calendar dates between JSON, pgx and Go time.
package dates

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Ptr returns a pointer to d.
func Ptr(d civil.Date) *civil.Date {
	return &d
}

// ToTime converts for DATE columns. nil stays nil and is stored as NULL.
func ToTime(d *civil.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

// FromTime converts a scanned DATE column back to a civil date.
func FromTime(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}

// Equal reports whether two optional dates are the same day.
func Equal(a, b *civil.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Today returns the current calendar date in loc.
func Today(loc *time.Location) civil.Date {
	return civil.DateOf(time.Now().In(loc))
}

// FirstOfMonth returns the first day of d's month.
func FirstOfMonth(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

// LastOfMonth returns the last day of d's month.
func LastOfMonth(d civil.Date) civil.Date {
	return civil.DateOf(time.Date(d.Year, d.Month+1, 0, 0, 0, 0, 0, time.UTC))
}

// SameMonth reports whether a and b fall in the same calendar month.
func SameMonth(a, b civil.Date) bool {
	return a.Year == b.Year && a.Month == b.Month
}

// Between reports whether d lies in [from, to]. Zero bounds are open.
func Between(d, from, to civil.Date) bool {
	if from.IsValid() && d.Before(from) {
		return false
	}
	if to.IsValid() && d.After(to) {
		return false
	}
	return true
}

// ParseMonth parses YYYY-MM into the first day of that month.
func ParseMonth(s string) (civil.Date, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid month %q, expected YYYY-MM", s)
	}
	return civil.Date{Year: t.Year(), Month: t.Month(), Day: 1}, nil
}

// ParseOptional parses YYYY-MM-DD, returning the zero date for "".
func ParseOptional(s string) (civil.Date, error) {
	if s == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}
