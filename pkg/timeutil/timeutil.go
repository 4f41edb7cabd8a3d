// Package timeutil provides timezone-aware day arithmetic for attendance records.
// Every attendance record carries a day key computed once, in the ledger's
// configured location, so day-level aggregation stays stable when the
// process clock or timezone changes later.
package timeutil

import (
	"time"
)

// Layouts used across the service.
const (
	// FormatDate is the day key layout (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is a human readable timestamp (YYYY-MM-DD HH:MM).
	FormatDateTime = "2006-01-02 15:04"
)

// LoadLocation resolves an IANA zone name, falling back to UTC when the name
// is empty or unknown.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// DateKey formats t as a day key in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(orUTC(loc)).Format(FormatDate)
}

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	loc = orUTC(loc)
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last nanosecond of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	loc = orUTC(loc)
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, loc)
}

// IsSameDay checks if two times fall on the same day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return DateKey(t1, loc) == DateKey(t2, loc)
}

// ParseDateKey parses a YYYY-MM-DD day key in loc.
func ParseDateKey(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, orUTC(loc))
}

// DaysBetween returns the number of whole days from t1 to t2 in loc.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	d1, d2 := StartOfDay(t1, loc), StartOfDay(t2, loc)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}
