// Package helpers provides common utility functions used across the codebase.
package helpers

import "time"

// AlignHour truncates a Unix timestamp down to the start of its hour.
// All history rows are keyed on hour-aligned timestamps.
func AlignHour(ts int64) int64 {
	return ts - ts%3600
}

// AlignHourTime truncates a time down to the start of its hour in UTC.
func AlignHourTime(t time.Time) time.Time {
	return time.Unix(AlignHour(t.Unix()), 0).UTC()
}

// ISODate renders a Unix timestamp in the format stored alongside
// history rows.
func ISODate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02T15:04:05Z")
}
