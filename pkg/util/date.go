package util

import (
	"strconv"
	"time"
)

var timeFormats = []string{time.RFC3339, time.RFC3339Nano}

// ParseTime accepts RFC3339, RFC3339Nano or unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault falls back to def when s is empty or unparseable.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// AlignFromTo truncates both ends of a range to bucket boundaries of the
// given width. A non-positive width aligns to the minute.
func AlignFromTo(from, to time.Time, width time.Duration) (time.Time, time.Time) {
	if width <= 0 {
		width = time.Minute
	}
	return from.Truncate(width), to.Truncate(width)
}
