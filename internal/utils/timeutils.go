package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// ParseRange parses a from/to pair, defaulting from to one hour before to
// and to to now when either side is omitted.
func ParseRange(from, to string) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if to != "" {
		parsed, err := ParseRFC3339(to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse to: %w", err)
		}
		end = parsed
	}

	start := end.Add(-time.Hour)
	if from != "" {
		parsed, err := ParseRFC3339(from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse from: %w", err)
		}
		start = parsed
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("range end %s precedes start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return start, end, nil
}
