package index

import (
	"fmt"
	"strings"
	"time"
)

// ParseTimeRange reads the from/to bounds shared by analytics filters. Each
// bound is RFC3339 or a bare YYYY-MM-DD date in UTC. A bare date in to covers
// the whole day. Empty bounds stay zero.
func ParseTimeRange(rawFrom, rawTo string) (from, to time.Time, err error) {
	if from, err = parseTimeBound(rawFrom, false); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
	}
	if to, err = parseTimeBound(rawTo, true); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be greater than or equal to from")
	}
	return from, to, nil
}

func parseTimeBound(raw string, endOfDay bool) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}
	if day, err := time.ParseInLocation(time.DateOnly, value, time.UTC); err == nil {
		if endOfDay {
			return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return day, nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", value)
}
