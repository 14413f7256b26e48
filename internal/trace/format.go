package trace

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	clockLayout = "15:04:05"
	humanLayout = "2006-01-02 15:04:05.000"
)

// epochTime converts epoch seconds to a UTC time at microsecond precision.
func epochTime(seconds float64) time.Time {
	return time.UnixMicro(int64(math.RoundToEven(seconds * 1e6))).UTC()
}

// FormatClock renders epoch seconds as HH:MM:SS in UTC. A zero timestamp is
// treated as missing.
func FormatClock(seconds *float64) *string {
	if seconds == nil || *seconds == 0 {
		return nil
	}
	return stringPtr(epochTime(*seconds).Format(clockLayout))
}

// FormatHuman renders epoch seconds as "YYYY-MM-DD HH:MM:SS.mmm UTC".
// Milliseconds are truncated, not rounded.
func FormatHuman(seconds *float64) *string {
	if seconds == nil || *seconds == 0 {
		return nil
	}
	return stringPtr(epochTime(*seconds).Format(humanLayout) + " UTC")
}

// URLPath strips the scheme, host and query string from a URL. A URL without
// a "://" separator is returned unchanged, as is the host of a URL that has
// no path.
func URLPath(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	_, rest, found := strings.Cut(rawURL, "://")
	if !found {
		return rawURL
	}
	// Anything after a second "://" belongs to the query or fragment.
	if second := strings.Index(rest, "://"); second >= 0 {
		rest = rest[:second]
	}
	_, path, found := strings.Cut(rest, "/")
	if !found {
		return rest
	}
	path, _, _ = strings.Cut(path, "?")
	return "/" + path
}

// QueryParams returns the text between the first "?" of a URL and the next
// one, or nil when the URL has no query string.
func QueryParams(rawURL string) *string {
	_, query, found := strings.Cut(rawURL, "?")
	if !found {
		return nil
	}
	query, _, _ = strings.Cut(query, "?")
	return &query
}

// FormatDuration renders a duration in seconds with millisecond precision.
func FormatDuration(seconds float64) string {
	return fmt.Sprintf("%.3fs", seconds)
}

// DurationMillis truncates a duration in seconds to whole milliseconds.
func DurationMillis(seconds float64) int64 {
	return int64(seconds * 1000)
}
