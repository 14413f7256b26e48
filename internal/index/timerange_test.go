package index

import (
	"strings"
	"testing"
	"time"
)

func TestParseTimeRange(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		from, to string
		wantFrom time.Time
		wantTo   time.Time
		wantErr  string
	}{
		{name: "open"},
		{name: "single day", from: "2025-01-15", to: "2025-01-15", wantFrom: day, wantTo: day.Add(24*time.Hour - time.Nanosecond)},
		{name: "rfc3339 with offset", from: "2025-01-15T12:00:00+02:00", wantFrom: day.Add(10 * time.Hour)},
		{name: "fractional seconds", to: "2025-01-15T00:00:00.5Z", wantTo: day.Add(500 * time.Millisecond)},
		{name: "bad from", from: "yesterday", wantErr: "invalid from"},
		{name: "bad to", to: "15/01/2025", wantErr: "invalid to"},
		{name: "inverted", from: "2025-01-16", to: "2025-01-15", wantErr: "greater than or equal"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			from, to, err := ParseTimeRange(tt.from, tt.to)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseTimeRange() error=%v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeRange() error: %v", err)
			}
			if !from.Equal(tt.wantFrom) || !to.Equal(tt.wantTo) {
				t.Fatalf("range=%v..%v, want %v..%v", from, to, tt.wantFrom, tt.wantTo)
			}
		})
	}
}
