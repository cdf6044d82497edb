package utils

import (
	"testing"
	"time"
)

func TestParseLogTime(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"canonical layout", "2026-08-26T10:15:30.123456", true},
		{"no fraction", "2026-08-26T10:15:30", true},
		{"rfc3339", "2026-08-26T10:15:30Z", true},
		{"space separated", "2026-08-26 10:15:30", true},
		{"empty", "", false},
		{"garbage", "yesterday", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLogTime(tt.value)
			if tt.ok != (err == nil) {
				t.Fatalf("ParseLogTime(%q) err = %v, want ok=%v", tt.value, err, tt.ok)
			}
			if tt.ok && got.IsZero() {
				t.Errorf("ParseLogTime(%q) returned zero time", tt.value)
			}
		})
	}
}

func TestLogTimeLayoutRoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 26, 10, 15, 30, 123456000, time.UTC)
	got, err := ParseLogTime(ts.Format(LogTimeLayout))
	if err != nil {
		t.Fatalf("ParseLogTime: %v", err)
	}
	if !got.Equal(ts) {
		t.Errorf("round trip mismatch: %v != %v", got, ts)
	}
}

func TestDurationMinutes(t *testing.T) {
	start := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	if got := DurationMinutes(start, end); got != 1.5 {
		t.Errorf("DurationMinutes = %v, want 1.5", got)
	}
	// Order must not matter.
	if got := DurationMinutes(end, start); got != 1.5 {
		t.Errorf("DurationMinutes reversed = %v, want 1.5", got)
	}
}
