package utils

import (
	"fmt"
	"time"
)

// logTimeLayouts are the timestamp shapes seen in service logs. Producers
// write LogTimeLayout; the zone-qualified layouts cover externally shipped
// lines.
var logTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// LogTimeLayout is the canonical timestamp format for emitted log lines.
const LogTimeLayout = "2006-01-02T15:04:05.999999"

// ParseLogTime returns the time encoded in a log line timestamp field.
func ParseLogTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range logTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time value %q", value)
}

// DurationMinutes converts a pair of timestamps into minute duration.
func DurationMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Minutes()
}
