package models

import "time"

// Severity captures log line impact levels.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Anomalous reports whether a line of this severity opens an incident.
func (s Severity) Anomalous() bool {
	switch s {
	case SeverityWarning, SeverityError, SeverityCritical:
		return true
	default:
		return false
	}
}

// LogLine is a single parsed entry from the services log. Lines are
// ephemeral: they are consumed once by the monitor and not retained beyond
// the read window.
type LogLine struct {
	Timestamp time.Time
	Service   string
	Category  string
	Severity  Severity
	Message   string
}

// Incident records an anomalous log line awaiting (or after) remediation.
// Incidents are never deleted; uniqueness is keyed on exact message text.
type Incident struct {
	ID         int64
	Timestamp  time.Time
	Service    string
	Category   string
	Severity   Severity
	Message    string
	Resolved   bool
	Resolution *Resolution

	// Attempts counts remediation tries so the retry policy can cap or
	// back off re-execution. LastAttempt is zero until the first try.
	Attempts    int
	LastAttempt time.Time
}

// Resolution describes the remediation outcome attached to a resolved
// incident. It is created exactly once per resolved incident.
type Resolution struct {
	Command         string    `json:"command"`
	ExecutedAt      time.Time `json:"executed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Success         bool      `json:"success"`
	Output          string    `json:"output"`
}

// ExecutionResult is the outcome of one remediation script invocation.
type ExecutionResult struct {
	Success  bool
	Duration time.Duration
	Output   string
}

// MetricSample is one per-service resource usage reading.
type MetricSample struct {
	Timestamp time.Time
	Service   string
	CPU       float64
	Memory    float64
	Disk      float64
	Network   float64
}
