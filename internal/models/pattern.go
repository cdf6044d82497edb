package models

import "time"

// Pattern pairs a parameterized issue template with a remediation command
// template. Patterns are append-only: matching always scans the full set and
// no update or delete operation exists.
type Pattern struct {
	ID                  int64
	IssuePattern        string
	RemediationTemplate string
	Confidence          float64
	LastUsed            time.Time
}

// TrainReport summarises one classifier training run.
type TrainReport struct {
	ModelType   string
	SampleCount int
	Accuracy    float64
	Status      string
	TrainedAt   time.Time
}
