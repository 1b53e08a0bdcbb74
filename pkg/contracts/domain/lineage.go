package domain

import (
	"time"
)

// LineageStep is one recorded step in a record's audit trail.
type LineageStep struct {
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// LineageInfo is the ordered audit trail for one normalize or fuse call:
// which transformations ran, which validations fired, which quality checks
// were applied. Append-only while the call executes, immutable afterwards.
type LineageInfo struct {
	ID              string        `json:"id"`
	SourceID        string        `json:"source_id"`
	CreatedAt       time.Time     `json:"created_at"`
	Transformations []LineageStep `json:"transformations"`
	ValidationSteps []LineageStep `json:"validation_steps"`
	QualityChecks   []LineageStep `json:"quality_checks"`
}

// StepCount returns the total number of recorded steps.
func (li LineageInfo) StepCount() int {
	return len(li.Transformations) + len(li.ValidationSteps) + len(li.QualityChecks)
}
