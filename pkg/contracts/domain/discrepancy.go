package domain

import (
	"time"
)

// DiscrepancySeverity classifies how damaging a discrepancy is.
type DiscrepancySeverity string

const (
	SeverityLow      DiscrepancySeverity = "low"
	SeverityMedium   DiscrepancySeverity = "medium"
	SeverityHigh     DiscrepancySeverity = "high"
	SeverityCritical DiscrepancySeverity = "critical"
)

// Weight returns the confidence penalty associated with the severity.
func (s DiscrepancySeverity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.05
	case SeverityMedium:
		return 0.15
	case SeverityHigh:
		return 0.30
	case SeverityCritical:
		return 0.50
	default:
		return 0.15
	}
}

// Resolution documents how a discrepancy was settled.
type Resolution struct {
	Strategy      string      `json:"strategy"`
	ResolvedValue interface{} `json:"resolved_value,omitempty"`
	Reason        string      `json:"reason"`
}

// Discrepancy is a documented deviation: either a single-source rule
// violation (one entry in SourceValues) or a cross-source disagreement
// (two or more entries), always with its resolution.
type Discrepancy struct {
	ID           string                 `json:"id"`
	Field        string                 `json:"field"`
	SourceValues map[string]interface{} `json:"source_values"`
	Variance     float64                `json:"variance,omitempty"`
	Severity     DiscrepancySeverity    `json:"severity"`
	Resolution   Resolution             `json:"resolution"`
	DetectedAt   time.Time              `json:"detected_at"`
}

// IsCrossSource reports whether the discrepancy documents a disagreement
// between two or more providers rather than a single-source violation.
func (d Discrepancy) IsCrossSource() bool {
	return len(d.SourceValues) >= 2
}

// ValidationResult is the verdict of the validation engine for one record.
// Validation never fails hard; all detected issues land in Discrepancies.
type ValidationResult struct {
	IsValid       bool          `json:"is_valid"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Warnings      []string      `json:"warnings,omitempty"`
	Confidence    float64       `json:"confidence"` // in [0,1]
}

// HasDiscrepancyFor reports whether a discrepancy exists for the given field.
func (vr ValidationResult) HasDiscrepancyFor(field string) bool {
	for _, d := range vr.Discrepancies {
		if d.Field == field {
			return true
		}
	}
	return false
}
