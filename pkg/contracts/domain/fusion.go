package domain

import (
	"encoding/json"
	"time"
)

// FusionStrategy selects how conflicting per-source values are resolved.
type FusionStrategy string

const (
	StrategyHighestQuality  FusionStrategy = "highest_quality"
	StrategyMostRecent      FusionStrategy = "most_recent"
	StrategyConsensus       FusionStrategy = "consensus"
	StrategyWeightedAverage FusionStrategy = "weighted_average"
	StrategyCustom          FusionStrategy = "custom"
)

// IsValid checks if the strategy is one of the known kinds.
func (fs FusionStrategy) IsValid() bool {
	switch fs {
	case StrategyHighestQuality, StrategyMostRecent, StrategyConsensus,
		StrategyWeightedAverage, StrategyCustom:
		return true
	}
	return false
}

// FusionRule binds a field to a resolution strategy and a disagreement
// threshold. A candidate spread beyond ThresholdPercent of the resolved
// value is documented as a cross-source discrepancy even when resolution
// succeeds.
type FusionRule struct {
	Field            string         `json:"field" yaml:"field"`
	Strategy         FusionStrategy `json:"strategy" yaml:"strategy"`
	ThresholdPercent float64        `json:"threshold_percent" yaml:"threshold_percent"`
}

// FusionCandidate is one per-source value competing for the authoritative
// slot, already normalized, validated and quality-scored.
type FusionCandidate struct {
	Source    string       `json:"source"`
	Value     interface{}  `json:"value"`
	Timestamp time.Time    `json:"timestamp"`
	Quality   QualityScore `json:"quality"`
}

// NumericValue returns the candidate value as a float64 when it is numeric.
func (fc FusionCandidate) NumericValue() (float64, bool) {
	switch v := fc.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// FusionMetadata documents how an authoritative value was produced.
type FusionMetadata struct {
	Sources            []string       `json:"sources"`
	PrimarySource      string         `json:"primary_source"`
	QualityScore       float64        `json:"quality_score"`
	Conflicts          int            `json:"conflicts"`
	ResolutionStrategy FusionStrategy `json:"resolution_strategy"`
	FusionTimestamp    time.Time      `json:"fusion_timestamp"`
}

// FusionResult is the outcome of fusing candidates for one field.
type FusionResult struct {
	Value       interface{}    `json:"value"`
	Metadata    FusionMetadata `json:"metadata"`
	Discrepancy *Discrepancy   `json:"discrepancy,omitempty"`
}
