package domain

import (
	"time"
)

// QualityMetrics are the individual trust signals behind a quality score.
// All scored metrics live in [0,1]; LatencyMs is informational and reported
// as measured.
type QualityMetrics struct {
	Freshness        float64 `json:"freshness"`
	Completeness     float64 `json:"completeness"`
	Accuracy         float64 `json:"accuracy"`
	SourceReputation float64 `json:"source_reputation"`
	LatencyMs        float64 `json:"latency_ms"`
}

// QualityScore is the composite 0-1 trust measure for one record.
type QualityScore struct {
	Overall   float64        `json:"overall"`
	Metrics   QualityMetrics `json:"metrics"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
}

// IsValid checks the score and every scored sub-metric are within [0,1].
func (qs QualityScore) IsValid() bool {
	inUnit := func(v float64) bool { return v >= 0 && v <= 1 }
	return inUnit(qs.Overall) &&
		inUnit(qs.Metrics.Freshness) &&
		inUnit(qs.Metrics.Completeness) &&
		inUnit(qs.Metrics.Accuracy) &&
		inUnit(qs.Metrics.SourceReputation) &&
		qs.Metrics.LatencyMs >= 0
}

// QualityWeights configures the weighted combination behind Overall.
// Scored weights must sum to 1; Latency defaults to 0 (informational only).
type QualityWeights struct {
	Freshness        float64 `json:"freshness" yaml:"freshness"`
	Completeness     float64 `json:"completeness" yaml:"completeness"`
	Accuracy         float64 `json:"accuracy" yaml:"accuracy"`
	SourceReputation float64 `json:"source_reputation" yaml:"source_reputation"`
	Latency          float64 `json:"latency" yaml:"latency"`
}

// Sum returns the total of all configured weights.
func (qw QualityWeights) Sum() float64 {
	return qw.Freshness + qw.Completeness + qw.Accuracy + qw.SourceReputation + qw.Latency
}

// IsValid checks weights are non-negative and sum to 1 within float tolerance.
func (qw QualityWeights) IsValid() bool {
	if qw.Freshness < 0 || qw.Completeness < 0 || qw.Accuracy < 0 ||
		qw.SourceReputation < 0 || qw.Latency < 0 {
		return false
	}
	sum := qw.Sum()
	return sum > 0.99 && sum < 1.01
}

// Normalize rescales the weights so they sum to 1.
func (qw *QualityWeights) Normalize() {
	sum := qw.Sum()
	if sum <= 0 {
		return
	}
	qw.Freshness /= sum
	qw.Completeness /= sum
	qw.Accuracy /= sum
	qw.SourceReputation /= sum
	qw.Latency /= sum
}

// DefaultQualityWeights returns the recommended weighting: accuracy leads,
// latency is informational only.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{
		Freshness:        0.25,
		Completeness:     0.25,
		Accuracy:         0.30,
		SourceReputation: 0.20,
		Latency:          0,
	}
}
