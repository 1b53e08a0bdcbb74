package domain

import (
	"time"
)

// NormalizationResult is what every pipeline entry point returns: the
// canonical record (when normalization succeeded) together with its
// validation verdict, quality score and audit trail.
type NormalizationResult struct {
	Success          bool              `json:"success"`
	DataType         DataType          `json:"data_type"`
	Data             Record            `json:"data,omitempty"`
	Errors           []string          `json:"errors,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	QualityScore     *QualityScore     `json:"quality_score,omitempty"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
	LineageInfo      *LineageInfo      `json:"lineage_info,omitempty"`
	ProcessingTime   time.Duration     `json:"processing_time"`
}

// BatchRequest is one item of a batch normalization run.
type BatchRequest struct {
	DataType  DataType         `json:"data_type" validate:"required"`
	Payload   RawSourcePayload `json:"payload"`
	Indicator string           `json:"indicator,omitempty"` // technical_indicator only
}

// BatchSummary aggregates the outcome of one batch run.
type BatchSummary struct {
	TotalProcessed int           `json:"total_processed"`
	Successful     int           `json:"successful"`
	Failed         int           `json:"failed"`
	Duration       time.Duration `json:"duration"`
}

// BatchResult carries per-item results in request order plus the summary.
type BatchResult struct {
	ID      string                `json:"id"`
	Results []NormalizationResult `json:"results"`
	Summary BatchSummary          `json:"summary"`
}

// PipelineStatistics are the orchestrator's cumulative counters. They
// persist for the orchestrator's lifetime and are cleared only by an
// explicit reset.
type PipelineStatistics struct {
	Pipeline   PipelineCounters   `json:"pipeline"`
	Quality    QualityCounters    `json:"quality"`
	Validation ValidationCounters `json:"validation"`
	Lineage    LineageCounters    `json:"lineage"`
}

// PipelineCounters count normalization outcomes.
type PipelineCounters struct {
	TotalNormalizations int64   `json:"total_normalizations"`
	Successful          int64   `json:"successful"`
	Failed              int64   `json:"failed"`
	SuccessRate         float64 `json:"success_rate"`
}

// QualityCounters summarize observed quality scores.
type QualityCounters struct {
	ScoredRecords int64   `json:"scored_records"`
	AverageScore  float64 `json:"average_score"`
	BelowMinimum  int64   `json:"below_minimum"`
}

// ValidationCounters count validation outcomes.
type ValidationCounters struct {
	ValidRecords   int64 `json:"valid_records"`
	InvalidRecords int64 `json:"invalid_records"`
	Discrepancies  int64 `json:"discrepancies"`
}

// LineageCounters count recorded audit steps.
type LineageCounters struct {
	TrailsCreated int64 `json:"trails_created"`
	StepsRecorded int64 `json:"steps_recorded"`
}
