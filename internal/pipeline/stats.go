package pipeline

import (
	"sync"

	"marketfuse/pkg/contracts/domain"
)

// Statistics accumulates the orchestrator's counters. Increments are
// synchronized so concurrent batch items never lose updates.
type Statistics struct {
	mu sync.Mutex

	totalNormalizations int64
	successful          int64
	failed              int64

	scoredRecords int64
	qualitySum    float64
	belowMinimum  int64

	validRecords   int64
	invalidRecords int64
	discrepancies  int64

	trailsCreated int64
	stepsRecorded int64
}

// NewStatistics creates an empty counter set.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// RecordSuccess accounts one successful normalization with its verdict,
// score and audit trail.
func (s *Statistics) RecordSuccess(vr domain.ValidationResult, qs domain.QualityScore, li domain.LineageInfo, minAcceptable float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalNormalizations++
	s.successful++

	s.scoredRecords++
	s.qualitySum += qs.Overall
	if qs.Overall < minAcceptable {
		s.belowMinimum++
	}

	if vr.IsValid {
		s.validRecords++
	} else {
		s.invalidRecords++
	}
	s.discrepancies += int64(len(vr.Discrepancies))

	s.trailsCreated++
	s.stepsRecorded += int64(li.StepCount())
}

// RecordFailure accounts one failed normalization.
func (s *Statistics) RecordFailure(li domain.LineageInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalNormalizations++
	s.failed++
	s.trailsCreated++
	s.stepsRecorded += int64(li.StepCount())
}

// RecordDiscrepancies accounts discrepancies settled outside normalization
// (fusion conflicts).
func (s *Statistics) RecordDiscrepancies(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discrepancies += int64(n)
}

// Snapshot returns the current counters with derived rates.
func (s *Statistics) Snapshot() domain.PipelineStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.PipelineStatistics{
		Pipeline: domain.PipelineCounters{
			TotalNormalizations: s.totalNormalizations,
			Successful:          s.successful,
			Failed:              s.failed,
		},
		Quality: domain.QualityCounters{
			ScoredRecords: s.scoredRecords,
			BelowMinimum:  s.belowMinimum,
		},
		Validation: domain.ValidationCounters{
			ValidRecords:   s.validRecords,
			InvalidRecords: s.invalidRecords,
			Discrepancies:  s.discrepancies,
		},
		Lineage: domain.LineageCounters{
			TrailsCreated: s.trailsCreated,
			StepsRecorded: s.stepsRecorded,
		},
	}
	if s.totalNormalizations > 0 {
		stats.Pipeline.SuccessRate = float64(s.successful) / float64(s.totalNormalizations)
	}
	if s.scoredRecords > 0 {
		stats.Quality.AverageScore = s.qualitySum / float64(s.scoredRecords)
	}
	return stats
}

// Reset clears all counters. Configuration is untouched by design.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalNormalizations = 0
	s.successful = 0
	s.failed = 0
	s.scoredRecords = 0
	s.qualitySum = 0
	s.belowMinimum = 0
	s.validRecords = 0
	s.invalidRecords = 0
	s.discrepancies = 0
	s.trailsCreated = 0
	s.stepsRecorded = 0
}
