// Package lineage builds the append-only audit trail recorded while a
// record moves through normalization, validation and quality scoring.
package lineage

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"marketfuse/pkg/contracts/domain"
)

// Tracker accumulates the audit trail for one top-level pipeline call.
// It is append-only; Snapshot returns an immutable copy, so the trail a
// caller receives can never be mutated by later appends.
type Tracker struct {
	mu              sync.Mutex
	id              string
	sourceID        string
	createdAt       time.Time
	transformations []domain.LineageStep
	validationSteps []domain.LineageStep
	qualityChecks   []domain.LineageStep
	clock           func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock substitutes the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// NewTracker creates a tracker for one normalize or fuse call against the
// given provider id.
func NewTracker(sourceID string, opts ...Option) *Tracker {
	t := &Tracker{
		id:       uuid.NewString(),
		sourceID: sourceID,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.createdAt = t.clock()
	return t
}

// RecordTransformation appends one transformation step.
func (t *Tracker) RecordTransformation(step, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transformations = append(t.transformations, domain.LineageStep{
		Step:      step,
		Timestamp: t.clock(),
		Detail:    detail,
	})
}

// RecordValidationStep appends one validation step.
func (t *Tracker) RecordValidationStep(step, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.validationSteps = append(t.validationSteps, domain.LineageStep{
		Step:      step,
		Timestamp: t.clock(),
		Detail:    detail,
	})
}

// RecordQualityCheck appends one quality check step.
func (t *Tracker) RecordQualityCheck(step, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.qualityChecks = append(t.qualityChecks, domain.LineageStep{
		Step:      step,
		Timestamp: t.clock(),
		Detail:    detail,
	})
}

// StepCount returns the number of steps recorded so far.
func (t *Tracker) StepCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.transformations) + len(t.validationSteps) + len(t.qualityChecks)
}

// Snapshot returns an immutable copy of the trail recorded so far. Steps
// appear in the order the components executed.
func (t *Tracker) Snapshot() domain.LineageInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := domain.LineageInfo{
		ID:              t.id,
		SourceID:        t.sourceID,
		CreatedAt:       t.createdAt,
		Transformations: make([]domain.LineageStep, len(t.transformations)),
		ValidationSteps: make([]domain.LineageStep, len(t.validationSteps)),
		QualityChecks:   make([]domain.LineageStep, len(t.qualityChecks)),
	}
	copy(info.Transformations, t.transformations)
	copy(info.ValidationSteps, t.validationSteps)
	copy(info.QualityChecks, t.qualityChecks)
	return info
}
