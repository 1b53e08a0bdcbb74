package lineage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStepsInOrder(t *testing.T) {
	now := time.Date(2024, 1, 31, 16, 0, 0, 0, time.UTC)
	tick := 0
	tr := NewTracker("polygon", WithClock(func() time.Time {
		tick++
		return now.Add(time.Duration(tick) * time.Millisecond)
	}))

	tr.RecordTransformation("polygon_ohlc_extraction", "extracted last bar")
	tr.RecordValidationStep("ohlc_consistency", "checked envelope")
	tr.RecordValidationStep("staleness", "age 1m")
	tr.RecordQualityCheck("composite_score", "overall=0.99")

	assert.Equal(t, 4, tr.StepCount())

	info := tr.Snapshot()
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "polygon", info.SourceID)
	assert.False(t, info.CreatedAt.IsZero())

	require.Len(t, info.Transformations, 1)
	assert.Equal(t, "polygon_ohlc_extraction", info.Transformations[0].Step)
	require.Len(t, info.ValidationSteps, 2)
	assert.Equal(t, "ohlc_consistency", info.ValidationSteps[0].Step)
	assert.Equal(t, "staleness", info.ValidationSteps[1].Step)
	require.Len(t, info.QualityChecks, 1)

	// Step timestamps come from the injected clock, strictly increasing.
	assert.True(t, info.ValidationSteps[1].Timestamp.After(info.ValidationSteps[0].Timestamp))
	assert.Equal(t, 4, info.StepCount())
}

func TestSnapshotIsImmutable(t *testing.T) {
	tr := NewTracker("yahoo")
	tr.RecordTransformation("yahoo_chart_extraction", "flattened arrays")

	first := tr.Snapshot()
	require.Len(t, first.Transformations, 1)

	// Appending after the snapshot must not change the copy already taken.
	tr.RecordTransformation("extra", "late step")
	assert.Len(t, first.Transformations, 1)

	second := tr.Snapshot()
	assert.Len(t, second.Transformations, 2)

	// Mutating the snapshot must not leak back into the tracker.
	first.Transformations[0].Step = "tampered"
	third := tr.Snapshot()
	assert.Equal(t, "yahoo_chart_extraction", third.Transformations[0].Step)
}

func TestTrackerIsSafeForConcurrentAppends(t *testing.T) {
	tr := NewTracker("fmp")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.RecordTransformation(fmt.Sprintf("step_%d", i), "")
			tr.RecordValidationStep(fmt.Sprintf("check_%d", i), "")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, tr.StepCount())
	info := tr.Snapshot()
	assert.Len(t, info.Transformations, 10)
	assert.Len(t, info.ValidationSteps, 10)
}

func TestTrackerIDsAreUnique(t *testing.T) {
	a := NewTracker("polygon")
	b := NewTracker("polygon")
	assert.NotEqual(t, a.Snapshot().ID, b.Snapshot().ID)
}
