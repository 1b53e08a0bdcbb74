package fusion

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfuse/internal/config"
	"marketfuse/pkg/contracts/domain"
)

var testNow = time.Date(2024, 1, 31, 16, 0, 0, 0, time.UTC)

func testSources() []config.SourceConfig {
	return []config.SourceConfig{
		{Name: "polygon", Priority: 1, Weight: 1.0, Reputation: 0.95},
		{Name: "yahoo", Priority: 2, Weight: 0.8, Reputation: 0.85},
		{Name: "fmp", Priority: 3, Weight: 0.8, Reputation: 0.85},
	}
}

func newTestEngine(t *testing.T, minQuality float64, opts ...Option) *Engine {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return testNow }))
	return NewEngine(testSources(), minQuality, nil, opts...)
}

func candidate(source string, value interface{}, quality float64, ts time.Time) domain.FusionCandidate {
	return domain.FusionCandidate{
		Source:    source,
		Value:     value,
		Timestamp: ts,
		Quality:   domain.QualityScore{Overall: quality, Source: source, Timestamp: ts},
	}
}

func rule(strategy domain.FusionStrategy, threshold float64) domain.FusionRule {
	return domain.FusionRule{Field: "close", Strategy: strategy, ThresholdPercent: threshold}
}

func TestFuseNoCandidates(t *testing.T) {
	e := newTestEngine(t, 0)
	_, err := e.Fuse("close", nil, rule(domain.StrategyHighestQuality, 1.0))
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestFuseAllBelowMinimumQuality(t *testing.T) {
	e := newTestEngine(t, 0.3)
	candidates := []domain.FusionCandidate{
		candidate("polygon", 100.0, 0.2, testNow),
		candidate("yahoo", 101.0, 0.1, testNow),
	}
	_, err := e.Fuse("close", candidates, rule(domain.StrategyHighestQuality, 1.0))
	assert.ErrorIs(t, err, ErrAllBelowQuality)
}

func TestFuseHighestQualityWithConflict(t *testing.T) {
	e := newTestEngine(t, 0.3)
	candidates := []domain.FusionCandidate{
		candidate("polygon", 100.0, 0.9, testNow),
		candidate("yahoo", 110.0, 0.5, testNow),
	}

	result, err := e.Fuse("close", candidates, rule(domain.StrategyHighestQuality, 1.0))
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Value)
	assert.Equal(t, "polygon", result.Metadata.PrimarySource)
	assert.InDelta(t, 0.9, result.Metadata.QualityScore, 1e-9)
	assert.Equal(t, 1, result.Metadata.Conflicts)
	assert.ElementsMatch(t, []string{"polygon", "yahoo"}, result.Metadata.Sources)

	// Spread (110-100)/110 is ~9.09%, over the 1% threshold.
	require.NotNil(t, result.Discrepancy)
	d := result.Discrepancy
	assert.Equal(t, "close", d.Field)
	assert.Equal(t, domain.SeverityMedium, d.Severity)
	assert.InDelta(t, 9.0909, d.Variance, 0.001)
	assert.Len(t, d.SourceValues, 2)
	assert.Equal(t, 100.0, d.SourceValues["polygon"])
	assert.Equal(t, 110.0, d.SourceValues["yahoo"])
	assert.Equal(t, string(domain.StrategyHighestQuality), d.Resolution.Strategy)
	assert.Equal(t, 100.0, d.Resolution.ResolvedValue)
	assert.Contains(t, d.Resolution.Reason, "2 sources disagreed on close")
}

func TestFuseAgreementWithinThreshold(t *testing.T) {
	e := newTestEngine(t, 0.3)
	candidates := []domain.FusionCandidate{
		candidate("polygon", 152.30, 0.9, testNow),
		candidate("yahoo", 152.35, 0.8, testNow),
	}

	result, err := e.Fuse("close", candidates, rule(domain.StrategyHighestQuality, 1.0))
	require.NoError(t, err)
	assert.Equal(t, 152.30, result.Value)
	assert.Equal(t, 0, result.Metadata.Conflicts)
	assert.Nil(t, result.Discrepancy)
}

func TestFuseSingleSurvivorPassThrough(t *testing.T) {
	e := newTestEngine(t, 0.3)
	candidates := []domain.FusionCandidate{
		candidate("polygon", 100.0, 0.9, testNow),
		candidate("yahoo", 250.0, 0.1, testNow), // filtered out
	}

	result, err := e.Fuse("close", candidates, rule(domain.StrategyHighestQuality, 1.0))
	require.NoError(t, err)
	assert.Equal(t, 100.0, result.Value)
	assert.Equal(t, "polygon", result.Metadata.PrimarySource)
	assert.Equal(t, 0, result.Metadata.Conflicts)
	assert.Nil(t, result.Discrepancy)
	// All input sources stay visible in the metadata.
	assert.ElementsMatch(t, []string{"polygon", "yahoo"}, result.Metadata.Sources)
}

func TestFuseMostRecent(t *testing.T) {
	e := newTestEngine(t, 0)
	candidates := []domain.FusionCandidate{
		candidate("polygon", 100.0, 0.9, testNow.Add(-time.Hour)),
		candidate("yahoo", 101.0, 0.5, testNow),
	}

	result, err := e.Fuse("close", candidates, rule(domain.StrategyMostRecent, 5.0))
	require.NoError(t, err)
	assert.Equal(t, 101.0, result.Value)
	assert.Equal(t, "yahoo", result.Metadata.PrimarySource)
	assert.Equal(t, 0, result.Metadata.Conflicts) // 1% spread under the 5% threshold
}

func TestFuseMostRecentTieBreaksByPriority(t *testing.T) {
	e := newTestEngine(t, 0)
	candidates := []domain.FusionCandidate{
		candidate("yahoo", 101.0, 0.5, testNow),
		candidate("polygon", 100.0, 0.9, testNow),
	}

	result, err := e.Fuse("close", candidates, rule(domain.StrategyMostRecent, 5.0))
	require.NoError(t, err)
	assert.Equal(t, "polygon", result.Metadata.PrimarySource)
}

func TestFuseHighestQualityTieBreaks(t *testing.T) {
	e := newTestEngine(t, 0)

	t.Run("priority wins", func(t *testing.T) {
		candidates := []domain.FusionCandidate{
			candidate("yahoo", 101.0, 0.9, testNow),
			candidate("polygon", 100.0, 0.9, testNow),
		}
		result, err := e.Fuse("close", candidates, rule(domain.StrategyHighestQuality, 50.0))
		require.NoError(t, err)
		assert.Equal(t, "polygon", result.Metadata.PrimarySource)
	})

	t.Run("lexicographic for unknown sources", func(t *testing.T) {
		candidates := []domain.FusionCandidate{
			candidate("zeta", 101.0, 0.9, testNow),
			candidate("alpha", 100.0, 0.9, testNow),
		}
		result, err := e.Fuse("close", candidates, rule(domain.StrategyHighestQuality, 50.0))
		require.NoError(t, err)
		assert.Equal(t, "alpha", result.Metadata.PrimarySource)
	})
}

func TestFuseConsensus(t *testing.T) {
	e := newTestEngine(t, 0)

	t.Run("majority wins", func(t *testing.T) {
		candidates := []domain.FusionCandidate{
			candidate("polygon", 100.0, 0.7, testNow),
			candidate("yahoo", 100.0, 0.6, testNow),
			candidate("fmp", 110.0, 0.95, testNow),
		}
		result, err := e.Fuse("close", candidates, rule(domain.StrategyConsensus, 1.0))
		require.NoError(t, err)
		assert.Equal(t, 100.0, result.Value)
		assert.Equal(t, "polygon", result.Metadata.PrimarySource)
		assert.Equal(t, 1, result.Metadata.Conflicts)
	})

	t.Run("float noise does not split a group", func(t *testing.T) {
		candidates := []domain.FusionCandidate{
			candidate("polygon", 100.00001, 0.7, testNow),
			candidate("yahoo", 100.00002, 0.6, testNow),
			candidate("fmp", 110.0, 0.95, testNow),
		}
		result, err := e.Fuse("close", candidates, rule(domain.StrategyConsensus, 1.0))
		require.NoError(t, err)
		assert.Equal(t, "polygon", result.Metadata.PrimarySource)
	})

	t.Run("tied groups break by quality", func(t *testing.T) {
		candidates := []domain.FusionCandidate{
			candidate("polygon", 100.0, 0.6, testNow),
			candidate("yahoo", 110.0, 0.9, testNow),
		}
		result, err := e.Fuse("close", candidates, rule(domain.StrategyConsensus, 1.0))
		require.NoError(t, err)
		assert.Equal(t, 110.0, result.Value)
		assert.Equal(t, "yahoo", result.Metadata.PrimarySource)
	})
}

func TestFuseWeightedAverage(t *testing.T) {
	t.Run("quality and weight scaled", func(t *testing.T) {
		e := newTestEngine(t, 0)
		candidates := []domain.FusionCandidate{
			candidate("polygon", 100.0, 0.9, testNow), // weight 1.0
			candidate("yahoo", 110.0, 0.5, testNow),   // weight 0.8
		}
		result, err := e.Fuse("close", candidates, rule(domain.StrategyWeightedAverage, 50.0))
		require.NoError(t, err)

		// (100*0.9*1.0 + 110*0.5*0.8) / (0.9*1.0 + 0.5*0.8)
		want := (100.0*0.9 + 110.0*0.4) / (0.9 + 0.4)
		assert.InDelta(t, want, result.Value.(float64), 1e-9)
		assert.Equal(t, "polygon", result.Metadata.PrimarySource)
	})

	t.Run("unknown source defaults to weight one", func(t *testing.T) {
		e := newTestEngine(t, 0)
		candidates := []domain.FusionCandidate{
			candidate("newprovider", 100.0, 0.5, testNow),
			candidate("polygon", 200.0, 0.5, testNow),
		}
		result, err := e.Fuse("close", candidates, rule(domain.StrategyWeightedAverage, 200.0))
		require.NoError(t, err)
		assert.InDelta(t, 150.0, result.Value.(float64), 1e-9)
	})

	t.Run("non-numeric falls back to highest quality", func(t *testing.T) {
		e := newTestEngine(t, 0)
		candidates := []domain.FusionCandidate{
			candidate("polygon", "NASDAQ", 0.9, testNow),
			candidate("yahoo", "NMS", 0.5, testNow),
		}
		result, err := e.Fuse("exchange", candidates, rule(domain.StrategyWeightedAverage, 1.0))
		require.NoError(t, err)
		assert.Equal(t, "NASDAQ", result.Value)
		assert.Equal(t, "polygon", result.Metadata.PrimarySource)
	})
}

func TestFuseCustomResolver(t *testing.T) {
	t.Run("resolver applied", func(t *testing.T) {
		resolver := func(field string, candidates []domain.FusionCandidate) (interface{}, string, error) {
			return 42.0, "polygon", nil
		}
		e := newTestEngine(t, 0, WithResolver(resolver))
		candidates := []domain.FusionCandidate{
			candidate("polygon", 100.0, 0.9, testNow),
			candidate("yahoo", 101.0, 0.5, testNow),
		}
		result, err := e.Fuse("close", candidates, rule(domain.StrategyCustom, 100.0))
		require.NoError(t, err)
		assert.Equal(t, 42.0, result.Value)
		assert.Equal(t, "polygon", result.Metadata.PrimarySource)
	})

	t.Run("missing resolver errors", func(t *testing.T) {
		e := newTestEngine(t, 0)
		candidates := []domain.FusionCandidate{
			candidate("polygon", 100.0, 0.9, testNow),
			candidate("yahoo", 101.0, 0.5, testNow),
		}
		_, err := e.Fuse("close", candidates, rule(domain.StrategyCustom, 1.0))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no resolver installed")
	})

	t.Run("resolver error wrapped", func(t *testing.T) {
		resolver := func(field string, candidates []domain.FusionCandidate) (interface{}, string, error) {
			return nil, "", fmt.Errorf("upstream unavailable")
		}
		e := newTestEngine(t, 0, WithResolver(resolver))
		candidates := []domain.FusionCandidate{
			candidate("polygon", 100.0, 0.9, testNow),
			candidate("yahoo", 101.0, 0.5, testNow),
		}
		_, err := e.Fuse("close", candidates, rule(domain.StrategyCustom, 1.0))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "custom resolver")
	})
}

func TestFuseNonNumericDisagreement(t *testing.T) {
	e := newTestEngine(t, 0)
	candidates := []domain.FusionCandidate{
		candidate("polygon", "Technology", 0.9, testNow),
		candidate("yahoo", "Information Technology", 0.5, testNow),
	}

	result, err := e.Fuse("sector", candidates, rule(domain.StrategyHighestQuality, 1.0))
	require.NoError(t, err)
	assert.Equal(t, "Technology", result.Value)
	assert.Equal(t, 1, result.Metadata.Conflicts)
	require.NotNil(t, result.Discrepancy)
	assert.Zero(t, result.Discrepancy.Variance)
}

func TestFuseUnknownStrategy(t *testing.T) {
	e := newTestEngine(t, 0)
	candidates := []domain.FusionCandidate{
		candidate("polygon", 100.0, 0.9, testNow),
		candidate("yahoo", 101.0, 0.5, testNow),
	}
	_, err := e.Fuse("close", candidates, rule(domain.FusionStrategy("vote_twice"), 1.0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestFuseTimestampFromClock(t *testing.T) {
	e := newTestEngine(t, 0)
	candidates := []domain.FusionCandidate{
		candidate("polygon", 100.0, 0.9, testNow),
		candidate("yahoo", 100.0, 0.5, testNow),
	}
	result, err := e.Fuse("close", candidates, rule(domain.StrategyHighestQuality, 1.0))
	require.NoError(t, err)
	assert.Equal(t, testNow, result.Metadata.FusionTimestamp)
}
