// Package quality computes the composite 0-1 trust score for canonical
// records from freshness, completeness, accuracy, source reputation and
// fetch latency signals.
package quality

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"marketfuse/internal/config"
	"marketfuse/internal/lineage"
	"marketfuse/pkg/contracts/domain"
)

// neutralScore substitutes for metrics whose inputs are missing, so a
// gap in one signal never fails the whole pipeline.
const neutralScore = 0.5

// Scorer computes quality scores. It never fails: missing inputs score
// neutral rather than erroring.
type Scorer struct {
	cfg     config.QualityConfig
	sources map[string]config.SourceConfig
	logger  *slog.Logger
	clock   func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock substitutes the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Scorer) { s.clock = clock }
}

// NewScorer creates a quality scorer for the configured sources.
func NewScorer(cfg config.QualityConfig, sources []config.SourceConfig, logger *slog.Logger, opts ...Option) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]config.SourceConfig, len(sources))
	for _, src := range sources {
		byName[src.Name] = src
	}
	s := &Scorer{
		cfg:     cfg,
		sources: byName,
		logger:  logger.With(slog.String("component", "quality_scorer")),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the quality score for one validated record. latencyMs is
// the fetch latency reported by the collector, informational unless a
// latency weight is configured.
func (s *Scorer) Score(record domain.Record, vr domain.ValidationResult, latencyMs int64, tracker *lineage.Tracker) domain.QualityScore {
	now := s.clock()

	metrics := domain.QualityMetrics{
		Freshness:        s.freshness(record, now),
		Completeness:     completeness(record),
		Accuracy:         clamp01(vr.Confidence),
		SourceReputation: s.reputation(record.RecordSource()),
		LatencyMs:        float64(latencyMs),
	}

	weights := s.cfg.Weights
	overall := weights.Freshness*metrics.Freshness +
		weights.Completeness*metrics.Completeness +
		weights.Accuracy*metrics.Accuracy +
		weights.SourceReputation*metrics.SourceReputation
	if weights.Latency > 0 {
		overall += weights.Latency * latencyScore(metrics.LatencyMs)
	}
	overall = clamp01(overall)

	if tracker != nil {
		tracker.RecordQualityCheck("composite_score",
			fmt.Sprintf("overall=%.3f freshness=%.2f completeness=%.2f accuracy=%.2f reputation=%.2f",
				overall, metrics.Freshness, metrics.Completeness, metrics.Accuracy, metrics.SourceReputation))
	}
	s.logger.Debug("scored record",
		slog.String("source", record.RecordSource()),
		slog.String("symbol", record.RecordSymbol()),
		slog.Float64("overall", overall))

	return domain.QualityScore{
		Overall:   overall,
		Metrics:   metrics,
		Timestamp: now,
		Source:    record.RecordSource(),
	}
}

// freshness decays exponentially with record age: 1.0 at age zero,
// ~0.37 at one horizon, asymptotically zero beyond.
func (s *Scorer) freshness(record domain.Record, now time.Time) float64 {
	ts := record.RecordTimestamp()
	if ts.IsZero() || s.cfg.FreshnessHorizon <= 0 {
		return neutralScore
	}
	age := now.Sub(ts)
	if age <= 0 {
		return 1.0
	}
	return clamp01(math.Exp(-float64(age) / float64(s.cfg.FreshnessHorizon)))
}

// reputation returns the configured per-source trust modifier, clamped to
// [0,1]. Unknown sources score neutral.
func (s *Scorer) reputation(source string) float64 {
	src, ok := s.sources[source]
	if !ok {
		return neutralScore
	}
	return clamp01(src.Reputation)
}

// completeness is the fraction of expected fields present and non-zero
// for the record's type.
func completeness(record domain.Record) float64 {
	var present, expected int
	count := func(populated bool) {
		expected++
		if populated {
			present++
		}
	}

	switch rec := record.(type) {
	case *domain.StockPrice:
		count(rec.Symbol != "")
		count(rec.Open > 0)
		count(rec.High > 0)
		count(rec.Low > 0)
		count(rec.Close > 0)
		count(rec.Volume > 0)
		count(!rec.Timestamp.IsZero())
	case *domain.CompanyInfo:
		count(rec.Symbol != "")
		count(rec.Name != "")
		count(rec.Exchange != "")
		count(rec.Sector != "")
		count(rec.Industry != "")
		count(rec.MarketCap > 0)
		count(rec.Description != "")
		count(rec.Website != "")
	case *domain.FinancialStatement:
		count(rec.Symbol != "")
		count(rec.Period != "")
		count(rec.FiscalYear > 0)
		count(rec.Revenue != 0)
		count(rec.NetIncome != 0)
		count(rec.TotalAssets != 0)
		count(rec.TotalLiabilities != 0)
		count(rec.TotalStockholdersEquity != 0)
		count(rec.OperatingCashFlow != 0)
	case *domain.TechnicalIndicator:
		count(rec.Symbol != "")
		count(rec.Indicator != "")
		count(!rec.Timestamp.IsZero())
		count(rec.Period > 0)
	case *domain.NewsDigest:
		if len(rec.Items) == 0 {
			return 0
		}
		var total float64
		for i := range rec.Items {
			total += newsItemCompleteness(&rec.Items[i])
		}
		return total / float64(len(rec.Items))
	default:
		return neutralScore
	}

	if expected == 0 {
		return neutralScore
	}
	return float64(present) / float64(expected)
}

// newsItemCompleteness scores one article.
func newsItemCompleteness(item *domain.NewsItem) float64 {
	var present, expected int
	count := func(populated bool) {
		expected++
		if populated {
			present++
		}
	}
	count(item.Title != "")
	count(item.Summary != "")
	count(item.URL != "")
	count(!item.Timestamp.IsZero())
	count(item.SentimentLabel != "")
	return float64(present) / float64(expected)
}

// latencyScore maps a fetch latency in ms onto [0,1]: 1.0 under 100ms
// dropping linearly to 0 at 5s.
func latencyScore(latencyMs float64) float64 {
	const fast, slow = 100.0, 5000.0
	if latencyMs <= 0 {
		return neutralScore
	}
	if latencyMs <= fast {
		return 1.0
	}
	if latencyMs >= slow {
		return 0
	}
	return 1.0 - (latencyMs-fast)/(slow-fast)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
