// Package fusion resolves conflicting per-source values for the same
// logical entity into one authoritative value, using a configured strategy,
// and documents every settled disagreement as a discrepancy.
package fusion

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"marketfuse/internal/config"
	"marketfuse/pkg/contracts/domain"
)

// ErrNoCandidates is returned when fusion is invoked with no candidates.
var ErrNoCandidates = errors.New("fusion: no candidates")

// ErrAllBelowQuality is returned when the minimum quality threshold
// excludes every candidate. Distinct from normalization errors by design.
var ErrAllBelowQuality = errors.New("fusion: all candidates below minimum quality")

// Resolver is a caller-supplied resolution function for StrategyCustom.
// It receives the field name and the full candidate list and returns the
// resolved value plus the source it came from.
type Resolver func(field string, candidates []domain.FusionCandidate) (value interface{}, source string, err error)

// Engine fuses quality-scored candidates. It performs no I/O and assumes
// every candidate was already independently normalized and validated.
type Engine struct {
	sources    map[string]config.SourceConfig
	minQuality float64
	resolver   Resolver
	logger     *slog.Logger
	clock      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver installs the custom resolver used by StrategyCustom.
func WithResolver(r Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithClock substitutes the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates a fusion engine for the configured sources.
func NewEngine(sources []config.SourceConfig, minQuality float64, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]config.SourceConfig, len(sources))
	for _, src := range sources {
		byName[src.Name] = src
	}
	e := &Engine{
		sources:    byName,
		minQuality: minQuality,
		logger:     logger.With(slog.String("component", "fusion_engine")),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fuse resolves the candidates for one field to a single authoritative
// value under the given rule. A discrepancy is attached whenever candidate
// values differ beyond the rule's threshold, even though resolution
// succeeded: it documents what was reconciled, not just failures.
func (e *Engine) Fuse(field string, candidates []domain.FusionCandidate, rule domain.FusionRule) (*domain.FusionResult, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	eligible := e.filterByQuality(candidates)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: %d candidates under %.2f", ErrAllBelowQuality, len(candidates), e.minQuality)
	}

	allSources := make([]string, 0, len(candidates))
	for _, c := range candidates {
		allSources = append(allSources, c.Source)
	}

	// Quality filtering degraded fusion to a pass-through.
	if len(eligible) == 1 {
		winner := eligible[0]
		return &domain.FusionResult{
			Value: winner.Value,
			Metadata: domain.FusionMetadata{
				Sources:            allSources,
				PrimarySource:      winner.Source,
				QualityScore:       winner.Quality.Overall,
				Conflicts:          0,
				ResolutionStrategy: rule.Strategy,
				FusionTimestamp:    e.clock(),
			},
		}, nil
	}

	winner, value, err := e.resolve(field, eligible, rule)
	if err != nil {
		return nil, err
	}

	variance, conflicting := disagreement(candidates, value, rule.ThresholdPercent)

	result := &domain.FusionResult{
		Value: value,
		Metadata: domain.FusionMetadata{
			Sources:            allSources,
			PrimarySource:      winner,
			QualityScore:       e.qualityOf(eligible, winner),
			ResolutionStrategy: rule.Strategy,
			FusionTimestamp:    e.clock(),
		},
	}

	if conflicting {
		result.Metadata.Conflicts = 1
		// Every input source appears, even the outvoted and the
		// quality-filtered ones.
		sourceValues := make(map[string]interface{}, len(candidates))
		for _, c := range candidates {
			sourceValues[c.Source] = c.Value
		}
		result.Discrepancy = &domain.Discrepancy{
			ID:           uuid.NewString(),
			Field:        field,
			SourceValues: sourceValues,
			Variance:     variance,
			Severity:     domain.SeverityMedium,
			Resolution: domain.Resolution{
				Strategy:      string(rule.Strategy),
				ResolvedValue: value,
				Reason: fmt.Sprintf("%d sources disagreed on %s beyond %.2f%% (spread %.2f%%); resolved via %s from %s",
					len(candidates), field, rule.ThresholdPercent, variance, rule.Strategy, winner),
			},
			DetectedAt: e.clock(),
		}
		e.logger.Debug("recorded fusion conflict",
			slog.String("field", field),
			slog.Float64("variance_pct", variance),
			slog.String("winner", winner))
	}

	return result, nil
}

// resolve picks the winning value under the strategy.
func (e *Engine) resolve(field string, eligible []domain.FusionCandidate, rule domain.FusionRule) (source string, value interface{}, err error) {
	switch rule.Strategy {
	case domain.StrategyHighestQuality:
		winner := e.pickHighestQuality(eligible)
		return winner.Source, winner.Value, nil

	case domain.StrategyMostRecent:
		winner := e.pickMostRecent(eligible)
		return winner.Source, winner.Value, nil

	case domain.StrategyConsensus:
		winner := e.pickConsensus(eligible)
		return winner.Source, winner.Value, nil

	case domain.StrategyWeightedAverage:
		avg, ok := e.weightedAverage(eligible)
		if !ok {
			// Non-numeric fields fall back to highest quality.
			winner := e.pickHighestQuality(eligible)
			return winner.Source, winner.Value, nil
		}
		best := e.pickHighestQuality(eligible)
		return best.Source, avg, nil

	case domain.StrategyCustom:
		if e.resolver == nil {
			return "", nil, fmt.Errorf("fusion: custom strategy configured but no resolver installed")
		}
		value, source, err := e.resolver(field, eligible)
		if err != nil {
			return "", nil, fmt.Errorf("fusion: custom resolver: %w", err)
		}
		return source, value, nil

	default:
		return "", nil, fmt.Errorf("fusion: unknown strategy %q", rule.Strategy)
	}
}

// filterByQuality drops candidates under the minimum acceptable quality.
func (e *Engine) filterByQuality(candidates []domain.FusionCandidate) []domain.FusionCandidate {
	if e.minQuality <= 0 {
		return candidates
	}
	eligible := make([]domain.FusionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Quality.Overall >= e.minQuality {
			eligible = append(eligible, c)
		}
	}
	return eligible
}

// pickHighestQuality selects max quality; ties break by source priority
// then lexicographic source id.
func (e *Engine) pickHighestQuality(candidates []domain.FusionCandidate) domain.FusionCandidate {
	winner := candidates[0]
	for _, c := range candidates[1:] {
		if c.Quality.Overall > winner.Quality.Overall {
			winner = c
			continue
		}
		if c.Quality.Overall == winner.Quality.Overall && e.outranks(c.Source, winner.Source) {
			winner = c
		}
	}
	return winner
}

// pickMostRecent selects max timestamp; ties break like highest quality.
func (e *Engine) pickMostRecent(candidates []domain.FusionCandidate) domain.FusionCandidate {
	winner := candidates[0]
	for _, c := range candidates[1:] {
		if c.Timestamp.After(winner.Timestamp) {
			winner = c
			continue
		}
		if c.Timestamp.Equal(winner.Timestamp) && e.outranks(c.Source, winner.Source) {
			winner = c
		}
	}
	return winner
}

// pickConsensus groups candidates by equal (rounded for numerics) value
// and selects the largest group; tied groups break by highest quality.
func (e *Engine) pickConsensus(candidates []domain.FusionCandidate) domain.FusionCandidate {
	groups := make(map[string][]domain.FusionCandidate)
	for _, c := range candidates {
		groups[consensusKey(c)] = append(groups[consensusKey(c)], c)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic iteration

	var best []domain.FusionCandidate
	for _, k := range keys {
		group := groups[k]
		switch {
		case len(group) > len(best):
			best = group
		case len(group) == len(best) && len(best) > 0:
			if e.pickHighestQuality(group).Quality.Overall > e.pickHighestQuality(best).Quality.Overall {
				best = group
			}
		}
	}
	return e.pickHighestQuality(best)
}

// consensusKey buckets numeric values at 4 decimal places so float noise
// does not split a consensus group.
func consensusKey(c domain.FusionCandidate) string {
	if v, ok := c.NumericValue(); ok {
		return fmt.Sprintf("n:%.4f", v)
	}
	return fmt.Sprintf("s:%v", c.Value)
}

// weightedAverage computes sum(value * quality * weight) / sum(quality * weight)
// over numeric candidates. Returns false when any candidate is non-numeric.
func (e *Engine) weightedAverage(candidates []domain.FusionCandidate) (float64, bool) {
	var num, den float64
	for _, c := range candidates {
		v, ok := c.NumericValue()
		if !ok {
			return 0, false
		}
		weight := 1.0
		if src, found := e.sources[c.Source]; found && src.Weight > 0 {
			weight = src.Weight
		}
		w := c.Quality.Overall * weight
		num += v * w
		den += w
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// outranks reports whether source a wins a tie against source b:
// lower configured priority number first, then lexicographic id.
func (e *Engine) outranks(a, b string) bool {
	pa, pb := e.priorityOf(a), e.priorityOf(b)
	if pa != pb {
		return pa < pb
	}
	return a < b
}

func (e *Engine) priorityOf(source string) int {
	if src, ok := e.sources[source]; ok && src.Priority > 0 {
		return src.Priority
	}
	return math.MaxInt32
}

func (e *Engine) qualityOf(candidates []domain.FusionCandidate, source string) float64 {
	for _, c := range candidates {
		if c.Source == source {
			return c.Quality.Overall
		}
	}
	return 0
}

// disagreement reports the candidate spread as a percentage of the
// resolved value and whether it exceeds the threshold. Non-numeric values
// disagree whenever they are unequal.
func disagreement(candidates []domain.FusionCandidate, resolved interface{}, thresholdPercent float64) (variancePct float64, conflicting bool) {
	var (
		minV, maxV  float64
		haveNumeric bool
		nonNumeric  []interface{}
	)
	for _, c := range candidates {
		if v, ok := c.NumericValue(); ok {
			if !haveNumeric {
				minV, maxV = v, v
				haveNumeric = true
			} else {
				minV = math.Min(minV, v)
				maxV = math.Max(maxV, v)
			}
		} else {
			nonNumeric = append(nonNumeric, c.Value)
		}
	}

	if !haveNumeric {
		for _, v := range nonNumeric {
			if fmt.Sprintf("%v", v) != fmt.Sprintf("%v", resolved) {
				return 0, true
			}
		}
		return 0, false
	}

	scale := math.Max(math.Abs(maxV), math.Abs(minV))
	if scale == 0 {
		return 0, false
	}
	variancePct = (maxV - minV) / scale * 100
	return variancePct, variancePct > thresholdPercent
}
