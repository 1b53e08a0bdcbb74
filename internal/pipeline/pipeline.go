// Package pipeline is the public façade of the engine. It composes the
// schema normalizers, validation engine, quality scorer, lineage tracker
// and fusion engine per data type, exposes single-record and batch entry
// points, and maintains the aggregate run statistics.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketfuse/internal/config"
	"marketfuse/internal/fusion"
	"marketfuse/internal/lineage"
	"marketfuse/internal/normalize"
	"marketfuse/internal/quality"
	"marketfuse/internal/validation"
	"marketfuse/pkg/contracts/domain"
)

// ProgressEvent reports batch progress to an attached publisher.
type ProgressEvent struct {
	BatchID   string    `json:"batch_id"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher receives progress events. The websocket hub implements this;
// a nil publisher disables publishing.
type Publisher interface {
	PublishProgress(event ProgressEvent)
}

// Pipeline orchestrates normalization, validation, scoring, lineage and
// fusion. It is stateless per call except for the aggregate statistics,
// and safe for concurrent use.
type Pipeline struct {
	mu        sync.RWMutex
	cfg       config.EngineConfig
	validator *validation.Engine
	scorer    *quality.Scorer
	fuser     *fusion.Engine

	normalizer *normalize.Normalizer
	stats      *Statistics
	logger     *slog.Logger
	tracer     *Tracer
	publisher  Publisher
	resolver   fusion.Resolver
	clock      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock substitutes the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithTracer attaches OpenTelemetry instrumentation.
func WithTracer(tracer *Tracer) Option {
	return func(p *Pipeline) { p.tracer = tracer }
}

// WithPublisher attaches a batch progress publisher.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithResolver installs the resolver backing the custom fusion strategy.
func WithResolver(r fusion.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// New creates a pipeline from the engine configuration.
func New(cfg config.EngineConfig, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:    cfg,
		stats:  NewStatistics(),
		logger: logger.With(slog.String("component", "pipeline")),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.normalizer = normalize.New(logger, normalize.WithClock(p.clock))
	p.rebuild()
	return p
}

// rebuild recreates the config-dependent components. Callers hold no lock;
// rebuild takes it.
func (p *Pipeline) rebuild() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validator = validation.NewEngine(p.cfg.Validation, p.logger, validation.WithClock(p.clock))
	p.scorer = quality.NewScorer(p.cfg.Quality, p.cfg.Sources, p.logger, quality.WithClock(p.clock))
	fusionOpts := []fusion.Option{fusion.WithClock(p.clock)}
	if p.resolver != nil {
		fusionOpts = append(fusionOpts, fusion.WithResolver(p.resolver))
	}
	p.fuser = fusion.NewEngine(p.cfg.Sources, p.cfg.Quality.MinAcceptable, p.logger, fusionOpts...)
}

// components returns a consistent snapshot of the config-dependent parts.
func (p *Pipeline) components() (*validation.Engine, *quality.Scorer, *fusion.Engine, config.EngineConfig) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.validator, p.scorer, p.fuser, p.cfg
}

// NormalizeStockPrice runs one OHLCV payload through the full pipeline.
func (p *Pipeline) NormalizeStockPrice(ctx context.Context, payload domain.RawSourcePayload) domain.NormalizationResult {
	return p.process(ctx, domain.DataTypeStockPrice, payload, "")
}

// NormalizeCompanyInfo runs one company profile payload through the full
// pipeline.
func (p *Pipeline) NormalizeCompanyInfo(ctx context.Context, payload domain.RawSourcePayload) domain.NormalizationResult {
	return p.process(ctx, domain.DataTypeCompanyInfo, payload, "")
}

// NormalizeFinancialStatement runs one statement payload through the full
// pipeline.
func (p *Pipeline) NormalizeFinancialStatement(ctx context.Context, payload domain.RawSourcePayload) domain.NormalizationResult {
	return p.process(ctx, domain.DataTypeFinancialStatement, payload, "")
}

// NormalizeTechnicalIndicator runs one indicator payload through the full
// pipeline. The indicator name selects the series inside the payload.
func (p *Pipeline) NormalizeTechnicalIndicator(ctx context.Context, payload domain.RawSourcePayload, indicator string) domain.NormalizationResult {
	return p.process(ctx, domain.DataTypeTechnicalIndicator, payload, indicator)
}

// NormalizeNews runs one news feed payload through the full pipeline.
func (p *Pipeline) NormalizeNews(ctx context.Context, payload domain.RawSourcePayload) domain.NormalizationResult {
	return p.process(ctx, domain.DataTypeNews, payload, "")
}

// Normalize dispatches a batch request item to the matching entry point.
func (p *Pipeline) Normalize(ctx context.Context, req domain.BatchRequest) domain.NormalizationResult {
	switch req.DataType {
	case domain.DataTypeStockPrice:
		return p.NormalizeStockPrice(ctx, req.Payload)
	case domain.DataTypeCompanyInfo:
		return p.NormalizeCompanyInfo(ctx, req.Payload)
	case domain.DataTypeFinancialStatement:
		return p.NormalizeFinancialStatement(ctx, req.Payload)
	case domain.DataTypeTechnicalIndicator:
		return p.NormalizeTechnicalIndicator(ctx, req.Payload, req.Indicator)
	case domain.DataTypeNews:
		return p.NormalizeNews(ctx, req.Payload)
	default:
		return domain.NormalizationResult{
			Success:  false,
			DataType: req.DataType,
			Errors:   []string{fmt.Sprintf("normalization error: unknown data type %q", req.DataType)},
		}
	}
}

// process is the shared single-record path: normalize, validate, score,
// snapshot lineage, account statistics.
func (p *Pipeline) process(ctx context.Context, dataType domain.DataType, payload domain.RawSourcePayload, indicator string) domain.NormalizationResult {
	start := p.clock()
	validator, scorer, _, cfg := p.components()
	tracker := lineage.NewTracker(payload.Source, lineage.WithClock(p.clock))

	ctx, span := p.tracer.StartNormalization(ctx, dataType, payload.Source)

	record, err := p.dispatch(dataType, payload, indicator, tracker)
	if err != nil {
		li := tracker.Snapshot()
		p.stats.RecordFailure(li)
		result := domain.NormalizationResult{
			Success:        false,
			DataType:       dataType,
			Errors:         []string{fmt.Sprintf("normalization error: %v", err)},
			LineageInfo:    &li,
			ProcessingTime: p.clock().Sub(start),
		}
		p.tracer.RecordNormalization(ctx, span, dataType, false, 0, result.ProcessingTime)
		p.logger.Warn("normalization failed",
			slog.String("data_type", string(dataType)),
			slog.String("source", payload.Source),
			slog.String("symbol", payload.Symbol),
			slog.String("error", err.Error()))
		return result
	}

	vr := validator.Validate(record, tracker)
	qs := scorer.Score(record, vr, payload.LatencyMs, tracker)
	li := tracker.Snapshot()

	p.stats.RecordSuccess(vr, qs, li, cfg.Quality.MinAcceptable)

	result := domain.NormalizationResult{
		Success:          true,
		DataType:         dataType,
		Data:             record,
		Warnings:         vr.Warnings,
		QualityScore:     &qs,
		ValidationResult: &vr,
		LineageInfo:      &li,
		ProcessingTime:   p.clock().Sub(start),
	}
	p.tracer.RecordNormalization(ctx, span, dataType, true, len(vr.Discrepancies), result.ProcessingTime)
	return result
}

// dispatch routes to the normalizer for the data type.
func (p *Pipeline) dispatch(dataType domain.DataType, payload domain.RawSourcePayload, indicator string, tracker *lineage.Tracker) (domain.Record, error) {
	switch dataType {
	case domain.DataTypeStockPrice:
		return p.normalizer.StockPrice(payload, tracker)
	case domain.DataTypeCompanyInfo:
		return p.normalizer.CompanyInfo(payload, tracker)
	case domain.DataTypeFinancialStatement:
		return p.normalizer.FinancialStatement(payload, tracker)
	case domain.DataTypeTechnicalIndicator:
		return p.normalizer.TechnicalIndicator(payload, indicator, tracker)
	case domain.DataTypeNews:
		return p.normalizer.News(payload, tracker)
	default:
		return nil, fmt.Errorf("unknown data type %q", dataType)
	}
}

// Fuse resolves pre-scored candidates for one field using the configured
// rule for that field, or the explicit strategy when given.
func (p *Pipeline) Fuse(ctx context.Context, field string, candidates []domain.FusionCandidate, strategy domain.FusionStrategy) (*domain.FusionResult, error) {
	_, _, fuser, cfg := p.components()

	rule := cfg.RuleForField(field)
	if strategy != "" {
		rule.Strategy = strategy
	}

	result, err := fuser.Fuse(field, candidates, rule)
	if err != nil {
		return nil, err
	}
	if result.Discrepancy != nil {
		p.stats.RecordDiscrepancies(1)
	}
	p.tracer.RecordFusion(ctx, field, result.Metadata.Conflicts)
	return result, nil
}

// Statistics returns the cumulative orchestrator counters.
func (p *Pipeline) Statistics() domain.PipelineStatistics {
	return p.stats.Snapshot()
}

// Reset clears accumulated statistics. Configuration is preserved.
func (p *Pipeline) Reset() {
	p.stats.Reset()
	p.logger.Info("pipeline statistics reset")
}

// ConfigPatch is a partial engine configuration; nil fields keep their
// current values.
type ConfigPatch struct {
	DefaultStrategy *domain.FusionStrategy   `json:"default_strategy,omitempty"`
	Rules           []domain.FusionRule      `json:"rules,omitempty"`
	Sources         []config.SourceConfig    `json:"sources,omitempty"`
	Validation      *config.ValidationConfig `json:"validation,omitempty"`
	Quality         *config.QualityConfig    `json:"quality,omitempty"`
	Performance     *config.PerformanceConfig `json:"performance,omitempty"`
}

// UpdateConfig merges the patch into the active configuration. The change
// applies to subsequent calls only; nothing is reprocessed and statistics
// are untouched.
func (p *Pipeline) UpdateConfig(patch ConfigPatch) error {
	p.mu.Lock()
	next := p.cfg
	if patch.DefaultStrategy != nil {
		next.DefaultStrategy = *patch.DefaultStrategy
	}
	if patch.Rules != nil {
		next.Rules = patch.Rules
	}
	if patch.Sources != nil {
		next.Sources = patch.Sources
	}
	if patch.Validation != nil {
		next.Validation = *patch.Validation
	}
	if patch.Quality != nil {
		next.Quality = *patch.Quality
	}
	if patch.Performance != nil {
		next.Performance = *patch.Performance
	}

	if !next.DefaultStrategy.IsValid() {
		p.mu.Unlock()
		return fmt.Errorf("invalid default fusion strategy: %q", next.DefaultStrategy)
	}
	if !next.Quality.Weights.IsValid() {
		p.mu.Unlock()
		return fmt.Errorf("quality weights must be non-negative and sum to 1, got %.4f", next.Quality.Weights.Sum())
	}
	p.cfg = next
	p.mu.Unlock()

	p.rebuild()
	p.logger.Info("pipeline configuration updated")
	return nil
}

// Config returns a copy of the active engine configuration.
func (p *Pipeline) Config() config.EngineConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}
