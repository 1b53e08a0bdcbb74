// Package validation applies the per-type consistency checks to canonical
// records: required-field presence, cross-field arithmetic identities,
// bounded-indicator ranges and staleness. Validation never fails hard; all
// detected issues become discrepancies on the returned verdict so callers
// can still inspect or use degraded data.
package validation

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"marketfuse/internal/config"
	"marketfuse/internal/lineage"
	"marketfuse/pkg/contracts/domain"
)

// Engine runs the fixed per-type rule set against canonical records.
type Engine struct {
	validate *validator.Validate
	cfg      config.ValidationConfig
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates a validation engine with the given thresholds.
func NewEngine(cfg config.ValidationConfig, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	// Use JSON tag names in discrepancy fields.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	e := &Engine{
		validate: v,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "validation_engine")),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks one canonical record against its type's rule set and
// returns the verdict. It never returns an error: every detected issue is
// converted into a discrepancy or a warning.
func (e *Engine) Validate(record domain.Record, tracker *lineage.Tracker) domain.ValidationResult {
	result := domain.ValidationResult{IsValid: true, Confidence: 1.0}

	e.checkRequiredFields(record, &result, tracker)

	switch rec := record.(type) {
	case *domain.StockPrice:
		e.checkOHLC(rec, &result, tracker)
	case domain.StockPrice:
		e.checkOHLC(&rec, &result, tracker)
	case *domain.FinancialStatement:
		e.checkBalanceSheet(rec, &result, tracker)
	case domain.FinancialStatement:
		e.checkBalanceSheet(&rec, &result, tracker)
	case *domain.TechnicalIndicator:
		e.checkIndicatorBounds(rec, &result, tracker)
	case domain.TechnicalIndicator:
		e.checkIndicatorBounds(&rec, &result, tracker)
	}

	e.checkStaleness(record, &result, tracker)

	result.Confidence = confidenceFrom(result.Discrepancies)
	result.IsValid = e.verdict(result)

	if tracker != nil {
		tracker.RecordValidationStep("verdict",
			fmt.Sprintf("valid=%t discrepancies=%d confidence=%.2f",
				result.IsValid, len(result.Discrepancies), result.Confidence))
	}
	return result
}

// verdict applies the validity policy: a record is valid when it has no
// discrepancies. With AllowWarnings set, warning-level (low severity)
// discrepancies such as staleness do not block.
func (e *Engine) verdict(result domain.ValidationResult) bool {
	if !e.cfg.AllowWarnings {
		return len(result.Discrepancies) == 0
	}
	for _, d := range result.Discrepancies {
		if d.Severity != domain.SeverityLow {
			return false
		}
	}
	return true
}

// checkRequiredFields runs the struct-tag required/min/max rules for the
// record's type; each violation becomes one discrepancy.
func (e *Engine) checkRequiredFields(record domain.Record, result *domain.ValidationResult, tracker *lineage.Tracker) {
	err := e.validate.Struct(record)
	if err == nil {
		if tracker != nil {
			tracker.RecordValidationStep("required_fields", "all required fields present")
		}
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// Struct-level failure (nil pointer etc.); report as one discrepancy.
		result.Discrepancies = append(result.Discrepancies,
			e.newDiscrepancy(record, "record", nil, domain.SeverityCritical,
				fmt.Sprintf("record failed structural validation: %v", err)))
		return
	}
	for _, verr := range verrs {
		field := verr.Field()
		var reason string
		switch verr.Tag() {
		case "required":
			reason = fmt.Sprintf("Required field missing: %s", field)
		case "min":
			reason = fmt.Sprintf("Field %s below minimum %s: %v", field, verr.Param(), verr.Value())
		case "max":
			reason = fmt.Sprintf("Field %s above maximum %s: %v", field, verr.Param(), verr.Value())
		default:
			reason = fmt.Sprintf("Field %s failed %s validation: %v", field, verr.Tag(), verr.Value())
		}
		severity := domain.SeverityMedium
		if verr.Tag() == "required" {
			severity = domain.SeverityHigh
		}
		result.Discrepancies = append(result.Discrepancies,
			e.newDiscrepancy(record, field, verr.Value(), severity, reason))
	}
	if tracker != nil {
		tracker.RecordValidationStep("required_fields",
			fmt.Sprintf("%d field violations", len(verrs)))
	}
}

// checkOHLC verifies high >= max(open, close), low <= min(open, close) and
// volume >= 0.
func (e *Engine) checkOHLC(sp *domain.StockPrice, result *domain.ValidationResult, tracker *lineage.Tracker) {
	if sp.High < math.Max(sp.Open, sp.Close) {
		result.Discrepancies = append(result.Discrepancies,
			e.newDiscrepancy(sp, "high", sp.High, domain.SeverityHigh,
				fmt.Sprintf("OHLC inconsistency: high (%.4f) below max(open, close) (%.4f)",
					sp.High, math.Max(sp.Open, sp.Close))))
	}
	if sp.Low > math.Min(sp.Open, sp.Close) {
		result.Discrepancies = append(result.Discrepancies,
			e.newDiscrepancy(sp, "low", sp.Low, domain.SeverityHigh,
				fmt.Sprintf("OHLC inconsistency: low (%.4f) above min(open, close) (%.4f)",
					sp.Low, math.Min(sp.Open, sp.Close))))
	}
	if sp.Volume < 0 {
		result.Discrepancies = append(result.Discrepancies,
			e.newDiscrepancy(sp, "volume", sp.Volume, domain.SeverityHigh,
				fmt.Sprintf("Negative volume: %.0f", sp.Volume)))
	}
	if tracker != nil {
		tracker.RecordValidationStep("ohlc_consistency", "checked high/low envelope and volume sign")
	}
}

// checkBalanceSheet verifies assets = liabilities + equity within the
// configured relative tolerance.
func (e *Engine) checkBalanceSheet(fs *domain.FinancialStatement, result *domain.ValidationResult, tracker *lineage.Tracker) {
	if fs.TotalAssets == 0 && fs.TotalLiabilities == 0 && fs.TotalStockholdersEquity == 0 {
		// Income-statement-only payloads carry no balance sheet to check.
		if tracker != nil {
			tracker.RecordValidationStep("balance_sheet_equation", "skipped: no balance sheet data")
		}
		return
	}
	if !fs.BalancesWithin(e.cfg.BalanceSheetTolerance) {
		sum := fs.TotalLiabilities + fs.TotalStockholdersEquity
		result.Discrepancies = append(result.Discrepancies,
			e.newDiscrepancy(fs, "balance_sheet_equation", fs.TotalAssets, domain.SeverityHigh,
				fmt.Sprintf("balance_sheet_equation: assets (%.0f) != liabilities+equity (%.0f), gap %.0f",
					fs.TotalAssets, sum, fs.BalanceSheetGap())))
	}
	if tracker != nil {
		tracker.RecordValidationStep("balance_sheet_equation",
			fmt.Sprintf("gap %.2f against tolerance %.4f", fs.BalanceSheetGap(), e.cfg.BalanceSheetTolerance))
	}
}

// checkIndicatorBounds verifies bounded indicators stay inside their
// documented numeric range.
func (e *Engine) checkIndicatorBounds(ti *domain.TechnicalIndicator, result *domain.ValidationResult, tracker *lineage.Tracker) {
	bounds, bounded := domain.BoundedIndicators[strings.ToUpper(ti.Indicator)]
	if !bounded {
		if tracker != nil {
			tracker.RecordValidationStep("indicator_bounds", fmt.Sprintf("%s is unbounded", ti.Indicator))
		}
		return
	}
	if !bounds.Contains(ti.Value) {
		result.Discrepancies = append(result.Discrepancies,
			e.newDiscrepancy(ti, "value", ti.Value, domain.SeverityHigh,
				fmt.Sprintf("%s value %g exceeds valid range [%g,%g]",
					strings.ToUpper(ti.Indicator), ti.Value, bounds.Min, bounds.Max)))
	}
	if tracker != nil {
		tracker.RecordValidationStep("indicator_bounds",
			fmt.Sprintf("%s checked against [%g,%g]", strings.ToUpper(ti.Indicator), bounds.Min, bounds.Max))
	}
}

// checkStaleness flags records older than the configured tolerance. The
// flag is a low-severity freshness discrepancy: degraded, not blocking.
func (e *Engine) checkStaleness(record domain.Record, result *domain.ValidationResult, tracker *lineage.Tracker) {
	ts := record.RecordTimestamp()
	if ts.IsZero() || e.cfg.StalenessTolerance <= 0 {
		return
	}
	age := e.clock().Sub(ts)
	if age > e.cfg.StalenessTolerance {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("record is stale: age %s exceeds tolerance %s", age.Round(time.Second), e.cfg.StalenessTolerance))
		result.Discrepancies = append(result.Discrepancies,
			e.newDiscrepancy(record, "timestamp", ts, domain.SeverityLow,
				fmt.Sprintf("Stale record: age %s exceeds tolerance %s", age.Round(time.Second), e.cfg.StalenessTolerance)))
	}
	if tracker != nil {
		tracker.RecordValidationStep("staleness",
			fmt.Sprintf("age %s against tolerance %s", age.Round(time.Second), e.cfg.StalenessTolerance))
	}
}

// newDiscrepancy builds a single-source discrepancy with its resolution
// reason filled in.
func (e *Engine) newDiscrepancy(record domain.Record, field string, value interface{}, severity domain.DiscrepancySeverity, reason string) domain.Discrepancy {
	return domain.Discrepancy{
		ID:    uuid.NewString(),
		Field: field,
		SourceValues: map[string]interface{}{
			record.RecordSource(): value,
		},
		Severity: severity,
		Resolution: domain.Resolution{
			Strategy: "single_source_validation",
			Reason:   reason,
		},
		DetectedAt: e.clock(),
	}
}

// confidenceFrom decreases monotonically with discrepancy count and
// severity, floored at zero.
func confidenceFrom(discrepancies []domain.Discrepancy) float64 {
	confidence := 1.0
	for _, d := range discrepancies {
		confidence -= d.Severity.Weight()
	}
	return math.Max(0, confidence)
}
