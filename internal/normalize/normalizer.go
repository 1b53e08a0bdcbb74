// Package normalize converts raw provider-shaped payloads into canonical
// typed records. One normalizer exists per (provider family, data type)
// pair; all of them are pure transforms over the payload they are handed.
// A structurally malformed payload fails fast with a descriptive error;
// field-level problems are left for the validation engine to document.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"marketfuse/internal/lineage"
	"marketfuse/pkg/contracts/domain"
)

// ErrMalformedPayload marks payloads whose required structure is missing
// (null body, empty results array, wrong shape). Callers convert it into a
// success:false result.
var ErrMalformedPayload = errors.New("malformed payload")

// ErrUnsupportedSource marks a (source, data type) pair no normalizer covers.
var ErrUnsupportedSource = errors.New("unsupported source")

// Normalizer dispatches payloads to the per-provider schema normalizers.
type Normalizer struct {
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock substitutes the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(n *Normalizer) { n.clock = clock }
}

// New creates a normalizer.
func New(logger *slog.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{
		logger: logger.With(slog.String("component", "normalizer")),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// sourceFamily maps a provider id onto the payload family its data ships in.
func sourceFamily(source string) string {
	s := strings.ToLower(strings.TrimSpace(source))
	switch {
	case strings.HasPrefix(s, "polygon"):
		return "polygon"
	case strings.HasPrefix(s, "yahoo"):
		return "yahoo"
	case strings.HasPrefix(s, "fmp"), strings.Contains(s, "financialmodeling"):
		return "fmp"
	case strings.HasPrefix(s, "alphavantage"), strings.HasPrefix(s, "alpha_vantage"), strings.HasPrefix(s, "av"):
		return "alphavantage"
	default:
		return s
	}
}

// StockPrice normalizes an OHLCV payload from a known price provider.
func (n *Normalizer) StockPrice(payload domain.RawSourcePayload, tracker *lineage.Tracker) (*domain.StockPrice, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	switch family := sourceFamily(payload.Source); family {
	case "polygon":
		return n.stockPriceFromPolygon(payload, tracker)
	case "yahoo":
		return n.stockPriceFromYahoo(payload, tracker)
	default:
		return nil, fmt.Errorf("%w: no stock price normalizer for %q", ErrUnsupportedSource, payload.Source)
	}
}

// CompanyInfo normalizes a company profile payload.
func (n *Normalizer) CompanyInfo(payload domain.RawSourcePayload, tracker *lineage.Tracker) (*domain.CompanyInfo, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	switch family := sourceFamily(payload.Source); family {
	case "fmp":
		return n.companyFromFMP(payload, tracker)
	default:
		return nil, fmt.Errorf("%w: no company info normalizer for %q", ErrUnsupportedSource, payload.Source)
	}
}

// FinancialStatement normalizes a financial statement payload.
func (n *Normalizer) FinancialStatement(payload domain.RawSourcePayload, tracker *lineage.Tracker) (*domain.FinancialStatement, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	switch family := sourceFamily(payload.Source); family {
	case "fmp":
		return n.statementFromFMP(payload, tracker)
	default:
		return nil, fmt.Errorf("%w: no financial statement normalizer for %q", ErrUnsupportedSource, payload.Source)
	}
}

// TechnicalIndicator normalizes a technical indicator payload. The
// indicator name selects the nested series inside provider payloads that
// carry several.
func (n *Normalizer) TechnicalIndicator(payload domain.RawSourcePayload, indicator string, tracker *lineage.Tracker) (*domain.TechnicalIndicator, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	if indicator == "" {
		return nil, fmt.Errorf("%w: indicator name required", ErrMalformedPayload)
	}
	switch family := sourceFamily(payload.Source); family {
	case "alphavantage":
		return n.indicatorFromAlphaVantage(payload, indicator, tracker)
	default:
		return nil, fmt.Errorf("%w: no technical indicator normalizer for %q", ErrUnsupportedSource, payload.Source)
	}
}

// News normalizes a news feed payload into a digest of articles.
func (n *Normalizer) News(payload domain.RawSourcePayload, tracker *lineage.Tracker) (*domain.NewsDigest, error) {
	if err := checkPayload(payload); err != nil {
		return nil, err
	}
	switch family := sourceFamily(payload.Source); family {
	case "alphavantage":
		return n.newsFromAlphaVantage(payload, tracker)
	default:
		return nil, fmt.Errorf("%w: no news normalizer for %q", ErrUnsupportedSource, payload.Source)
	}
}

// checkPayload rejects payloads with no usable body before any decoding.
func checkPayload(payload domain.RawSourcePayload) error {
	if payload.Source == "" {
		return fmt.Errorf("%w: missing source id", ErrMalformedPayload)
	}
	if payload.IsEmpty() {
		return fmt.Errorf("%w: empty or null payload from %s", ErrMalformedPayload, payload.Source)
	}
	return nil
}

// decodeStrict unmarshals into dst and reports non-object bodies as
// malformed rather than silently zeroing fields.
func decodeStrict(data json.RawMessage, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// flexFloat decodes JSON numbers that some providers ship as strings
// (Alpha Vantage indicator values, percentage fields like "1.5%").
type flexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("cannot parse %q as number: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// Float64 returns the parsed value.
func (f flexFloat) Float64() float64 { return float64(f) }

// fiscalQuarterFromPeriod derives the quarter number from a period string
// like "Q3" or "FY". Annual periods report quarter 0.
func fiscalQuarterFromPeriod(period string) int {
	p := strings.ToUpper(strings.TrimSpace(period))
	if len(p) == 2 && p[0] == 'Q' {
		if q := int(p[1] - '0'); q >= 1 && q <= 4 {
			return q
		}
	}
	return 0
}
