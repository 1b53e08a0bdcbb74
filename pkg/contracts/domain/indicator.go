package domain

import (
	"time"
)

// TechnicalIndicator is one canonical technical-indicator observation
// (RSI, SMA, MACD, ...) for a symbol from one provider.
type TechnicalIndicator struct {
	Symbol    string            `json:"symbol" validate:"required"`
	Source    string            `json:"source" validate:"required"`
	Timestamp time.Time         `json:"timestamp"`
	Indicator string            `json:"indicator" validate:"required"` // upper-cased, e.g. "RSI"
	Value     float64           `json:"value"`
	Period    int               `json:"period,omitempty" validate:"min=0"`
	Interval  string            `json:"interval,omitempty"`
	Series    map[string]float64 `json:"series,omitempty"` // component values (e.g. MACD signal/hist)
}

// RecordSymbol implements Record.
func (ti TechnicalIndicator) RecordSymbol() string { return ti.Symbol }

// RecordSource implements Record.
func (ti TechnicalIndicator) RecordSource() string { return ti.Source }

// RecordTimestamp implements Record.
func (ti TechnicalIndicator) RecordTimestamp() time.Time { return ti.Timestamp }

// RecordType implements Record.
func (ti TechnicalIndicator) RecordType() DataType { return DataTypeTechnicalIndicator }

// IsValid checks if the observation carries the minimum usable data.
func (ti TechnicalIndicator) IsValid() bool {
	return ti.Symbol != "" && ti.Source != "" && ti.Indicator != ""
}

// IndicatorBounds is the documented numeric domain of a bounded indicator.
type IndicatorBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the bounds (inclusive).
func (b IndicatorBounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// BoundedIndicators maps indicator names to their documented valid ranges.
// Indicators absent from this map are unbounded.
var BoundedIndicators = map[string]IndicatorBounds{
	"RSI":   {Min: 0, Max: 100},
	"STOCH": {Min: 0, Max: 100},
	"MFI":   {Min: 0, Max: 100},
	"ADX":   {Min: 0, Max: 100},
	"AROON": {Min: -100, Max: 100},
	"WILLR": {Min: -100, Max: 0},
}
