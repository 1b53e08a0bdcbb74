package domain

import (
	"time"
)

// StockPrice is the canonical OHLCV bar for one symbol from one provider.
// Immutable once constructed by a normalizer.
type StockPrice struct {
	Symbol    string    `json:"symbol" validate:"required"`
	Source    string    `json:"source" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open" validate:"min=0"`
	High      float64   `json:"high" validate:"min=0"`
	Low       float64   `json:"low" validate:"min=0"`
	Close     float64   `json:"close" validate:"required,min=0"`
	Volume    float64   `json:"volume" validate:"min=0"`
	VWAP      float64   `json:"vwap,omitempty"`
	AdjClose  float64   `json:"adj_close,omitempty"`
	Currency  string    `json:"currency,omitempty"`
}

// RecordSymbol implements Record.
func (sp StockPrice) RecordSymbol() string { return sp.Symbol }

// RecordSource implements Record.
func (sp StockPrice) RecordSource() string { return sp.Source }

// RecordTimestamp implements Record.
func (sp StockPrice) RecordTimestamp() time.Time { return sp.Timestamp }

// RecordType implements Record.
func (sp StockPrice) RecordType() DataType { return DataTypeStockPrice }

// HasConsistentOHLC checks the high/low envelope against open and close.
func (sp StockPrice) HasConsistentOHLC() bool {
	return sp.High >= sp.Open && sp.High >= sp.Close &&
		sp.Low <= sp.Open && sp.Low <= sp.Close &&
		sp.Volume >= 0
}

// IsValid checks if the bar carries the minimum usable data.
func (sp StockPrice) IsValid() bool {
	return sp.Symbol != "" && sp.Source != "" && sp.Close > 0 && sp.HasConsistentOHLC()
}
