package domain

import (
	"encoding/json"
	"time"
)

// DataType identifies the kind of canonical record a payload normalizes into.
type DataType string

const (
	DataTypeStockPrice         DataType = "stock_price"
	DataTypeCompanyInfo        DataType = "company_info"
	DataTypeFinancialStatement DataType = "financial_statement"
	DataTypeTechnicalIndicator DataType = "technical_indicator"
	DataTypeNews               DataType = "news"
)

// IsValid checks if the data type is one of the known kinds.
func (dt DataType) IsValid() bool {
	switch dt {
	case DataTypeStockPrice, DataTypeCompanyInfo, DataTypeFinancialStatement,
		DataTypeTechnicalIndicator, DataTypeNews:
		return true
	}
	return false
}

// Record is the provider-agnostic view shared by every canonical record type.
type Record interface {
	// RecordSymbol returns the ticker symbol the record describes.
	RecordSymbol() string
	// RecordSource returns the provider id the record came from.
	RecordSource() string
	// RecordTimestamp returns the observation timestamp of the record.
	RecordTimestamp() time.Time
	// RecordType returns the canonical data type.
	RecordType() DataType
}

// RawSourcePayload wraps one provider-shaped payload before normalization.
// It is consumed by exactly one normalizer call and never persisted.
type RawSourcePayload struct {
	Source    string          `json:"source" validate:"required"`
	Symbol    string          `json:"symbol"`
	FetchedAt time.Time       `json:"fetched_at"`
	LatencyMs int64           `json:"latency_ms,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// IsEmpty reports whether the payload carries no usable body.
func (p RawSourcePayload) IsEmpty() bool {
	if len(p.Data) == 0 {
		return true
	}
	trimmed := string(p.Data)
	return trimmed == "null" || trimmed == `""` || trimmed == "{}"
}
