package domain

import (
	"time"
)

// CompanyInfo is the canonical company profile for one symbol from one provider.
type CompanyInfo struct {
	Symbol      string    `json:"symbol" validate:"required"`
	Source      string    `json:"source" validate:"required"`
	Timestamp   time.Time `json:"timestamp"`
	Name        string    `json:"name" validate:"required"`
	Exchange    string    `json:"exchange,omitempty"`
	Sector      string    `json:"sector,omitempty"`
	Industry    string    `json:"industry,omitempty"`
	MarketCap   float64   `json:"market_cap,omitempty" validate:"min=0"`
	Employees   int64     `json:"employees,omitempty" validate:"min=0"`
	CEO         string    `json:"ceo,omitempty"`
	Website     string    `json:"website,omitempty"`
	Description string    `json:"description,omitempty"`
	Country     string    `json:"country,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	IPODate     string    `json:"ipo_date,omitempty"`
}

// RecordSymbol implements Record.
func (ci CompanyInfo) RecordSymbol() string { return ci.Symbol }

// RecordSource implements Record.
func (ci CompanyInfo) RecordSource() string { return ci.Source }

// RecordTimestamp implements Record.
func (ci CompanyInfo) RecordTimestamp() time.Time { return ci.Timestamp }

// RecordType implements Record.
func (ci CompanyInfo) RecordType() DataType { return DataTypeCompanyInfo }

// IsValid checks if the profile carries the minimum usable data.
func (ci CompanyInfo) IsValid() bool {
	return ci.Symbol != "" && ci.Source != "" && ci.Name != ""
}
