package domain

import (
	"math"
	"time"
)

// FinancialStatement is the canonical income/balance/cash-flow snapshot for
// one symbol, one fiscal period, from one provider.
type FinancialStatement struct {
	Symbol                  string    `json:"symbol" validate:"required"`
	Source                  string    `json:"source" validate:"required"`
	Timestamp               time.Time `json:"timestamp"`
	Period                  string    `json:"period" validate:"required"` // "FY", "Q1".."Q4"
	FiscalYear              int       `json:"fiscal_year" validate:"min=0"`
	FiscalQuarter           int       `json:"fiscal_quarter" validate:"min=0,max=4"`
	Revenue                 float64   `json:"revenue"`
	CostOfRevenue           float64   `json:"cost_of_revenue,omitempty"`
	GrossProfit             float64   `json:"gross_profit,omitempty"`
	OperatingIncome         float64   `json:"operating_income,omitempty"`
	NetIncome               float64   `json:"net_income"`
	EPS                     float64   `json:"eps,omitempty"`
	TotalAssets             float64   `json:"total_assets"`
	TotalLiabilities        float64   `json:"total_liabilities"`
	TotalStockholdersEquity float64   `json:"total_stockholders_equity"`
	OperatingCashFlow       float64   `json:"operating_cash_flow,omitempty"`
	FreeCashFlow            float64   `json:"free_cash_flow,omitempty"`
	Currency                string    `json:"currency,omitempty"`
}

// RecordSymbol implements Record.
func (fs FinancialStatement) RecordSymbol() string { return fs.Symbol }

// RecordSource implements Record.
func (fs FinancialStatement) RecordSource() string { return fs.Source }

// RecordTimestamp implements Record.
func (fs FinancialStatement) RecordTimestamp() time.Time { return fs.Timestamp }

// RecordType implements Record.
func (fs FinancialStatement) RecordType() DataType { return DataTypeFinancialStatement }

// BalanceSheetGap returns the absolute difference between total assets and
// the sum of liabilities and stockholders equity.
func (fs FinancialStatement) BalanceSheetGap() float64 {
	return math.Abs(fs.TotalAssets - (fs.TotalLiabilities + fs.TotalStockholdersEquity))
}

// BalancesWithin checks the accounting identity
// assets = liabilities + equity against a relative tolerance.
func (fs FinancialStatement) BalancesWithin(relTolerance float64) bool {
	scale := math.Max(1, math.Abs(fs.TotalAssets))
	return fs.BalanceSheetGap() <= relTolerance*scale
}

// IsValid checks if the statement carries the minimum usable data.
func (fs FinancialStatement) IsValid() bool {
	return fs.Symbol != "" && fs.Source != "" && fs.Period != ""
}
