package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketfuse/internal/lineage"
	"marketfuse/pkg/contracts/domain"
)

// fmpProfile is the FMP company profile shape. FMP serves flat objects,
// sometimes wrapped in a single-element array.
type fmpProfile struct {
	Symbol            string    `json:"symbol"`
	CompanyName       string    `json:"companyName"`
	ExchangeShortName string    `json:"exchangeShortName"`
	Sector            string    `json:"sector"`
	Industry          string    `json:"industry"`
	MktCap            flexFloat `json:"mktCap"`
	FullTimeEmployees flexFloat `json:"fullTimeEmployees"`
	CEO               string    `json:"ceo"`
	Website           string    `json:"website"`
	Description       string    `json:"description"`
	Country           string    `json:"country"`
	Currency          string    `json:"currency"`
	IPODate           string    `json:"ipoDate"`
}

// fmpStatement is the FMP financial statement shape (income + balance +
// cash flow keys on one flat object).
type fmpStatement struct {
	Symbol                  string    `json:"symbol"`
	Date                    string    `json:"date"`
	CalendarYear            flexFloat `json:"calendarYear"`
	Period                  string    `json:"period"`
	Revenue                 flexFloat `json:"revenue"`
	CostOfRevenue           flexFloat `json:"costOfRevenue"`
	GrossProfit             flexFloat `json:"grossProfit"`
	OperatingIncome         flexFloat `json:"operatingIncome"`
	NetIncome               flexFloat `json:"netIncome"`
	EPS                     flexFloat `json:"eps"`
	TotalAssets             flexFloat `json:"totalAssets"`
	TotalLiabilities        flexFloat `json:"totalLiabilities"`
	TotalStockholdersEquity flexFloat `json:"totalStockholdersEquity"`
	OperatingCashFlow       flexFloat `json:"operatingCashFlow"`
	FreeCashFlow            flexFloat `json:"freeCashFlow"`
	ReportedCurrency        string    `json:"reportedCurrency"`
}

// unwrapFMP accepts either a flat object or FMP's single-element array
// wrapping of the same object.
func unwrapFMP(data json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := decodeStrict(data, &items); err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: fmp response array empty", ErrMalformedPayload)
		}
		return items[0], nil
	}
	return data, nil
}

// companyFromFMP maps an FMP profile onto the canonical CompanyInfo.
func (n *Normalizer) companyFromFMP(payload domain.RawSourcePayload, tracker *lineage.Tracker) (*domain.CompanyInfo, error) {
	body, err := unwrapFMP(payload.Data)
	if err != nil {
		return nil, err
	}
	var profile fmpProfile
	if err := decodeStrict(body, &profile); err != nil {
		return nil, err
	}
	if profile.CompanyName == "" && profile.Symbol == "" {
		return nil, fmt.Errorf("%w: fmp profile missing companyName and symbol", ErrMalformedPayload)
	}

	symbol := payload.Symbol
	if symbol == "" {
		symbol = profile.Symbol
	}
	ts := payload.FetchedAt.UTC()
	if ts.IsZero() {
		ts = n.clock().UTC()
	}

	record := &domain.CompanyInfo{
		Symbol:      symbol,
		Source:      payload.Source,
		Timestamp:   ts,
		Name:        profile.CompanyName,
		Exchange:    profile.ExchangeShortName,
		Sector:      profile.Sector,
		Industry:    profile.Industry,
		MarketCap:   profile.MktCap.Float64(),
		Employees:   int64(profile.FullTimeEmployees.Float64()),
		CEO:         profile.CEO,
		Website:     profile.Website,
		Description: profile.Description,
		Country:     profile.Country,
		Currency:    profile.Currency,
		IPODate:     profile.IPODate,
	}

	tracker.RecordTransformation("fmp_profile_extraction",
		fmt.Sprintf("mapped flat profile keys to canonical company info for %s", symbol))
	n.logger.Debug("normalized fmp profile", slog.String("symbol", symbol))
	return record, nil
}

// statementFromFMP maps an FMP statement onto the canonical
// FinancialStatement, deriving the fiscal quarter from the period string.
func (n *Normalizer) statementFromFMP(payload domain.RawSourcePayload, tracker *lineage.Tracker) (*domain.FinancialStatement, error) {
	body, err := unwrapFMP(payload.Data)
	if err != nil {
		return nil, err
	}
	var stmt fmpStatement
	if err := decodeStrict(body, &stmt); err != nil {
		return nil, err
	}

	symbol := payload.Symbol
	if symbol == "" {
		symbol = stmt.Symbol
	}
	period := strings.ToUpper(strings.TrimSpace(stmt.Period))
	if period == "" {
		period = "FY"
	}

	ts := payload.FetchedAt.UTC()
	if stmt.Date != "" {
		if parsed, err := time.Parse("2006-01-02", stmt.Date); err == nil {
			ts = parsed.UTC()
		}
	}

	record := &domain.FinancialStatement{
		Symbol:                  symbol,
		Source:                  payload.Source,
		Timestamp:               ts,
		Period:                  period,
		FiscalYear:              int(stmt.CalendarYear.Float64()),
		FiscalQuarter:           fiscalQuarterFromPeriod(period),
		Revenue:                 stmt.Revenue.Float64(),
		CostOfRevenue:           stmt.CostOfRevenue.Float64(),
		GrossProfit:             stmt.GrossProfit.Float64(),
		OperatingIncome:         stmt.OperatingIncome.Float64(),
		NetIncome:               stmt.NetIncome.Float64(),
		EPS:                     stmt.EPS.Float64(),
		TotalAssets:             stmt.TotalAssets.Float64(),
		TotalLiabilities:        stmt.TotalLiabilities.Float64(),
		TotalStockholdersEquity: stmt.TotalStockholdersEquity.Float64(),
		OperatingCashFlow:       stmt.OperatingCashFlow.Float64(),
		FreeCashFlow:            stmt.FreeCashFlow.Float64(),
		Currency:                stmt.ReportedCurrency,
	}

	tracker.RecordTransformation("fmp_statement_extraction",
		fmt.Sprintf("mapped flat statement keys to canonical statement (%s %d, quarter %d)",
			period, record.FiscalYear, record.FiscalQuarter))
	n.logger.Debug("normalized fmp statement",
		slog.String("symbol", symbol),
		slog.String("period", period))
	return record, nil
}
