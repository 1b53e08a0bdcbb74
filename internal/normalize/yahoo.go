package normalize

import (
	"fmt"
	"log/slog"
	"time"

	"marketfuse/internal/lineage"
	"marketfuse/pkg/contracts/domain"
)

// yahooChartResponse is the Yahoo chart API payload shape: one result with
// meta plus parallel arrays under indicators.quote.
type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  interface{}        `json:"error"`
	} `json:"chart"`
}

type yahooChartResult struct {
	Meta struct {
		Symbol             string    `json:"symbol"`
		Currency           string    `json:"currency"`
		RegularMarketPrice flexFloat `json:"regularMarketPrice"`
		RegularMarketTime  int64     `json:"regularMarketTime"` // unix seconds
		ExchangeName       string    `json:"exchangeName"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// stockPriceFromYahoo maps the latest point of a Yahoo chart payload onto
// the canonical StockPrice. The close is taken from
// meta.regularMarketPrice; the OHLC envelope comes from the last non-null
// entries of the quote arrays when present.
func (n *Normalizer) stockPriceFromYahoo(payload domain.RawSourcePayload, tracker *lineage.Tracker) (*domain.StockPrice, error) {
	var resp yahooChartResponse
	if err := decodeStrict(payload.Data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: yahoo chart result empty for %s", ErrMalformedPayload, payload.Symbol)
	}

	result := resp.Chart.Result[0]
	closePrice := result.Meta.RegularMarketPrice.Float64()
	if closePrice == 0 {
		return nil, fmt.Errorf("%w: yahoo payload missing regularMarketPrice for %s", ErrMalformedPayload, payload.Symbol)
	}

	ts := payload.FetchedAt.UTC()
	if result.Meta.RegularMarketTime > 0 {
		ts = time.Unix(result.Meta.RegularMarketTime, 0).UTC()
	} else if len(result.Timestamp) > 0 {
		ts = time.Unix(result.Timestamp[len(result.Timestamp)-1], 0).UTC()
	}

	record := &domain.StockPrice{
		Symbol:    payload.Symbol,
		Source:    payload.Source,
		Timestamp: ts,
		Close:     closePrice,
		Currency:  result.Meta.Currency,
	}

	if len(result.Indicators.Quote) > 0 {
		q := result.Indicators.Quote[0]
		record.Open = lastNonNull(q.Open)
		record.High = lastNonNull(q.High)
		record.Low = lastNonNull(q.Low)
		record.Volume = lastNonNull(q.Volume)
	}
	if len(result.Indicators.AdjClose) > 0 {
		record.AdjClose = lastNonNull(result.Indicators.AdjClose[0].AdjClose)
	}
	// Single-point payloads carry only the market price; keep the
	// envelope consistent so the bar validates.
	if record.Open == 0 && record.High == 0 && record.Low == 0 {
		record.Open, record.High, record.Low = closePrice, closePrice, closePrice
	}

	tracker.RecordTransformation("yahoo_chart_extraction",
		fmt.Sprintf("flattened chart.result[0] quote arrays (%d points) to canonical stock price", len(result.Timestamp)))
	n.logger.Debug("normalized yahoo chart",
		slog.String("symbol", record.Symbol),
		slog.Float64("close", record.Close))
	return record, nil
}

// lastNonNull returns the last non-nil entry of a sparse quote array.
func lastNonNull(values []*float64) float64 {
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] != nil {
			return *values[i]
		}
	}
	return 0
}
