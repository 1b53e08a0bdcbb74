package normalize

import (
	"fmt"
	"log/slog"
	"time"

	"marketfuse/internal/lineage"
	"marketfuse/pkg/contracts/domain"
)

// polygonAggResponse is the Polygon aggregates (bars) payload shape.
type polygonAggResponse struct {
	Ticker       string       `json:"ticker"`
	ResultsCount int          `json:"resultsCount"`
	Results      []polygonBar `json:"results"`
	Status       string       `json:"status"`
}

// polygonBar is one OHLCV aggregate. Field names follow Polygon's
// single-letter convention.
type polygonBar struct {
	Open   flexFloat `json:"o"`
	Close  flexFloat `json:"c"`
	High   flexFloat `json:"h"`
	Low    flexFloat `json:"l"`
	Volume flexFloat `json:"v"`
	VWAP   flexFloat `json:"vw"`
	Time   int64     `json:"t"` // unix milliseconds
}

// stockPriceFromPolygon maps the most recent bar of a Polygon aggregates
// payload onto the canonical StockPrice.
func (n *Normalizer) stockPriceFromPolygon(payload domain.RawSourcePayload, tracker *lineage.Tracker) (*domain.StockPrice, error) {
	var resp polygonAggResponse
	if err := decodeStrict(payload.Data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: polygon results array empty for %s", ErrMalformedPayload, payload.Symbol)
	}

	bar := resp.Results[len(resp.Results)-1]
	ts := time.UnixMilli(bar.Time).UTC()
	if bar.Time == 0 {
		ts = payload.FetchedAt.UTC()
	}

	record := &domain.StockPrice{
		Symbol:    payload.Symbol,
		Source:    payload.Source,
		Timestamp: ts,
		Open:      bar.Open.Float64(),
		High:      bar.High.Float64(),
		Low:       bar.Low.Float64(),
		Close:     bar.Close.Float64(),
		Volume:    bar.Volume.Float64(),
		VWAP:      bar.VWAP.Float64(),
		Currency:  "USD",
	}

	tracker.RecordTransformation("polygon_ohlc_extraction",
		fmt.Sprintf("mapped bar %d/%d (o/h/l/c/v/vw/t) to canonical stock price", len(resp.Results), len(resp.Results)))
	n.logger.Debug("normalized polygon bar",
		slog.String("symbol", record.Symbol),
		slog.Float64("close", record.Close))
	return record, nil
}
