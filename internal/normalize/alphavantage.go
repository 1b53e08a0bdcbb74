package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"marketfuse/internal/lineage"
	"marketfuse/pkg/contracts/domain"
)

// avIndicatorMeta is the "Meta Data" block of an Alpha Vantage technical
// indicator payload.
type avIndicatorMeta struct {
	Symbol     string    `json:"1: Symbol"`
	Indicator  string    `json:"2: Indicator"`
	Interval   flexField `json:"4: Interval"`
	TimePeriod flexFloat `json:"5: Time Period"`
}

// flexField tolerates interval values shipped as strings or numbers.
type flexField string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexField) UnmarshalJSON(data []byte) error {
	*f = flexField(strings.Trim(string(data), `"`))
	return nil
}

// indicatorFromAlphaVantage maps an Alpha Vantage nested indicator map
// ({"Technical Analysis: RSI": {"<date>": {"RSI": "61.2"}}}) onto the
// canonical TechnicalIndicator, taking the most recent date.
func (n *Normalizer) indicatorFromAlphaVantage(payload domain.RawSourcePayload, indicator string, tracker *lineage.Tracker) (*domain.TechnicalIndicator, error) {
	var envelope map[string]json.RawMessage
	if err := decodeStrict(payload.Data, &envelope); err != nil {
		return nil, err
	}

	name := strings.ToUpper(strings.TrimSpace(indicator))
	seriesKey := "Technical Analysis: " + name
	seriesRaw, ok := envelope[seriesKey]
	if !ok {
		// Some dumps use the indicator name alone.
		if alt, found := envelope[name]; found {
			seriesRaw = alt
		} else {
			return nil, fmt.Errorf("%w: alpha vantage payload missing %q", ErrMalformedPayload, seriesKey)
		}
	}

	var series map[string]map[string]flexFloat
	if err := decodeStrict(seriesRaw, &series); err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: alpha vantage series for %s empty", ErrMalformedPayload, name)
	}

	dates := make([]string, 0, len(series))
	for d := range series {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	latest := dates[len(dates)-1]

	values := series[latest]
	value, ok := values[name]
	if !ok {
		// Single-component series keyed differently; take the only value.
		if len(values) == 1 {
			for _, v := range values {
				value = v
				ok = true
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: alpha vantage entry for %s missing %q value", ErrMalformedPayload, latest, name)
	}

	ts := parseAVTimestamp(latest, payload.FetchedAt)

	record := &domain.TechnicalIndicator{
		Symbol:    payload.Symbol,
		Source:    payload.Source,
		Timestamp: ts,
		Indicator: name,
		Value:     value.Float64(),
	}
	if len(values) > 1 {
		record.Series = make(map[string]float64, len(values))
		for k, v := range values {
			record.Series[k] = v.Float64()
		}
	}

	if metaRaw, ok := envelope["Meta Data"]; ok {
		var meta avIndicatorMeta
		if err := decodeStrict(metaRaw, &meta); err == nil {
			record.Period = int(meta.TimePeriod.Float64())
			record.Interval = string(meta.Interval)
			if record.Symbol == "" {
				record.Symbol = meta.Symbol
			}
		}
	}

	tracker.RecordTransformation("alphavantage_indicator_extraction",
		fmt.Sprintf("parsed %s series, latest date %s, string value to float", name, latest))
	n.logger.Debug("normalized alpha vantage indicator",
		slog.String("symbol", record.Symbol),
		slog.String("indicator", name),
		slog.Float64("value", record.Value))
	return record, nil
}

// avNewsFeed is the Alpha Vantage news sentiment payload shape.
type avNewsFeed struct {
	Items flexField   `json:"items"`
	Feed  []avArticle `json:"feed"`
}

type avArticle struct {
	Title                 string    `json:"title"`
	URL                   string    `json:"url"`
	TimePublished         string    `json:"time_published"` // 20240131T093000
	Authors               []string  `json:"authors"`
	Summary               string    `json:"summary"`
	Topics                []avTopic `json:"topics"`
	OverallSentimentScore flexFloat `json:"overall_sentiment_score"`
	OverallSentimentLabel string    `json:"overall_sentiment_label"`
	TickerSentiment       []struct {
		Ticker         string    `json:"ticker"`
		RelevanceScore flexFloat `json:"relevance_score"`
		Sentiment      flexFloat `json:"ticker_sentiment_score"`
		Label          string    `json:"ticker_sentiment_label"`
	} `json:"ticker_sentiment"`
}

type avTopic struct {
	Topic string `json:"topic"`
}

// newsFromAlphaVantage maps an Alpha Vantage news feed onto a canonical
// digest of news items.
func (n *Normalizer) newsFromAlphaVantage(payload domain.RawSourcePayload, tracker *lineage.Tracker) (*domain.NewsDigest, error) {
	var feed avNewsFeed
	if err := decodeStrict(payload.Data, &feed); err != nil {
		return nil, err
	}
	if len(feed.Feed) == 0 {
		return nil, fmt.Errorf("%w: alpha vantage news feed empty", ErrMalformedPayload)
	}

	digest := &domain.NewsDigest{
		Source:    payload.Source,
		Timestamp: payload.FetchedAt.UTC(),
		Items:     make([]domain.NewsItem, 0, len(feed.Feed)),
	}
	skipped := 0
	for _, article := range feed.Feed {
		if article.Title == "" {
			skipped++
			continue
		}
		item := domain.NewsItem{
			Source:         payload.Source,
			Symbol:         payload.Symbol,
			Timestamp:      parseAVTimestamp(article.TimePublished, payload.FetchedAt),
			Title:          article.Title,
			Summary:        article.Summary,
			URL:            article.URL,
			Authors:        article.Authors,
			Sentiment:      article.OverallSentimentScore.Float64(),
			SentimentLabel: article.OverallSentimentLabel,
		}
		for _, topic := range article.Topics {
			item.Topics = append(item.Topics, topic.Topic)
		}
		for _, ts := range article.TickerSentiment {
			item.TickerSentiment = append(item.TickerSentiment, domain.TickerSentiment{
				Ticker:         ts.Ticker,
				RelevanceScore: ts.RelevanceScore.Float64(),
				Sentiment:      ts.Sentiment.Float64(),
				Label:          ts.Label,
			})
		}
		digest.Items = append(digest.Items, item)
	}
	if len(digest.Items) == 0 {
		return nil, fmt.Errorf("%w: alpha vantage news feed has no usable articles", ErrMalformedPayload)
	}

	tracker.RecordTransformation("alphavantage_news_extraction",
		fmt.Sprintf("parsed %d articles (%d skipped) with sentiment scores", len(digest.Items), skipped))
	n.logger.Debug("normalized alpha vantage news",
		slog.Int("articles", len(digest.Items)),
		slog.Int("skipped", skipped))
	return digest, nil
}

// parseAVTimestamp parses Alpha Vantage timestamps, which arrive either as
// 2024-01-31, 2024-01-31 09:30:00 or 20240131T093000.
func parseAVTimestamp(value string, fallback time.Time) time.Time {
	for _, layout := range []string{
		"20060102T150405",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return fallback.UTC()
}
