package domain

import (
	"time"
)

// TickerSentiment is per-ticker sentiment attached to a news item.
type TickerSentiment struct {
	Ticker         string  `json:"ticker"`
	RelevanceScore float64 `json:"relevance_score"`
	Sentiment      float64 `json:"sentiment"`
	Label          string  `json:"label,omitempty"`
}

// NewsItem is one canonical news article from a provider feed.
type NewsItem struct {
	Source          string            `json:"source" validate:"required"`
	Symbol          string            `json:"symbol,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	Title           string            `json:"title" validate:"required"`
	Summary         string            `json:"summary,omitempty"`
	URL             string            `json:"url,omitempty" validate:"omitempty,url"`
	Authors         []string          `json:"authors,omitempty"`
	Topics          []string          `json:"topics,omitempty"`
	Sentiment       float64           `json:"sentiment,omitempty"` // overall score in [-1,1]
	SentimentLabel  string            `json:"sentiment_label,omitempty"`
	TickerSentiment []TickerSentiment `json:"ticker_sentiment,omitempty"`
}

// RecordSymbol implements Record.
func (ni NewsItem) RecordSymbol() string { return ni.Symbol }

// RecordSource implements Record.
func (ni NewsItem) RecordSource() string { return ni.Source }

// RecordTimestamp implements Record.
func (ni NewsItem) RecordTimestamp() time.Time { return ni.Timestamp }

// RecordType implements Record.
func (ni NewsItem) RecordType() DataType { return DataTypeNews }

// IsValid checks if the article carries the minimum usable data.
func (ni NewsItem) IsValid() bool {
	return ni.Source != "" && ni.Title != ""
}

// NewsDigest is a batch of normalized news items from one feed payload.
type NewsDigest struct {
	Source    string     `json:"source"`
	Timestamp time.Time  `json:"timestamp"`
	Items     []NewsItem `json:"items"`
}

// RecordSymbol implements Record. A digest spans tickers, so it has none.
func (nd NewsDigest) RecordSymbol() string { return "" }

// RecordSource implements Record.
func (nd NewsDigest) RecordSource() string { return nd.Source }

// RecordTimestamp implements Record.
func (nd NewsDigest) RecordTimestamp() time.Time { return nd.Timestamp }

// RecordType implements Record.
func (nd NewsDigest) RecordType() DataType { return DataTypeNews }
