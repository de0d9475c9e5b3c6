package model

import (
	"strings"
	"time"
)

// UTCNow returns the current UTC time in the format stored in every
// timestamp column.
func UTCNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Sentiment values allowed on an analysis row.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// NormalizeTicker canonicalizes a watchlist symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

type WatchlistEntry struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	Ticker    string `json:"ticker" gorm:"uniqueIndex;not null"`
	CreatedAt string `json:"created_at" gorm:"not null"`
}

func (WatchlistEntry) TableName() string { return "watchlist" }

type PriceSnapshot struct {
	ID         uint     `json:"id" gorm:"primaryKey"`
	Ticker     string   `json:"ticker" gorm:"index;not null"`
	Price      *float64 `json:"price"`
	Source     string   `json:"source"`
	CapturedAt string   `json:"captured_at" gorm:"not null"`
}

func (PriceSnapshot) TableName() string { return "price_snapshots" }

type NewsItem struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Ticker      string  `json:"ticker" gorm:"index;not null"`
	Headline    string  `json:"headline" gorm:"not null"`
	URL         *string `json:"url"`
	Source      string  `json:"source"`
	PublishedAt *string `json:"published_at"`
	FetchedAt   string  `json:"fetched_at" gorm:"not null"`
}

func (NewsItem) TableName() string { return "news_items" }

type Analysis struct {
	ID            uint     `json:"id" gorm:"primaryKey"`
	Ticker        string   `json:"ticker" gorm:"index;not null"`
	Summary       string   `json:"summary" gorm:"not null"`
	Sentiment     string   `json:"sentiment"`
	MovementDelta *float64 `json:"movement_delta"`
	DataTimestamp string   `json:"data_timestamp"`
	CreatedAt     string   `json:"created_at" gorm:"not null"`
	RawJSON       string   `json:"raw_json"`
}

func (Analysis) TableName() string { return "analyses" }
