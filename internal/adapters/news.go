package adapters

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"marketobs/internal/config"
	"marketobs/internal/model"
)

// NewsItem is a normalized, not-yet-persisted headline.
type NewsItem struct {
	Headline    string
	URL         *string
	Source      string
	PublishedAt *string
}

// RawNewsItem is provider output before validation.
type RawNewsItem struct {
	Headline    string
	URL         string
	Source      string
	PublishedAt string
}

// maxNewsItems caps what a fetch returns after dedup; providers are asked
// for more than this to absorb duplicates.
const (
	maxNewsItems     = 3
	newsRequestLimit = 6
)

// Normalize validates a raw item. Items with an empty headline are dropped;
// blank optional fields become nil and a blank source gets a default tag.
func Normalize(raw RawNewsItem) (NewsItem, bool) {
	headline := strings.TrimSpace(raw.Headline)
	if headline == "" {
		return NewsItem{}, false
	}
	item := NewsItem{Headline: headline}
	if u := strings.TrimSpace(raw.URL); u != "" {
		item.URL = &u
	}
	if p := strings.TrimSpace(raw.PublishedAt); p != "" {
		item.PublishedAt = &p
	}
	item.Source = strings.TrimSpace(raw.Source)
	if item.Source == "" {
		item.Source = "unknown-source"
	}
	return item, true
}

// DedupeKey identifies a logical news item: case-folded headline plus the
// optional url and published_at (empty when absent).
func DedupeKey(headline string, url, publishedAt *string) string {
	u, p := "", ""
	if url != nil {
		u = *url
	}
	if publishedAt != nil {
		p = *publishedAt
	}
	return strings.ToLower(strings.TrimSpace(headline)) + "\x00" + u + "\x00" + p
}

// ParseAndDedupe normalizes raw items and drops in-batch duplicates,
// first occurrence winning.
func ParseAndDedupe(raw []RawNewsItem) []NewsItem {
	seen := map[string]struct{}{}
	var out []NewsItem
	for _, r := range raw {
		item, ok := Normalize(r)
		if !ok {
			continue
		}
		key := DedupeKey(item.Headline, item.URL, item.PublishedAt)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// NewsClient fetches recent headlines from NewsAPI, with a deterministic
// mock path when no real credential is configured.
type NewsClient struct {
	cfg    config.NewsAPI
	client *resty.Client
}

func NewNewsClient(cfg config.NewsAPI) *NewsClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	return &NewsClient{cfg: cfg, client: client}
}

func newsKeyIsMock(key string) bool {
	switch strings.TrimSpace(key) {
	case "", "mock", "demo", "mock_newsapi_key":
		return true
	}
	return false
}

type newsAPIResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

// FetchNews returns up to maxNewsItems deduplicated headlines and the
// provenance tag of where they came from. It never fails: any upstream
// problem falls back to the mock generator.
func (c *NewsClient) FetchNews(ctx context.Context, ticker string) ([]NewsItem, string) {
	if newsKeyIsMock(c.cfg.APIKey) {
		return MockNews(ticker), "mock_newsapi"
	}

	var payload newsAPIResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":        ticker,
			"language": "en",
			"sortBy":   "publishedAt",
			"pageSize": "6",
			"apiKey":   c.cfg.APIKey,
		}).
		SetResult(&payload).
		Get("")
	if err != nil || !resp.IsSuccess() || len(payload.Articles) == 0 {
		return MockNews(ticker), "mock_newsapi_fallback"
	}

	raw := make([]RawNewsItem, 0, newsRequestLimit)
	for i, article := range payload.Articles {
		if i >= newsRequestLimit {
			break
		}
		headline := article.Title
		if headline == "" {
			headline = ticker + " headline unavailable"
		}
		source := article.Source.Name
		if source == "" {
			source = "newsapi"
		}
		raw = append(raw, RawNewsItem{
			Headline:    headline,
			URL:         article.URL,
			Source:      source,
			PublishedAt: article.PublishedAt,
		})
	}
	items := ParseAndDedupe(raw)
	if len(items) > maxNewsItems {
		items = items[:maxNewsItems]
	}
	return items, "newsapi"
}

// MockNews returns two synthetic headlines for a ticker, stamped with the
// current time.
func MockNews(ticker string) []NewsItem {
	now := model.UTCNow()
	return ParseAndDedupe([]RawNewsItem{
		{
			Headline:    ticker + " mock headline: earnings outlook in focus",
			URL:         "https://example.com/mock-earnings",
			Source:      "mock-news",
			PublishedAt: now,
		},
		{
			Headline:    ticker + " mock headline: analyst sentiment mixed",
			URL:         "https://example.com/mock-analyst",
			Source:      "mock-news",
			PublishedAt: now,
		},
	})
}

// Headlines extracts the headline strings from a batch.
func Headlines(items []NewsItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Headline)
	}
	return out
}
