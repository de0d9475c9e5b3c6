package adapters

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"marketobs/internal/config"
)

// PriceClient fetches the current quote from Alpha Vantage. Real calls are
// rate limited to the provider's free-tier allowance; everything else runs
// through the deterministic mock.
type PriceClient struct {
	cfg     config.AlphaVantage
	client  *resty.Client
	limiter *rate.Limiter
}

func NewPriceClient(cfg config.AlphaVantage) *PriceClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	return &PriceClient{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 1),
	}
}

func priceKeyIsMock(key string) bool {
	switch strings.TrimSpace(key) {
	case "", "mock", "demo", "mock_alpha_vantage_key":
		return true
	}
	return false
}

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
}

// FetchPrice returns the current price for ticker and a provenance tag.
// It never fails: missing credentials use the mock directly, and any
// upstream problem falls back to the mock with a fallback tag.
func (c *PriceClient) FetchPrice(ctx context.Context, ticker string) (float64, string) {
	if priceKeyIsMock(c.cfg.APIKey) {
		return MockPrice(ticker), "mock_alpha_vantage"
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return MockPrice(ticker), "mock_alpha_vantage_fallback"
	}

	var payload globalQuoteResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "GLOBAL_QUOTE",
			"symbol":   ticker,
			"apikey":   c.cfg.APIKey,
		}).
		SetResult(&payload).
		Get("")
	if err != nil || !resp.IsSuccess() {
		return MockPrice(ticker), "mock_alpha_vantage_fallback"
	}

	raw, ok := payload.GlobalQuote["05. price"]
	if !ok {
		return MockPrice(ticker), "mock_alpha_vantage_fallback"
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return MockPrice(ticker), "mock_alpha_vantage_fallback"
	}
	return price, "alpha_vantage"
}

// MockPrice derives a stable price from the ticker string alone, so repeated
// cycles without a real provider see zero movement.
func MockPrice(ticker string) float64 {
	seed := 0
	for _, ch := range ticker {
		seed += int(ch)
	}
	price := decimal.NewFromInt(50).
		Add(decimal.NewFromInt(int64(seed % 200))).
		Add(decimal.NewFromInt(int64(seed % 17)).Div(decimal.NewFromInt(10)))
	v, _ := price.Round(2).Float64()
	return v
}
