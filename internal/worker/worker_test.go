package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketobs/internal/adapters"
	"marketobs/internal/config"
	"marketobs/internal/observ"
	"marketobs/internal/reasoning"
	"marketobs/internal/store"
	"marketobs/internal/tracing"
)

func newMockWorker(t *testing.T, tickers ...string) (*Worker, *store.Store, *observ.Registry) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	for _, ticker := range tickers {
		_, err := st.AddTicker(ticker)
		require.NoError(t, err)
	}
	reg := observ.NewRegistry()
	w := New(
		st,
		adapters.NewPriceClient(config.AlphaVantage{APIKey: "mock", BaseURL: "http://unused", TimeoutSeconds: 1, RateLimitPerMinute: 60}),
		adapters.NewNewsClient(config.NewsAPI{APIKey: "mock", BaseURL: "http://unused", TimeoutSeconds: 1}),
		reasoning.NullReasoner{},
		tracing.NoopTracer{},
		reg,
		Options{PriceThresholdPct: 0.5, MaxHeadlines: 5},
	)
	return w, st, reg
}

func TestRunCycle_EmptyWatchlist(t *testing.T) {
	w, _, _ := newMockWorker(t)
	result, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{}, result)
}

func TestRunCycle_SingleTickerMockProviders(t *testing.T) {
	w, st, _ := newMockWorker(t, "AAPL")

	result, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.TickersProcessed)
	assert.Equal(t, 1, result.AnalysesWritten)
	assert.Equal(t, 1, result.SnapshotsWritten)
	assert.GreaterOrEqual(t, result.NewsWritten, 1)
	assert.Equal(t, 0, result.TickersSkipped)

	analysis, err := st.LatestAnalysis("AAPL")
	require.NoError(t, err)
	require.NotNil(t, analysis)
	assert.Contains(t, analysis.Summary, "AAPL last price")
	assert.Contains(t, []string{"neutral", "positive", "negative"}, analysis.Sentiment)

	// no prior snapshot: fallback path is neutral with a nil delta
	assert.Nil(t, analysis.MovementDelta)
	assert.Equal(t, "neutral", analysis.Sentiment)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(analysis.RawJSON), &raw))
	assert.Equal(t, "mock_alpha_vantage", raw["price_source"])
	assert.Equal(t, "mock_newsapi", raw["news_source"])
	assert.Equal(t, false, raw["valid_json"])
	assert.NotEmpty(t, raw["hypothesis"])
}

func TestRunCycle_SecondCycleZeroDelta(t *testing.T) {
	w, st, _ := newMockWorker(t, "AAPL")

	_, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	_, err = w.RunCycle(context.Background())
	require.NoError(t, err)

	analysis, err := st.LatestAnalysis("AAPL")
	require.NoError(t, err)
	require.NotNil(t, analysis)
	require.NotNil(t, analysis.MovementDelta)
	assert.Equal(t, 0.0, *analysis.MovementDelta)
	assert.Equal(t, "neutral", analysis.Sentiment)

	prices, total, err := st.Prices("AAPL", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, prices, 2)
	assert.Equal(t, *prices[0].Price, *prices[1].Price)
}

func TestRunCycle_TickerFailureDoesNotAbortBatch(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = st.AddTicker("AAPL")
	require.NoError(t, err)
	_, err = st.AddTicker("MSFT")
	require.NoError(t, err)

	reg := observ.NewRegistry()
	w := New(
		st,
		failOnPrices{failFor: "AAPL"},
		adapters.NewNewsClient(config.NewsAPI{APIKey: "mock", BaseURL: "http://unused", TimeoutSeconds: 1}),
		reasoning.NullReasoner{},
		tracing.NoopTracer{},
		reg,
		Options{PriceThresholdPct: 0.5},
	)

	result, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.TickersProcessed)
	assert.Equal(t, 1, result.TickersSkipped)
	assert.Equal(t, 1, result.AnalysesWritten)
	assert.EqualValues(t, 1, reg.CounterValue("tickers_skipped_total", nil))

	// the skipped ticker has no analysis; the healthy one does
	analysis, err := st.LatestAnalysis("AAPL")
	require.NoError(t, err)
	assert.Nil(t, analysis)

	analysis, err = st.LatestAnalysis("MSFT")
	require.NoError(t, err)
	assert.NotNil(t, analysis)
}

// failOnPrices panics for one ticker and behaves like the mock otherwise.
type failOnPrices struct {
	failFor string
}

func (f failOnPrices) FetchPrice(_ context.Context, ticker string) (float64, string) {
	if ticker == f.failFor {
		panic("malformed stored row")
	}
	return adapters.MockPrice(ticker), "mock_alpha_vantage"
}

func TestRunCycle_MidTickerFailureRollsBackWrites(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = st.AddTicker("AAPL")
	require.NoError(t, err)
	_, err = st.AddTicker("MSFT")
	require.NoError(t, err)

	reg := observ.NewRegistry()
	w := New(
		st,
		adapters.NewPriceClient(config.AlphaVantage{APIKey: "mock", BaseURL: "http://unused", TimeoutSeconds: 1, RateLimitPerMinute: 60}),
		adapters.NewNewsClient(config.NewsAPI{APIKey: "mock", BaseURL: "http://unused", TimeoutSeconds: 1}),
		panicOnReason{failFor: "AAPL"},
		tracing.NoopTracer{},
		reg,
		Options{PriceThresholdPct: 0.5},
	)

	result, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.TickersProcessed)
	assert.Equal(t, 1, result.TickersSkipped)
	assert.Equal(t, 1, result.AnalysesWritten)
	assert.Equal(t, 1, result.SnapshotsWritten)

	// the snapshot and news rows written before the failure are rolled back
	// with the ticker, so the committed state matches the counters
	_, priceTotal, err := st.Prices("AAPL", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, priceTotal)
	_, newsTotal, err := st.News("AAPL", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, newsTotal)

	_, msftNews, err := st.News("MSFT", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, result.NewsWritten, msftNews)

	analysis, err := st.LatestAnalysis("MSFT")
	require.NoError(t, err)
	assert.NotNil(t, analysis)
}

// panicOnReason fails mid-pipeline, after the snapshot and news inserts
// for the ticker have already run.
type panicOnReason struct {
	failFor string
}

func (p panicOnReason) Reason(_ context.Context, payload reasoning.Payload) (*reasoning.Result, bool) {
	if payload.Ticker == p.failFor {
		panic("reasoner crashed")
	}
	return nil, false
}

func (panicOnReason) Model() string { return "test-model" }

func TestRunCycle_NewsDedupAcrossBatch(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = st.AddTicker("AAPL")
	require.NoError(t, err)

	w := New(
		st,
		adapters.NewPriceClient(config.AlphaVantage{APIKey: "mock", BaseURL: "http://unused", TimeoutSeconds: 1, RateLimitPerMinute: 60}),
		staticNews{},
		reasoning.NullReasoner{},
		tracing.NoopTracer{},
		observ.NopMetrics{},
		Options{PriceThresholdPct: 0.5},
	)

	result, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewsWritten)

	// the same logical item in the next cycle is ignored by storage
	result, err = w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewsWritten)

	_, total, err := st.News("AAPL", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

// staticNews always returns the same logical item.
type staticNews struct{}

func (staticNews) FetchNews(_ context.Context, ticker string) ([]adapters.NewsItem, string) {
	url := "https://example.com/static"
	published := "2024-01-01T00:00:00Z"
	return []adapters.NewsItem{{
		Headline:    ticker + " static headline",
		URL:         &url,
		Source:      "static",
		PublishedAt: &published,
	}}, "newsapi"
}

func TestRunCycle_MetricsUpdated(t *testing.T) {
	w, _, reg := newMockWorker(t, "AAPL")
	_, err := w.RunCycle(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, reg.CounterValue("cycles_total", nil))
	assert.EqualValues(t, 1, reg.CounterValue("tickers_processed_total", nil))
	// first cycle always inserts fresh mock news, so the news trigger fires
	assert.EqualValues(t, 1, reg.CounterValue("reasoning_triggered_total", map[string]string{"reason": "news_update"}))
}
