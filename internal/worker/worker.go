// Package worker runs the per-cycle ticker analysis pipeline: fetch signals,
// dedupe news, decide on reasoning, and commit one analysis per ticker, all
// inside a single transaction per cycle.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketobs/internal/adapters"
	"marketobs/internal/model"
	"marketobs/internal/observ"
	"marketobs/internal/reasoning"
	"marketobs/internal/store"
	"marketobs/internal/tracing"
	"marketobs/internal/trigger"
)

// PriceFetcher yields the current price and its provenance tag.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, ticker string) (float64, string)
}

// NewsFetcher yields deduplicated recent headlines and their provenance tag.
type NewsFetcher interface {
	FetchNews(ctx context.Context, ticker string) ([]adapters.NewsItem, string)
}

// Options carry the reasoning gate configuration.
type Options struct {
	PriceThresholdPct float64
	MaxHeadlines      int
}

type Worker struct {
	store    *store.Store
	prices   PriceFetcher
	news     NewsFetcher
	reasoner reasoning.Reasoner
	tracer   tracing.Tracer
	metrics  observ.Metrics
	opts     Options
}

func New(st *store.Store, prices PriceFetcher, news NewsFetcher, reasoner reasoning.Reasoner, tracer tracing.Tracer, metrics observ.Metrics, opts Options) *Worker {
	if opts.MaxHeadlines <= 0 {
		opts.MaxHeadlines = 5
	}
	return &Worker{
		store:    st,
		prices:   prices,
		news:     news,
		reasoner: reasoner,
		tracer:   tracer,
		metrics:  metrics,
		opts:     opts,
	}
}

// CycleResult summarizes one committed cycle.
type CycleResult struct {
	TickersProcessed int `json:"tickers_processed"`
	AnalysesWritten  int `json:"analyses_written"`
	NewsWritten      int `json:"news_written"`
	SnapshotsWritten int `json:"snapshots_written"`
	TickersSkipped   int `json:"tickers_skipped"`
}

// Run executes cycles until the context is cancelled, sleeping interval
// between them. With runOnce it returns after the first cycle.
func (w *Worker) Run(ctx context.Context, interval time.Duration, runOnce bool) error {
	for {
		started := time.Now()
		observ.Log("cycle_started", map[string]any{"at": started.UTC().Format(time.RFC3339)})

		result, err := w.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("run cycle: %w", err)
		}
		observ.Log("cycle_finished", map[string]any{
			"tickers_processed": result.TickersProcessed,
			"analyses_written":  result.AnalysesWritten,
			"news_written":      result.NewsWritten,
			"snapshots_written": result.SnapshotsWritten,
			"tickers_skipped":   result.TickersSkipped,
			"duration_ms":       time.Since(started).Milliseconds(),
		})

		if runOnce {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// RunCycle processes the whole watchlist and commits all writes atomically.
// A failing ticker is logged and skipped; only storage failure aborts the
// cycle. An empty watchlist still commits with a zero-valued result.
func (w *Worker) RunCycle(ctx context.Context) (CycleResult, error) {
	started := time.Now()
	var result CycleResult

	err := w.store.Transaction(func(tx *store.Store) error {
		watchlist, err := tx.ListTickers()
		if err != nil {
			return fmt.Errorf("load watchlist: %w", err)
		}
		w.metrics.SetGauge("watchlist_size", float64(len(watchlist)), nil)

		cycleSpan := w.tracer.StartTrace("worker-cycle", map[string]any{
			"watchlist_size": len(watchlist),
			"tickers":        watchlist,
		})
		result.TickersProcessed = len(watchlist)

		for _, ticker := range watchlist {
			out, err := w.processTickerSafe(ctx, tx, cycleSpan, ticker)
			if err != nil {
				observ.LogError("ticker_skipped", err, map[string]any{"ticker": ticker})
				w.metrics.IncCounter("tickers_skipped_total", nil)
				result.TickersSkipped++
				continue
			}
			result.AnalysesWritten += out.analyses
			result.NewsWritten += out.news
			result.SnapshotsWritten += out.snapshots
		}

		cycleSpan.Update(map[string]any{
			"tickers_processed": result.TickersProcessed,
			"analyses_written":  result.AnalysesWritten,
			"news_written":      result.NewsWritten,
			"snapshots_written": result.SnapshotsWritten,
		})
		cycleSpan.End()
		return nil
	})
	if err != nil {
		return result, err
	}

	w.tracer.Flush()
	w.metrics.IncCounter("cycles_total", nil)
	w.metrics.IncCounterBy("tickers_processed_total", nil, float64(result.TickersProcessed))
	w.metrics.Observe("cycle_duration_ms", float64(time.Since(started).Milliseconds()), nil)
	return result, nil
}

type tickerOutcome struct {
	analyses  int
	news      int
	snapshots int
}

// processTickerSafe is the per-ticker isolation boundary: each ticker runs
// in a savepoint, so a panic or error in any stage rolls back that ticker's
// writes without aborting the rest of the batch.
func (w *Worker) processTickerSafe(ctx context.Context, tx *store.Store, parent tracing.Span, ticker string) (out tickerOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = tickerOutcome{}
			err = fmt.Errorf("process %s: panic: %v", ticker, r)
		}
	}()
	err = tx.Transaction(func(inner *store.Store) error {
		var tickerErr error
		out, tickerErr = w.processTicker(ctx, inner, parent, ticker)
		return tickerErr
	})
	if err != nil {
		out = tickerOutcome{}
	}
	return out, err
}

func (w *Worker) processTicker(ctx context.Context, tx *store.Store, parent tracing.Span, ticker string) (tickerOutcome, error) {
	tickerSpan := parent.StartSpan("process-ticker", tracing.KindSpan, map[string]any{"ticker": ticker})
	defer tickerSpan.End()

	now := model.UTCNow()

	fetchPriceSpan := tickerSpan.StartSpan("fetch_price", tracing.KindTool, map[string]any{
		"ticker": ticker, "provider": "alpha_vantage",
	})
	price, priceSource := w.prices.FetchPrice(ctx, ticker)
	fetchPriceSpan.Update(map[string]any{"price": price, "source": priceSource})
	fetchPriceSpan.End()

	fetchNewsSpan := tickerSpan.StartSpan("fetch_news", tracing.KindTool, map[string]any{
		"ticker": ticker, "provider": "newsapi",
	})
	newsItems, newsSource := w.news.FetchNews(ctx, ticker)
	fetchNewsSpan.Update(map[string]any{
		"source":    newsSource,
		"count":     len(newsItems),
		"headlines": adapters.Headlines(newsItems),
	})
	fetchNewsSpan.End()

	previousPrice, err := tx.PreviousPrice(ticker)
	if err != nil {
		return tickerOutcome{}, fmt.Errorf("previous price for %s: %w", ticker, err)
	}
	movementDelta := trigger.MovementDelta(price, previousPrice)
	movementPct := trigger.MovementPct(price, previousPrice)

	snap := model.PriceSnapshot{
		Ticker:     ticker,
		Price:      &price,
		Source:     priceSource,
		CapturedAt: now,
	}
	if err := tx.InsertSnapshot(&snap); err != nil {
		return tickerOutcome{}, fmt.Errorf("insert snapshot for %s: %w", ticker, err)
	}

	insertedNews := 0
	var newHeadlines []string
	for _, item := range newsItems {
		source := item.Source
		if source == "" {
			source = newsSource
		}
		inserted, err := tx.InsertNewsIgnoreDup(&model.NewsItem{
			Ticker:      ticker,
			Headline:    item.Headline,
			URL:         item.URL,
			Source:      source,
			PublishedAt: item.PublishedAt,
			FetchedAt:   now,
		})
		if err != nil {
			return tickerOutcome{}, fmt.Errorf("insert news for %s: %w", ticker, err)
		}
		if inserted {
			insertedNews++
			newHeadlines = append(newHeadlines, item.Headline)
		}
	}
	w.metrics.IncCounterBy("news_inserted_total", nil, float64(insertedNews))

	shouldReason, triggerReason := trigger.ShouldRunReasoning(movementPct, insertedNews, w.opts.PriceThresholdPct)
	if shouldReason {
		w.metrics.IncCounter("reasoning_triggered_total", map[string]string{"reason": triggerReason})
	}

	topNews := make([]reasoning.TopNews, 0, len(newsItems))
	for i, item := range newsItems {
		if i >= w.opts.MaxHeadlines {
			break
		}
		topNews = append(topNews, reasoning.TopNews{
			Headline:    item.Headline,
			Source:      item.Source,
			PublishedAt: item.PublishedAt,
		})
	}
	payload := reasoning.Payload{
		Ticker:        ticker,
		CurrentPrice:  price,
		PreviousPrice: previousPrice,
		MovementDelta: movementDelta,
		MovementPct:   movementPct,
		Timestamp:     now,
		TopNews:       topNews,
		TriggerReason: triggerReason,
	}

	summarizeModel := reasoning.FallbackModel
	if shouldReason {
		summarizeModel = w.reasoner.Model()
	}
	summarizeSpan := tickerSpan.StartSpan("summarize", tracing.KindGeneration, payload)
	summarizeSpan.SetMetadata(map[string]any{"model": summarizeModel})

	var llmResult *reasoning.Result
	validJSON := false
	if shouldReason {
		llmResult, validJSON = w.reasoner.Reason(ctx, payload)
	}

	headlines := adapters.Headlines(newsItems)
	var summary, sentiment, hypothesis string
	var grounded bool
	if llmResult != nil {
		summary = llmResult.Summary
		sentiment = llmResult.Sentiment
		hypothesis = llmResult.Hypothesis
		grounded = reasoning.EvaluateGrounded(llmResult, headlines)
	} else {
		summary = reasoning.BuildSummary(ticker, price, movementDelta, headlines)
		sentiment = reasoning.MovementToSentiment(movementDelta)
		hypothesis = reasoning.BuildHypothesis(ticker, movementDelta, headlines)
		grounded = len(newsItems) > 0
		if shouldReason {
			w.metrics.IncCounter("reasoning_fallback_total", nil)
		}
	}

	summarizeSpan.Update(map[string]any{
		"summary":        summary,
		"sentiment":      sentiment,
		"movement_delta": movementDelta,
		"movement_pct":   movementPct,
		"llm_triggered":  shouldReason,
		"valid_json":     validJSON,
	})
	summarizeSpan.End()

	hypothesisSpan := tickerSpan.StartSpan("hypothesis", tracing.KindSpan, map[string]any{"ticker": ticker})
	hypothesisSpan.Update(map[string]any{"hypothesis": hypothesis})
	hypothesisSpan.SetMetadata(map[string]any{
		"grounded_headline_used": grounded,
		"valid_json":             validJSON,
		"llm_triggered":          shouldReason,
		"trigger_reason":         triggerReason,
	})
	hypothesisSpan.End()

	rawJSON, err := json.Marshal(map[string]any{
		"ticker":                   ticker,
		"price":                    price,
		"price_source":             priceSource,
		"news_source":              newsSource,
		"headlines":                headlines,
		"hypothesis":               hypothesis,
		"movement_pct":             movementPct,
		"llm_triggered":            shouldReason,
		"valid_json":               validJSON,
		"trigger_reason":           triggerReason,
		"grounded_headline_used":   grounded,
		"newly_inserted_headlines": newHeadlines,
		"llm_payload":              payload,
		"llm_result":               llmResult,
	})
	if err != nil {
		return tickerOutcome{}, fmt.Errorf("encode raw payload for %s: %w", ticker, err)
	}

	if err := tx.InsertAnalysis(&model.Analysis{
		Ticker:        ticker,
		Summary:       summary,
		Sentiment:     sentiment,
		MovementDelta: movementDelta,
		DataTimestamp: now,
		CreatedAt:     now,
		RawJSON:       string(rawJSON),
	}); err != nil {
		return tickerOutcome{}, fmt.Errorf("insert analysis for %s: %w", ticker, err)
	}

	tickerSpan.Update(map[string]any{
		"ticker":         ticker,
		"price":          price,
		"sentiment":      sentiment,
		"movement_delta": movementDelta,
		"movement_pct":   movementPct,
		"news_items":     len(newsItems),
		"new_news_items": insertedNews,
		"llm_triggered":  shouldReason,
		"trigger_reason": triggerReason,
	})

	observ.Log("ticker_processed", map[string]any{
		"ticker":     ticker,
		"price":      price,
		"source":     priceSource,
		"news_items": insertedNews,
	})
	return tickerOutcome{analyses: 1, news: insertedNews, snapshots: 1}, nil
}
