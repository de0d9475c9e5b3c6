// Package trigger gates the expensive reasoning step on price movement and
// fresh news.
package trigger

import (
	"math"

	"github.com/shopspring/decimal"
)

// Reasons reported alongside the trigger decision.
const (
	ReasonPriceChangeAndNews = "price_change_and_news_update"
	ReasonPriceChange        = "price_change"
	ReasonNewsUpdate         = "news_update"
	ReasonNone               = "none"
)

// Round4 rounds to 4 decimals, the precision used for movement values.
func Round4(v float64) float64 {
	out, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return out
}

// MovementDelta is current minus previous, or nil without a prior snapshot.
func MovementDelta(current float64, previous *float64) *float64 {
	if previous == nil {
		return nil
	}
	d := Round4(current - *previous)
	return &d
}

// MovementPct is the percentage change against the previous price, or nil
// when there is no usable baseline.
func MovementPct(current float64, previous *float64) *float64 {
	if previous == nil || *previous == 0 {
		return nil
	}
	pct := Round4(((current - *previous) / *previous) * 100)
	return &pct
}

// ShouldRunReasoning applies the decision table: price movement beyond the
// threshold and/or newly inserted news rows trigger the reasoning step.
func ShouldRunReasoning(movementPct *float64, insertedNewsCount int, thresholdPct float64) (bool, string) {
	priceTrigger := movementPct != nil && math.Abs(*movementPct) >= thresholdPct
	newsTrigger := insertedNewsCount > 0

	switch {
	case priceTrigger && newsTrigger:
		return true, ReasonPriceChangeAndNews
	case priceTrigger:
		return true, ReasonPriceChange
	case newsTrigger:
		return true, ReasonNewsUpdate
	default:
		return false, ReasonNone
	}
}
