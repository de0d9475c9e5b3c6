package reasoning

import (
	"fmt"
	"strings"
)

// BuildSummary composes the deterministic summary sentence used whenever
// the model is skipped or fails.
func BuildSummary(ticker string, price float64, movementDelta *float64, headlines []string) string {
	movementText := "no prior snapshot available"
	if movementDelta != nil {
		movementText = fmt.Sprintf("delta since last snapshot: %+.4f", *movementDelta)
	}
	if len(headlines) > 2 {
		headlines = headlines[:2]
	}
	headlineText := strings.Join(headlines, "; ")
	if headlineText == "" {
		headlineText = "no recent headlines found"
	}
	return fmt.Sprintf("%s last price %.2f; %s. Top headlines: %s.", ticker, price, movementText, headlineText)
}

// MovementToSentiment maps the price delta onto the sentiment enum.
func MovementToSentiment(delta *float64) string {
	switch {
	case delta == nil:
		return "neutral"
	case *delta > 0:
		return "positive"
	case *delta < 0:
		return "negative"
	default:
		return "neutral"
	}
}

// BuildHypothesis templates a directional hypothesis from the movement and
// the top headline.
func BuildHypothesis(ticker string, movementDelta *float64, headlines []string) string {
	var movementText string
	switch {
	case movementDelta == nil:
		movementText = "insufficient trend data for directional inference"
	case *movementDelta > 0:
		movementText = "recent movement is positive"
	case *movementDelta < 0:
		movementText = "recent movement is negative"
	default:
		movementText = "recent movement is flat"
	}

	headlineHint := "no headline signal available"
	if len(headlines) > 0 {
		headlineHint = headlines[0]
	}
	return fmt.Sprintf("%s: %s; key narrative signal: %s.", ticker, movementText, headlineHint)
}
