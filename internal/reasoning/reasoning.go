// Package reasoning produces the per-ticker sentiment summary, either from
// a constrained LLM call or from a deterministic rule-based fallback.
package reasoning

import (
	"context"
	"strings"
)

// TopNews is one headline handed to the model.
type TopNews struct {
	Headline    string  `json:"headline"`
	Source      string  `json:"source"`
	PublishedAt *string `json:"published_at"`
}

// Payload is the full model input for one ticker in one cycle.
type Payload struct {
	Ticker        string    `json:"ticker"`
	CurrentPrice  float64   `json:"current_price"`
	PreviousPrice *float64  `json:"previous_price"`
	MovementDelta *float64  `json:"movement_delta"`
	MovementPct   *float64  `json:"movement_pct"`
	Timestamp     string    `json:"timestamp"`
	TopNews       []TopNews `json:"top_news"`
	TriggerReason string    `json:"trigger_reason"`
}

// Evidence ties a cited headline to the model's rationale for citing it.
type Evidence struct {
	Headline  string `json:"headline"`
	Rationale string `json:"rationale"`
}

// Result is the schema the model must return.
type Result struct {
	Summary       string     `json:"summary"`
	Sentiment     string     `json:"sentiment"`
	Confidence    float64    `json:"confidence"`
	Hypothesis    string     `json:"hypothesis"`
	Evidence      []Evidence `json:"evidence"`
	Counterpoints []string   `json:"counterpoints"`
	Limitations   []string   `json:"limitations"`
	Grounded      bool       `json:"grounded"`
}

// FallbackModel tags analyses produced without an LLM call.
const FallbackModel = "rule-based-summary-v1"

// Reasoner turns a payload into a Result, or refuses. The boolean reports
// whether a schema-valid model response was obtained; (nil, false) means
// the caller should use the rule-based fallback.
type Reasoner interface {
	Reason(ctx context.Context, payload Payload) (*Result, bool)
	Model() string
}

// NullReasoner is the disabled variant used when no credential is configured.
type NullReasoner struct{}

func (NullReasoner) Reason(context.Context, Payload) (*Result, bool) { return nil, false }
func (NullReasoner) Model() string                                   { return FallbackModel }

// EvaluateGrounded reports whether at least one evidence headline matches a
// headline actually supplied in the input, independent of the model's own
// grounded flag.
func EvaluateGrounded(res *Result, inputHeadlines []string) bool {
	if res == nil || len(res.Evidence) == 0 || len(inputHeadlines) == 0 {
		return false
	}
	allowed := map[string]struct{}{}
	for _, h := range inputHeadlines {
		allowed[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	for _, ev := range res.Evidence {
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(ev.Headline))]; ok {
			return true
		}
	}
	return false
}
