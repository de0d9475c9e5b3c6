package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"marketobs/internal/config"
)

// GeminiReasoner calls the Gemini generateContent endpoint with a strict
// JSON response contract.
type GeminiReasoner struct {
	cfg    config.Gemini
	client *resty.Client
}

// NewReasoner selects the Gemini implementation when a real credential is
// configured and the disabled NullReasoner otherwise.
func NewReasoner(cfg config.Gemini) Reasoner {
	if !HasValidKey(cfg.APIKey) {
		return NullReasoner{}
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	return &GeminiReasoner{cfg: cfg, client: client}
}

// HasValidKey rejects empty and placeholder credentials.
func HasValidKey(apiKey string) bool {
	switch strings.TrimSpace(apiKey) {
	case "", "mock", "demo", "your_gemini_api_key":
		return false
	}
	return true
}

func (g *GeminiReasoner) Model() string { return g.cfg.Model }

// BuildPrompt instructs the model to stay within the supplied data and
// return the exact response schema.
func BuildPrompt(payload Payload) string {
	input, _ := json.Marshal(payload)
	return "You are a market observability analysis assistant.\n" +
		"Use only provided data and headlines. Do not invent facts.\n" +
		"Avoid investment advice. Be explicit about uncertainty.\n" +
		"Return strict JSON with keys:\n" +
		"summary, sentiment, confidence, hypothesis, evidence, counterpoints, limitations, grounded\n" +
		"where evidence is an array of {headline, rationale}.\n\n" +
		"INPUT:\n" + string(input)
}

var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// ExtractJSONObject strips a Markdown code fence if the model wrapped its
// response in one.
func ExtractJSONObject(text string) string {
	stripped := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(stripped); m != nil {
		return strings.TrimSpace(m[1])
	}
	return stripped
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func newGeminiRequest(prompt string) geminiRequest {
	return geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0.2,
			ResponseMimeType: "application/json",
		},
	}
}

// Reason performs one model call. Any network, schema, or parse failure
// yields (nil, false); the cycle continues on the fallback path.
func (g *GeminiReasoner) Reason(ctx context.Context, payload Payload) (*Result, bool) {
	var out geminiResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.cfg.APIKey).
		SetBody(newGeminiRequest(BuildPrompt(payload))).
		SetResult(&out).
		Post(fmt.Sprintf("/models/%s:generateContent", g.cfg.Model))
	if err != nil || !resp.IsSuccess() {
		return nil, false
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, false
	}

	text := ExtractJSONObject(out.Candidates[0].Content.Parts[0].Text)
	result, err := ParseResult([]byte(text))
	if err != nil {
		return nil, false
	}
	return result, true
}

// ParseResult decodes and validates a model response against the schema:
// the sentiment enum is enforced and confidence is clamped to [0,1].
func ParseResult(raw []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode reasoning result: %w", err)
	}
	if strings.TrimSpace(res.Summary) == "" {
		return nil, fmt.Errorf("reasoning result missing summary")
	}
	switch res.Sentiment {
	case "positive", "neutral", "negative":
	default:
		return nil, fmt.Errorf("invalid sentiment %q", res.Sentiment)
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	}
	if res.Confidence > 1 {
		res.Confidence = 1
	}
	return &res, nil
}
