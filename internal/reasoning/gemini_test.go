package reasoning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketobs/internal/config"
)

func geminiBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	})
	return string(b)
}

func newTestReasoner(t *testing.T, handler http.HandlerFunc) Reasoner {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewReasoner(config.Gemini{
		APIKey:         "real-key",
		BaseURL:        srv.URL,
		Model:          "gemini-1.5-flash",
		TimeoutSeconds: 1,
	})
}

func TestNewReasoner_PlaceholderKeyDisables(t *testing.T) {
	r := NewReasoner(config.Gemini{APIKey: "mock"})
	_, ok := r.(NullReasoner)
	assert.True(t, ok)

	res, valid := r.Reason(context.Background(), Payload{Ticker: "AAPL"})
	assert.Nil(t, res)
	assert.False(t, valid)
}

func TestGeminiReasoner_ValidResponse(t *testing.T) {
	inner := `{"summary":"AAPL steady","sentiment":"neutral","confidence":0.6,"hypothesis":"h","evidence":[{"headline":"e","rationale":"r"}],"counterpoints":[],"limitations":[],"grounded":true}`
	r := newTestReasoner(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Contains(t, req.URL.Path, "gemini-1.5-flash:generateContent")
		assert.Equal(t, "real-key", req.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geminiBody("```json\n" + inner + "\n```")))
	})

	res, valid := r.Reason(context.Background(), Payload{Ticker: "AAPL"})
	require.True(t, valid)
	require.NotNil(t, res)
	assert.Equal(t, "AAPL steady", res.Summary)
	assert.Equal(t, "neutral", res.Sentiment)
}

func TestGeminiReasoner_FailureModes(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"no candidates", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"candidates":[]}`))
		}},
		{"schema violation", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(geminiBody(`{"summary":"s","sentiment":"bullish","hypothesis":"h"}`)))
		}},
		{"not json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(geminiBody("the market looks fine")))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestReasoner(t, tc.handler)
			res, valid := r.Reason(context.Background(), Payload{Ticker: "AAPL"})
			assert.Nil(t, res)
			assert.False(t, valid)
		})
	}
}
