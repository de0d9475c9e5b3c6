package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketobs/internal/model"
	"marketobs/internal/observ"
	"marketobs/internal/store"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return NewRouter(st, observ.NewRegistry()), st
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestWatchlistCRUD(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, "POST", "/watchlist", `{"ticker":" aapl "}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, "POST", "/watchlist", `{"ticker":"AAPL"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, "POST", "/watchlist", `{"ticker":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, "GET", "/watchlist", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Tickers []string `json:"tickers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []string{"AAPL"}, res.Tickers)

	w = doJSON(t, r, "DELETE", "/watchlist/AAPL", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, "DELETE", "/watchlist/AAPL", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetLatestAnalysis(t *testing.T) {
	r, st := newTestRouter(t)

	w := doJSON(t, r, "GET", "/analyses/AAPL/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, st.InsertAnalysis(&model.Analysis{
		Ticker: "AAPL", Summary: "AAPL last price 137.40", Sentiment: "neutral",
		DataTimestamp: model.UTCNow(), CreatedAt: model.UTCNow(),
	}))

	w = doJSON(t, r, "GET", "/analyses/aapl/latest", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var a model.Analysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, "AAPL", a.Ticker)
	assert.Equal(t, "neutral", a.Sentiment)
}

func TestGetAnalysesHistoryBounded(t *testing.T) {
	r, st := newTestRouter(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, st.InsertAnalysis(&model.Analysis{
			Ticker: "AAPL", Summary: "s", Sentiment: "neutral", CreatedAt: model.UTCNow(),
		}))
	}

	w := doJSON(t, r, "GET", "/analyses/AAPL?limit=2", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Analyses []model.Analysis `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Analyses, 2)

	// out-of-range limit falls back to the default
	w = doJSON(t, r, "GET", "/analyses/AAPL?limit=-3", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Analyses, 5)
}

func TestGetPricesPagination(t *testing.T) {
	r, st := newTestRouter(t)
	price := 100.0
	for i := 0; i < 3; i++ {
		require.NoError(t, st.InsertSnapshot(&model.PriceSnapshot{
			Ticker: "AAPL", Price: &price, Source: "mock", CapturedAt: model.UTCNow(),
		}))
	}

	w := doJSON(t, r, "GET", "/prices?ticker=AAPL&limit=2&offset=2", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Total  int64                 `json:"total"`
		Prices []model.PriceSnapshot `json:"prices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.EqualValues(t, 3, res.Total)
	assert.Len(t, res.Prices, 1)
}

func TestGetNewsEmpty(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, "GET", "/news?ticker=AAPL", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":0,"news":[]}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "counters")
}
