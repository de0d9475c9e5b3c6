// Package api exposes committed analysis data as simple read projections,
// plus watchlist management.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"marketobs/internal/model"
	"marketobs/internal/observ"
	"marketobs/internal/store"
)

type Handler struct {
	store *store.Store
}

func NewHandler(st *store.Store) *Handler {
	return &Handler{store: st}
}

// NewRouter wires all query routes. The metrics registry is optional; when
// present its JSON dump is exposed on /metrics.
func NewRouter(st *store.Store, metrics *observ.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if metrics != nil {
		r.Use(requestCounter(metrics))
	}
	h := NewHandler(st)

	r.GET("/health", h.GetHealth)
	r.GET("/watchlist", h.GetWatchlist)
	r.POST("/watchlist", h.AddTicker)
	r.DELETE("/watchlist/:ticker", h.RemoveTicker)
	r.GET("/analyses/:ticker", h.GetAnalyses)
	r.GET("/analyses/:ticker/latest", h.GetLatestAnalysis)
	r.GET("/prices", h.GetPrices)
	r.GET("/news", h.GetNews)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return r
}

func requestCounter(m observ.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.IncCounter("http_requests_total", map[string]string{"endpoint": endpoint})
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) GetWatchlist(c *gin.Context) {
	tickers, err := h.store.ListTickers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tickers == nil {
		tickers = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tickers": tickers})
}

type addTickerRequest struct {
	Ticker string `json:"ticker"`
}

func (h *Handler) AddTicker(c *gin.Context) {
	var req addTickerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ticker := model.NormalizeTicker(req.Ticker)
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker cannot be empty"})
		return
	}
	entry, err := h.store.AddTicker(ticker)
	if errors.Is(err, store.ErrDuplicateTicker) {
		c.JSON(http.StatusConflict, gin.H{"error": "ticker already on watchlist"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) RemoveTicker(c *gin.Context) {
	removed, err := h.store.RemoveTicker(c.Param("ticker"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticker not on watchlist"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetLatestAnalysis(c *gin.Context) {
	ticker := model.NormalizeTicker(c.Param("ticker"))
	analysis, err := h.store.LatestAnalysis(ticker)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if analysis == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis stored for " + ticker})
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (h *Handler) GetAnalyses(c *gin.Context) {
	ticker := model.NormalizeTicker(c.Param("ticker"))
	limit := parseBounded(c.Query("limit"), 20, 100)
	analyses, err := h.store.Analyses(ticker, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if analyses == nil {
		analyses = []model.Analysis{}
	}
	c.JSON(http.StatusOK, gin.H{"ticker": ticker, "analyses": analyses})
}

func (h *Handler) GetPrices(c *gin.Context) {
	ticker := model.NormalizeTicker(c.Query("ticker"))
	limit := parseBounded(c.Query("limit"), 20, 100)
	offset := parseOffset(c.Query("offset"))
	prices, total, err := h.store.Prices(ticker, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if prices == nil {
		prices = []model.PriceSnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "prices": prices})
}

func (h *Handler) GetNews(c *gin.Context) {
	ticker := model.NormalizeTicker(c.Query("ticker"))
	limit := parseBounded(c.Query("limit"), 20, 100)
	offset := parseOffset(c.Query("offset"))
	news, total, err := h.store.News(ticker, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if news == nil {
		news = []model.NewsItem{}
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "news": news})
}

func parseBounded(raw string, def, max int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func parseOffset(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return 0
	}
	return v
}
