package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Worker struct {
	IntervalSeconds int  `yaml:"interval_seconds"`
	RunOnce         bool `yaml:"run_once"`
}

type AlphaVantage struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type NewsAPI struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Gemini struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	PriceThresholdPct float64 `yaml:"price_change_threshold_pct"`
	MaxHeadlines      int     `yaml:"max_headlines"`
}

type Langfuse struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"`
}

type Root struct {
	DBPath       string       `yaml:"db_path"`
	APIAddr      string       `yaml:"api_addr"`
	Worker       Worker       `yaml:"worker"`
	AlphaVantage AlphaVantage `yaml:"alpha_vantage"`
	NewsAPI      NewsAPI      `yaml:"newsapi"`
	Gemini       Gemini       `yaml:"gemini"`
	Langfuse     Langfuse     `yaml:"langfuse"`
}

// Load reads an optional YAML config file, then applies .env / environment
// overrides and fills in defaults. An empty path skips the file entirely.
func Load(path string) (Root, error) {
	var c Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, err
		}
	}

	_ = godotenv.Load()
	c.loadFromEnv()

	if c.DBPath == "" {
		c.DBPath = "data/market_observability.db"
	}
	if c.APIAddr == "" {
		c.APIAddr = ":8000"
	}
	if c.Worker.IntervalSeconds == 0 {
		c.Worker.IntervalSeconds = 300
	}
	if c.AlphaVantage.BaseURL == "" {
		c.AlphaVantage.BaseURL = "https://www.alphavantage.co/query"
	}
	if c.AlphaVantage.APIKey == "" {
		c.AlphaVantage.APIKey = "demo"
	}
	if c.AlphaVantage.TimeoutSeconds == 0 {
		c.AlphaVantage.TimeoutSeconds = 10
	}
	if c.AlphaVantage.RateLimitPerMinute == 0 {
		c.AlphaVantage.RateLimitPerMinute = 5
	}
	if c.NewsAPI.BaseURL == "" {
		c.NewsAPI.BaseURL = "https://newsapi.org/v2/everything"
	}
	if c.NewsAPI.APIKey == "" {
		c.NewsAPI.APIKey = "mock_newsapi_key"
	}
	if c.NewsAPI.TimeoutSeconds == 0 {
		c.NewsAPI.TimeoutSeconds = 10
	}
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-1.5-flash"
	}
	if c.Gemini.TimeoutSeconds == 0 {
		c.Gemini.TimeoutSeconds = 20
	}
	if c.Gemini.PriceThresholdPct == 0 {
		c.Gemini.PriceThresholdPct = 0.5
	}
	if c.Gemini.MaxHeadlines == 0 {
		c.Gemini.MaxHeadlines = 5
	}
	if c.Langfuse.BaseURL == "" {
		c.Langfuse.BaseURL = "https://cloud.langfuse.com"
	}

	return c, nil
}

func (c *Root) loadFromEnv() {
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		c.APIAddr = v
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.IntervalSeconds = n
		}
	}
	if v := os.Getenv("WORKER_RUN_ONCE"); v != "" {
		c.Worker.RunOnce = parseBool(v)
	}
	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		c.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("ALPHA_VANTAGE_BASE_URL"); v != "" {
		c.AlphaVantage.BaseURL = v
	}
	if v := os.Getenv("NEWSAPI_API_KEY"); v != "" {
		c.NewsAPI.APIKey = v
	}
	if v := os.Getenv("NEWSAPI_BASE_URL"); v != "" {
		c.NewsAPI.BaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_BASE_URL"); v != "" {
		c.Gemini.BaseURL = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv("LLM_PRICE_CHANGE_THRESHOLD_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Gemini.PriceThresholdPct = f
		}
	}
	if v := os.Getenv("LLM_MAX_HEADLINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Gemini.MaxHeadlines = n
		}
	}
	if v := os.Getenv("LANGFUSE_PUBLIC_KEY"); v != "" {
		c.Langfuse.PublicKey = v
	}
	if v := os.Getenv("LANGFUSE_SECRET_KEY"); v != "" {
		c.Langfuse.SecretKey = v
	}
	if v := os.Getenv("LANGFUSE_BASE_URL"); v != "" {
		c.Langfuse.BaseURL = v
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
