package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
)

// Floors applied by Normalize.
const (
	MinDelay        = 100 * time.Millisecond
	MinTimeout      = 5 * time.Second
	MaxPageCeiling  = 50
	DefaultMaxDepth = 5
)

// Rate limiting modes.
const (
	RateModeFixed  = "fixed"
	RateModeWindow = "window"
	RateModeToken  = "token"
)

// Config holds crawl configuration. It is built once at startup and read-only
// for the duration of a crawl.
type Config struct {
	BaseURL               string
	Collections           []string // empty means discover all
	KnownCollections      []string
	StatusFilter          models.StatusFilter
	MaxProducts           int // 0 means unlimited
	MaxPagesPerCollection int
	FetchDetails          bool
	DetailCacheSize       int
	PriceSearchDepth      int
	Workers               int

	Delay          time.Duration
	RateMode       string
	WindowRequests int
	Window         time.Duration
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration

	UserAgent        string
	AcceptLanguage   string
	RespectRobotsTxt bool

	OutputFile         string
	OutputFormat       string // csv, json, dual, sqlite or postgres
	PostgresDSN        string
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
	MetricsAddr        string
	Verbose            bool
}

// DefaultConfig returns conservative defaults for the default target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:               "https://chiikawamarket.jp",
		KnownCollections:      DefaultCollections(),
		MaxPagesPerCollection: MaxPageCeiling,
		DetailCacheSize:       1024,
		PriceSearchDepth:      DefaultMaxDepth,
		Workers:               1,
		Delay:                 time.Second,
		RateMode:              RateModeFixed,
		WindowRequests:        10,
		Window:                10 * time.Second,
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		RetryDelay:            2 * time.Second,
		UserAgent:             "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		AcceptLanguage:        "ja,en-US;q=0.7,en;q=0.3",
		OutputFile:            "output/products.csv",
		OutputFormat:          "csv",
		PipelineBufferSize:    512,
		BatchSize:             64,
		DedupeMaxSize:         100000,
	}
}

// Preset returns a named configuration profile: fast, detailed or safe.
func Preset(name string) (*Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
	case "fast":
		cfg.Delay = 500 * time.Millisecond
		cfg.MaxProducts = 100
		cfg.FetchDetails = false
		cfg.MaxRetries = 1
	case "detailed":
		cfg.Delay = 2 * time.Second
		cfg.FetchDetails = true
		cfg.MaxRetries = 3
	case "safe":
		cfg.Delay = 3 * time.Second
		cfg.MaxProducts = 50
		cfg.FetchDetails = false
		cfg.MaxRetries = 5
		cfg.RetryDelay = 5 * time.Second
	default:
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	return cfg, nil
}

// Normalize clamps values into the ranges the crawler relies on.
func (c *Config) Normalize() {
	if c.Delay < MinDelay {
		c.Delay = MinDelay
	}
	if c.Timeout < MinTimeout {
		c.Timeout = MinTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxProducts < 1 {
		c.MaxProducts = 0
	}
	if c.MaxPagesPerCollection < 1 || c.MaxPagesPerCollection > MaxPageCeiling {
		c.MaxPagesPerCollection = MaxPageCeiling
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.PriceSearchDepth < 0 {
		c.PriceSearchDepth = 0
	}
	if c.WindowRequests < 1 {
		c.WindowRequests = 1
	}
	if c.Window <= 0 {
		c.Window = time.Second
	}
	if c.RateMode == "" {
		c.RateMode = RateModeFixed
	}
	c.RateMode = strings.ToLower(c.RateMode)
	c.OutputFormat = strings.ToLower(c.OutputFormat)
	c.Collections = normalizeSlugs(c.Collections)
	c.KnownCollections = normalizeSlugs(c.KnownCollections)
}

// Validate ensures all configuration values are coherent. Call Normalize first.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Delay < MinDelay {
		return fmt.Errorf("delay must be at least %s", MinDelay)
	}
	if c.Timeout < MinTimeout {
		return fmt.Errorf("timeout must be at least %s", MinTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.MaxProducts < 0 {
		return fmt.Errorf("max products cannot be negative")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	switch c.RateMode {
	case RateModeFixed, RateModeWindow, RateModeToken:
	default:
		return fmt.Errorf("rate mode must be fixed, window, or token")
	}
	if len(c.Collections) == 0 && len(c.KnownCollections) == 0 {
		return fmt.Errorf("known collections cannot be empty when discovering")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres output requires a DSN")
		}
	default:
		return fmt.Errorf("output format must be csv, json, dual, sqlite, or postgres")
	}
	if c.OutputFile == "" && c.OutputFormat != "postgres" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// ParseCollections splits a comma-separated collection list. "all" or an
// empty string selects discovery.
func ParseCollections(spec string) []string {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, "all") {
		return nil
	}
	return normalizeSlugs(strings.Split(spec, ","))
}

func normalizeSlugs(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.Trim(strings.TrimSpace(s), "/")
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
