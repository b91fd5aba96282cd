package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aluiziolira/go-scrape-market/config"
	"github.com/aluiziolira/go-scrape-market/models"
)

// buildConfig resolves configuration in order: preset, SCRAPER_* environment,
// then explicitly set flags.
func buildConfig(args []string) (*config.Config, error) {
	defaults := config.DefaultConfig()

	fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	presetName := fs.String("preset", "", "Configuration preset: fast, detailed, or safe")
	collections := fs.String("collections", "", "Comma-separated collection slugs, or \"all\" to discover")
	collectionsFile := fs.String("collections-file", "", "YAML file listing known collections")
	status := fs.String("status", "all", "Stock statuses to keep: all, available, or a comma-separated list")
	maxProducts := fs.Int("max-products", defaults.MaxProducts, "Global product cap (0 = unlimited)")
	maxPages := fs.Int("max-pages", defaults.MaxPagesPerCollection, "Page ceiling per collection")
	delay := fs.Duration("delay", defaults.Delay, "Delay between requests")
	timeout := fs.Duration("timeout", defaults.Timeout, "Per-request timeout")
	retries := fs.Int("retries", defaults.MaxRetries, "Maximum retry attempts per request")
	retryDelay := fs.Duration("retry-delay", defaults.RetryDelay, "Base retry delay, multiplied by the attempt number")
	workers := fs.Int("workers", defaults.Workers, "Collections crawled concurrently")
	rateMode := fs.String("rate-mode", defaults.RateMode, "Rate limiting: fixed, window, or token")
	windowRequests := fs.Int("window-requests", defaults.WindowRequests, "Requests allowed per window (window/token modes)")
	window := fs.Duration("window", defaults.Window, "Rate limiting window")
	respectRobots := fs.Bool("respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	details := fs.Bool("details", defaults.FetchDetails, "Fetch each product page for detail fields")
	format := fs.String("format", defaults.OutputFormat, "Output format: csv, json, dual, sqlite, or postgres")
	output := fs.String("output", defaults.OutputFile, "Output file path")
	pgDSN := fs.String("pg-dsn", "", "Postgres connection string for -format postgres")
	metricsAddr := fs.String("metrics-addr", "", "Metrics and health listen address (e.g. :9090)")
	verbose := fs.Bool("v", false, "Enable verbose logging")
	baseURL := fs.String("base-url", defaults.BaseURL, "Base URL of the store")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	name := *presetName
	if !set["preset"] {
		if value, ok := config.EnvString("SCRAPER_PRESET"); ok {
			name = value
		}
	}
	cfg, err := config.Preset(name)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	statusSpec := ""
	if value, ok := config.EnvString("SCRAPER_STATUS"); ok {
		statusSpec = value
	}
	if set["status"] {
		statusSpec = *status
	}
	if statusSpec != "" {
		filter, err := models.ParseStatusFilter(statusSpec)
		if err != nil {
			return nil, err
		}
		cfg.StatusFilter = filter
	}

	if set["collections"] {
		cfg.Collections = config.ParseCollections(*collections)
	}
	if set["collections-file"] {
		known, err := config.LoadCollections(*collectionsFile)
		if err != nil {
			return nil, err
		}
		cfg.KnownCollections = known
	}
	if set["max-products"] {
		cfg.MaxProducts = *maxProducts
	}
	if set["max-pages"] {
		cfg.MaxPagesPerCollection = *maxPages
	}
	if set["delay"] {
		cfg.Delay = *delay
	}
	if set["timeout"] {
		cfg.Timeout = *timeout
	}
	if set["retries"] {
		cfg.MaxRetries = *retries
	}
	if set["retry-delay"] {
		cfg.RetryDelay = *retryDelay
	}
	if set["workers"] {
		cfg.Workers = *workers
	}
	if set["rate-mode"] {
		cfg.RateMode = *rateMode
	}
	if set["window-requests"] {
		cfg.WindowRequests = *windowRequests
	}
	if set["window"] {
		cfg.Window = *window
	}
	if set["respect-robots"] {
		cfg.RespectRobotsTxt = *respectRobots
	}
	if set["details"] {
		cfg.FetchDetails = *details
	}
	if set["format"] {
		cfg.OutputFormat = *format
	}
	if set["output"] {
		cfg.OutputFile = *output
	}
	if set["pg-dsn"] {
		cfg.PostgresDSN = *pgDSN
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = *metricsAddr
	}
	if set["v"] {
		cfg.Verbose = *verbose
	}
	if set["base-url"] {
		cfg.BaseURL = *baseURL
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	if value, ok := config.EnvString("SCRAPER_BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok := config.EnvString("SCRAPER_COLLECTIONS"); ok {
		cfg.Collections = config.ParseCollections(value)
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("SCRAPER_FORMAT"); ok {
		cfg.OutputFormat = value
	}
	if value, ok := config.EnvString("SCRAPER_PG_DSN"); ok {
		cfg.PostgresDSN = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok := config.EnvString("SCRAPER_RATE_MODE"); ok {
		cfg.RateMode = value
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SCRAPER_MAX_PRODUCTS", &cfg.MaxProducts},
		{"SCRAPER_MAX_PAGES", &cfg.MaxPagesPerCollection},
		{"SCRAPER_RETRIES", &cfg.MaxRetries},
		{"SCRAPER_WORKERS", &cfg.Workers},
	}
	for _, e := range ints {
		value, ok, err := config.EnvInt(e.key)
		if err != nil {
			return fmt.Errorf("invalid environment: %w", err)
		}
		if ok {
			*e.dst = value
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SCRAPER_DELAY", &cfg.Delay},
		{"SCRAPER_TIMEOUT", &cfg.Timeout},
		{"SCRAPER_RETRY_DELAY", &cfg.RetryDelay},
	}
	for _, e := range durations {
		value, ok, err := config.EnvDuration(e.key)
		if err != nil {
			return fmt.Errorf("invalid environment: %w", err)
		}
		if ok {
			*e.dst = value
		}
	}

	if value, ok, err := config.EnvBool("SCRAPER_DETAILS"); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	} else if ok {
		cfg.FetchDetails = value
	}
	if value, ok, err := config.EnvBool("SCRAPER_VERBOSE"); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	} else if ok {
		cfg.Verbose = value
	}
	return nil
}
