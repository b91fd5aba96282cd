package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-market/config"
	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/pipeline"
	"github.com/aluiziolira/go-scrape-market/scraper"
)

const (
	exitOK     = 0
	exitError  = 1
	exitNoData = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := buildConfig(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitError
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	slog.Info("starting crawl",
		slog.String("base_url", cfg.BaseURL),
		slog.Any("collections", cfg.Collections),
		slog.String("status", cfg.StatusFilter.String()),
		slog.Int("max_products", cfg.MaxProducts),
		slog.Int("workers", cfg.Workers),
		slog.Bool("details", cfg.FetchDetails),
	)

	crawler, err := scraper.NewCrawler(cfg, scraper.WithLogger(logger))
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing in-flight requests")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newRouter(crawler.Metrics.Registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer shutdownServer(metricsServer)
	}

	startTime := time.Now()
	result, err := crawler.Run(ctx)
	switch {
	case errors.Is(err, scraper.ErrNoData):
		slog.Error("crawl finished without data", slog.Int("errors", result.ErrorCount))
		printSummary(os.Stdout, result, 0, time.Since(startTime), "", nil)
		return exitNoData
	case err != nil && !result.Interrupted:
		slog.Error("crawl failed", slog.Any("error", err))
		return exitError
	case err != nil:
		slog.Warn("crawl interrupted, writing salvaged records", slog.Int("records", len(result.Products)))
	}

	// Salvaged records are still written after a signal.
	writeCtx := context.WithoutCancel(ctx)
	processed, metrics, err := writeResult(writeCtx, cfg, result)
	if err != nil {
		slog.Error("writing output", slog.Any("error", err))
		return exitError
	}

	printSummary(os.Stdout, result, processed, time.Since(startTime), outputTarget(cfg), metrics)
	if result.Interrupted {
		return exitError
	}
	return exitOK
}

func writeResult(ctx context.Context, cfg *config.Config, result *models.CrawlResult) (int, map[string]interface{}, error) {
	writer, err := createWriter(ctx, cfg, result.RunID)
	if err != nil {
		return 0, nil, fmt.Errorf("create writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(1)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	if err := p.Process(result.Products...); err != nil {
		_ = p.Close()
		return 0, nil, fmt.Errorf("process records: %w", err)
	}
	if err := p.Close(); err != nil {
		return 0, nil, fmt.Errorf("pipeline shutdown: %w", err)
	}
	if p.Processed() > 0 {
		if err := writer.Validate(); err != nil {
			return 0, nil, fmt.Errorf("output validation: %w", err)
		}
	}
	return p.Processed(), p.GetMetrics(), nil
}

func createWriter(ctx context.Context, cfg *config.Config, runID string) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewJSONWriter(cfg.OutputFile)
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile)
	case "dual":
		jsonFilename := strings.TrimSuffix(cfg.OutputFile, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(cfg.OutputFile, jsonFilename)
	case "sqlite":
		return pipeline.NewSQLiteWriter(ctx, cfg.OutputFile, runID)
	case "postgres":
		return pipeline.NewPostgresWriter(ctx, cfg.PostgresDSN, runID)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func outputTarget(cfg *config.Config) string {
	if cfg.OutputFormat == "postgres" {
		return "postgres"
	}
	return cfg.OutputFile
}

func shutdownServer(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(w io.Writer, result *models.CrawlResult, processed int, duration time.Duration, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n" + separator)
	switch {
	case result.Interrupted:
		fmt.Fprintln(w, "Crawl interrupted")
	case result.Extracted == 0:
		fmt.Fprintln(w, "Crawl finished without data")
	default:
		fmt.Fprintln(w, "Crawl complete")
	}

	fmt.Fprintf(w, "  Run ID:        %s\n", result.RunID)
	fmt.Fprintf(w, "  Collections:   %d\n", len(result.Collections))
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Extracted:     %d\n", result.Extracted)
	fmt.Fprintf(w, "  Filtered out:  %d\n", result.Filtered)
	fmt.Fprintf(w, "  After filter:  %d\n", len(result.Products))
	fmt.Fprintf(w, "  Written:       %d\n", processed)
	if result.CapReached {
		fmt.Fprintln(w, "  Product cap reached")
	}

	byStatus := result.CountByStatus()
	if len(byStatus) > 0 {
		fmt.Fprintln(w, "  By status:")
		for _, status := range models.AllStockStatuses {
			if n := byStatus[status]; n > 0 {
				fmt.Fprintf(w, "    %-12s %d\n", status, n)
			}
		}
	}
	byCollection := result.CountByCollection()
	if len(byCollection) > 0 {
		fmt.Fprintln(w, "  By collection:")
		for _, slug := range sortedKeys(byCollection) {
			fmt.Fprintf(w, "    %-24s %d\n", slug, byCollection[slug])
		}
	}

	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Fprintf(w, "  Requests:      %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Success rate:  %.2f%%\n", successRate)
	fmt.Fprintf(w, "  Errors:        %d\n", result.ErrorCount)
	fmt.Fprintf(w, "  Retries:       %d\n", result.RetryCount)
	fmt.Fprintf(w, "  Skipped:       %d\n", result.SkippedCount)
	fmt.Fprintf(w, "  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration.Round(time.Millisecond))
	if outputFile != "" {
		fmt.Fprintf(w, "  Output:        %s\n", outputFile)
	}
	fmt.Fprintln(w, separator)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
