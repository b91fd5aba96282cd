package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DetailFetcher enriches records from their product pages. Lookups are
// cached by URL so a product listed in several collections is fetched once.
type DetailFetcher struct {
	fetcher Fetcher
	cache   *lru.Cache[string, models.DetailFields]
	metrics *Metrics
	logger  *slog.Logger
}

func NewDetailFetcher(fetcher Fetcher, cacheSize int, metrics *Metrics, logger *slog.Logger) (*DetailFetcher, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[string, models.DetailFields](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("detail cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailFetcher{fetcher: fetcher, cache: cache, metrics: metrics, logger: logger}, nil
}

// Fetch returns the detail fields for productURL. It never fails; a page that
// cannot be fetched yields empty fields and is not cached.
func (d *DetailFetcher) Fetch(ctx context.Context, productURL string) models.DetailFields {
	if fields, ok := d.cache.Get(productURL); ok {
		d.metrics.IncDetail("hit")
		return fields
	}

	doc, err := d.fetcher.Fetch(ctx, productURL)
	if err != nil {
		d.metrics.IncDetail("failed")
		d.logger.Debug("detail fetch failed",
			slog.String("url", productURL),
			slog.Any("error", err),
		)
		return models.DetailFields{}
	}

	fields := parser.ParseDetails(doc)
	d.cache.Add(productURL, fields)
	d.metrics.IncDetail("fetched")
	return fields
}

// Enrich returns a copy of records with detail fields attached where any
// were found. It stops early when ctx is cancelled.
func (d *DetailFetcher) Enrich(ctx context.Context, records []models.ProductRecord) []models.ProductRecord {
	out := make([]models.ProductRecord, len(records))
	copy(out, records)
	for i := range out {
		if ctx.Err() != nil {
			break
		}
		if fields := d.Fetch(ctx, out[i].URL); !fields.Empty() {
			out[i] = out[i].WithDetail(fields)
		}
	}
	return out
}
