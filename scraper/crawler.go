package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-market/config"
	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/parser"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoData is returned by Run when no record was extracted at all.
var ErrNoData = errors.New("scraper: no products extracted")

// Crawler walks collection listing pages and extracts product records.
type Crawler struct {
	cfg       *config.Config
	fetcher   Fetcher
	pages     Fetcher
	limiter   Limiter
	extractor *parser.Extractor
	details   *DetailFetcher
	Metrics   *Metrics
	logger    *slog.Logger

	retryCount int64
	pageCount  int64
	skipped    int64
	capReached atomic.Bool

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithFetcher replaces the default colly fetcher.
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) { c.fetcher = f }
}

// WithLimiter replaces the limiter selected by the config.
func WithLimiter(l Limiter) Option {
	return func(c *Crawler) { c.limiter = l }
}

// WithLogger sets the logger used for crawl progress.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// WithMetrics shares a metrics bundle instead of creating a new registry.
func WithMetrics(m *Metrics) Option {
	return func(c *Crawler) { c.Metrics = m }
}

// NewCrawler builds a crawler configured from cfg.
func NewCrawler(cfg *config.Config, opts ...Option) (*Crawler, error) {
	extractor, err := parser.NewExtractor(cfg.BaseURL, cfg.PriceSearchDepth)
	if err != nil {
		return nil, err
	}

	c := &Crawler{
		cfg:          cfg,
		extractor:    extractor,
		logger:       slog.Default(),
		errorsByType: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics()
	}
	if c.fetcher == nil {
		f, err := NewCollyFetcher(cfg, c.Metrics)
		if err != nil {
			return nil, err
		}
		c.fetcher = f
	}
	if c.limiter == nil {
		if c.limiter, err = NewLimiter(cfg); err != nil {
			return nil, err
		}
	}

	policy := PolicyFromConfig(cfg, c.Metrics)
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		atomic.AddInt64(&c.retryCount, 1)
		onRetry(attempt, err)
		c.logger.Debug("retrying request",
			slog.Int("attempt", attempt),
			slog.String("error_type", errorTypeLabel(err)),
			slog.Any("error", err),
		)
	}
	c.pages = &politeFetcher{next: c.fetcher, limiter: c.limiter, policy: policy}

	if cfg.FetchDetails {
		if c.details, err = NewDetailFetcher(c.pages, cfg.DetailCacheSize, c.Metrics, c.logger); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Run crawls every configured collection, or every discovered one when none
// are configured, and applies the status filter. The result is never nil. On
// cancellation the records gathered so far are returned with ctx.Err().
func (c *Crawler) Run(ctx context.Context) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	runID := uuid.NewString()
	logger := c.logger.With(slog.String("run_id", runID))

	collections := c.cfg.Collections
	if len(collections) == 0 {
		collections = NewDiscoverer(c.pages, c.extractor.Base(), c.cfg.KnownCollections, logger).Discover(ctx)
	}
	logger.Info("crawl started",
		slog.Int("collections", len(collections)),
		slog.Int("workers", c.cfg.Workers),
		slog.Int("max_products", c.cfg.MaxProducts),
		slog.String("status_filter", c.cfg.StatusFilter.String()),
	)

	budget := &recordBudget{limit: c.cfg.MaxProducts}
	slots := make([][]models.ProductRecord, len(collections))

	var g errgroup.Group
	g.SetLimit(max(c.cfg.Workers, 1))
	for i, slug := range collections {
		if ctx.Err() != nil || budget.exhausted() {
			break
		}
		g.Go(func() error {
			slots[i] = c.crawlCollection(ctx, logger, slug, budget)
			return nil
		})
	}
	_ = g.Wait()

	var records []models.ProductRecord
	for _, s := range slots {
		records = append(records, s...)
	}
	kept := c.cfg.StatusFilter.Apply(records)
	logger.Info("status filter applied",
		slog.String("filter", c.cfg.StatusFilter.String()),
		slog.Int("kept", len(kept)),
		slog.Int("total", len(records)),
	)

	result := c.result(runID, start, collections, records, kept)
	if err := ctx.Err(); err != nil {
		result.Interrupted = true
		return result, err
	}
	if len(records) == 0 {
		return result, ErrNoData
	}
	return result, nil
}

// crawlCollection walks one collection's pages until a stop condition holds.
// A panic is logged and the records gathered so far are kept.
func (c *Crawler) crawlCollection(ctx context.Context, logger *slog.Logger, slug string, budget *recordBudget) (records []models.ProductRecord) {
	logger = logger.With(slog.String("collection", slug))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("collection crawl panicked", slog.Any("panic", r))
			c.recordFailure(slug, fmt.Errorf("panic: %v", r))
		}
	}()

	for page := 1; page <= c.cfg.MaxPagesPerCollection; page++ {
		if ctx.Err() != nil || budget.exhausted() {
			break
		}

		pageURL := parser.CollectionPageURL(c.extractor.Base(), slug, page)
		doc, err := c.pages.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() == nil {
				c.recordFailure(pageURL, err)
				logger.Warn("listing fetch failed, ending collection",
					slog.Int("page", page),
					slog.String("error_type", errorTypeLabel(err)),
					slog.Any("error", err),
				)
			}
			break
		}
		atomic.AddInt64(&c.pageCount, 1)
		c.Metrics.IncPage(slug)

		frags, strategy := c.extractor.Fragments(doc, slug)
		if len(frags) == 0 {
			logger.Debug("no listing fragments, collection finished", slog.Int("page", page))
			break
		}

		pageRecords := make([]models.ProductRecord, 0, len(frags))
		for _, frag := range frags {
			rec, err := c.extractor.Record(frag, slug)
			if err != nil {
				atomic.AddInt64(&c.skipped, 1)
				c.Metrics.IncSkipped()
				logger.Debug("fragment skipped", slog.Int("page", page), slog.Any("reason", err))
				continue
			}
			pageRecords = append(pageRecords, rec)
		}
		if len(pageRecords) == 0 {
			logger.Info("page yielded no records, ending collection",
				slog.Int("page", page),
				slog.Int("fragments", len(frags)),
			)
			break
		}

		accepted := budget.reserve(len(pageRecords))
		records = append(records, pageRecords[:accepted]...)
		c.Metrics.AddRecords(slug, accepted)
		logger.Info("listing page crawled",
			slog.Int("page", page),
			slog.String("strategy", strategy),
			slog.Int("fragments", len(frags)),
			slog.Int("records", accepted),
		)

		if budget.exhausted() {
			c.capReached.Store(true)
			logger.Info("product cap reached", slog.Int("max_products", c.cfg.MaxProducts))
			break
		}
	}

	if c.details != nil && len(records) > 0 {
		records = c.details.Enrich(ctx, records)
	}
	return records
}

func (c *Crawler) recordFailure(target string, err error) {
	label := errorTypeLabel(err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedURLs = append(c.failedURLs, target)
	c.errorsByType[label]++
}

func (c *Crawler) result(runID string, start time.Time, collections []string, records, kept []models.ProductRecord) *models.CrawlResult {
	c.mu.Lock()
	failed := make([]string, len(c.failedURLs))
	copy(failed, c.failedURLs)
	byType := make(map[string]int, len(c.errorsByType))
	errorCount := 0
	for k, v := range c.errorsByType {
		byType[k] = v
		errorCount += v
	}
	c.mu.Unlock()

	requests := 0
	if counter, ok := c.fetcher.(interface{ Requests() int }); ok {
		requests = counter.Requests()
	}

	return &models.CrawlResult{
		RunID:        runID,
		Products:     kept,
		Collections:  collections,
		StartTime:    start,
		EndTime:      time.Now(),
		Extracted:    len(records),
		Filtered:     len(records) - len(kept),
		ErrorCount:   errorCount,
		FailedURLs:   failed,
		ErrorsByType: byType,
		RetryCount:   int(atomic.LoadInt64(&c.retryCount)),
		RequestCount: requests,
		PageCount:    int(atomic.LoadInt64(&c.pageCount)),
		SkippedCount: int(atomic.LoadInt64(&c.skipped)),
		CapReached:   c.capReached.Load(),
	}
}

// politeFetcher rate limits and retries every request made through next.
type politeFetcher struct {
	next    Fetcher
	limiter Limiter
	policy  RetryPolicy
}

func (p *politeFetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	return Retry(ctx, p.policy, func(ctx context.Context) (*goquery.Document, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return p.next.Fetch(ctx, pageURL)
	})
}

// recordBudget enforces the global product cap across workers. A zero limit
// means unlimited.
type recordBudget struct {
	mu    sync.Mutex
	limit int
	used  int
}

// reserve claims up to n records and returns how many were granted.
func (b *recordBudget) reserve(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 {
		n = min(n, b.limit-b.used)
	}
	b.used += n
	return n
}

func (b *recordBudget) exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit > 0 && b.used >= b.limit
}
