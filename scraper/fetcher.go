package scraper

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-market/config"
	"github.com/gocolly/colly/v2"
)

// Fetcher retrieves one page and parses it into a document.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*goquery.Document, error)
}

const (
	bodyKey        = "body"
	contentTypeKey = "content_type"
	statusKey      = "status"
)

// CollyFetcher issues synchronous GET requests through a colly collector. It
// is safe for concurrent use.
type CollyFetcher struct {
	collector *colly.Collector
	metrics   *Metrics
	userAgent string
	language  string

	requests int64
}

// NewCollyFetcher builds a fetcher restricted to the base URL's host.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.DetectCharset = false
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(bodyKey, r.Body)
		if r.Headers != nil {
			r.Ctx.Put(contentTypeKey, r.Headers.Get("Content-Type"))
		}
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(statusKey, r.StatusCode)
		}
	})

	language := cfg.AcceptLanguage
	if language == "" {
		language = config.DefaultConfig().AcceptLanguage
	}
	return &CollyFetcher{
		collector: collector,
		metrics:   metrics,
		userAgent: cfg.UserAgent,
		language:  language,
	}, nil
}

// WithTransport replaces the HTTP transport used by the collector.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Requests returns the number of HTTP requests issued so far.
func (f *CollyFetcher) Requests() int {
	return int(atomic.LoadInt64(&f.requests))
}

// Fetch retrieves pageURL. If ctx is cancelled first, Fetch returns ctx.Err()
// without waiting for the in-flight request, which is bounded by the request
// timeout.
func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type outcome struct {
		doc *goquery.Document
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		doc, err := f.fetch(pageURL)
		done <- outcome{doc: doc, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.doc, out.err
	}
}

func (f *CollyFetcher) fetch(pageURL string) (*goquery.Document, error) {
	atomic.AddInt64(&f.requests, 1)
	f.metrics.IncRequest("started")

	rctx := colly.NewContext()
	start := time.Now()
	err := f.collector.Request(http.MethodGet, pageURL, nil, rctx, f.headers())
	f.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		status, _ := rctx.GetAny(statusKey).(int)
		fe := classifyError(pageURL, status, err)
		f.metrics.IncError(errorTypeLabel(fe))
		return nil, fe
	}

	body, _ := rctx.GetAny(bodyKey).([]byte)
	contentType, _ := rctx.GetAny(contentTypeKey).(string)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(decodeBody(body, contentType)))
	if err != nil {
		fe := &FetchError{Kind: KindParse, URL: pageURL, Err: err}
		f.metrics.IncError(errorTypeLabel(fe))
		return nil, fe
	}
	f.metrics.IncRequest("succeeded")
	return doc, nil
}

func (f *CollyFetcher) headers() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", f.userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Language", f.language)
	h.Set("Accept-Encoding", "gzip")
	return h
}
