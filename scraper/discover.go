package scraper

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/aluiziolira/go-scrape-market/parser"
)

// Discoverer lists the collections to crawl: the known slugs followed by
// any new slugs linked from the home page.
type Discoverer struct {
	fetcher Fetcher
	home    string
	known   []string
	logger  *slog.Logger
}

func NewDiscoverer(fetcher Fetcher, base *url.URL, known []string, logger *slog.Logger) *Discoverer {
	home := *base
	if home.Path == "" {
		home.Path = "/"
	}
	home.RawQuery = ""
	home.Fragment = ""
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{fetcher: fetcher, home: home.String(), known: known, logger: logger}
}

// Discover never fails: when the home page cannot be fetched the known
// slugs are returned unchanged.
func (d *Discoverer) Discover(ctx context.Context) []string {
	out := make([]string, 0, len(d.known))
	seen := make(map[string]struct{}, len(d.known))
	add := func(slug string) {
		if _, ok := seen[slug]; ok {
			return
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	for _, slug := range d.known {
		add(slug)
	}

	doc, err := d.fetcher.Fetch(ctx, d.home)
	if err != nil {
		d.logger.Warn("collection discovery failed, using known collections",
			slog.String("url", d.home),
			slog.Int("known", len(out)),
			slog.Any("error", err),
		)
		return out
	}

	before := len(out)
	for _, slug := range parser.CollectionSlugs(doc) {
		add(slug)
	}
	d.logger.Info("collections discovered",
		slog.Int("known", before),
		slog.Int("new", len(out)-before),
	)
	return out
}
