// Package models defines data structures for the scraper.
package models

import (
	"fmt"
	"strings"
	"time"
)

// StockStatus is the availability class assigned to a listing.
type StockStatus string

const (
	StockInStock  StockStatus = "in_stock"
	StockSoldOut  StockStatus = "sold_out"
	StockNewItems StockStatus = "new_items"
	StockPreOrder StockStatus = "pre_order"
)

// AllStockStatuses lists every status in classification priority order.
var AllStockStatuses = []StockStatus{StockSoldOut, StockNewItems, StockPreOrder, StockInStock}

// ParseStockStatus converts a status name into a StockStatus.
func ParseStockStatus(s string) (StockStatus, error) {
	switch StockStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StockInStock:
		return StockInStock, nil
	case StockSoldOut:
		return StockSoldOut, nil
	case StockNewItems:
		return StockNewItems, nil
	case StockPreOrder:
		return StockPreOrder, nil
	default:
		return "", fmt.Errorf("unknown stock status %q", s)
	}
}

// DetailFields holds the fields only available on a product's own page.
type DetailFields struct {
	DetailedTitle string   `json:"detailed_title,omitempty"`
	DetailedPrice *float64 `json:"detailed_price,omitempty"`
	Description   string   `json:"description,omitempty"`
	SKU           string   `json:"sku,omitempty"`
	Availability  string   `json:"availability,omitempty"`
	PriceCurrency string   `json:"price_currency,omitempty"`
}

// Empty reports whether no detail field was captured.
func (d DetailFields) Empty() bool {
	return d.DetailedTitle == "" && d.DetailedPrice == nil && d.Description == "" &&
		d.SKU == "" && d.Availability == "" && d.PriceCurrency == ""
}

// ProductRecord is one crawled listing. Values are treated as immutable;
// use WithDetail to derive an enriched copy.
type ProductRecord struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	Price       *float64      `json:"price,omitempty"`
	Collection  string        `json:"collection"`
	StockStatus StockStatus   `json:"stock_status"`
	ExtractedAt time.Time     `json:"extracted_at"`
	Detail      *DetailFields `json:"detail,omitempty"`
}

// WithDetail returns a copy of r carrying d.
func (r ProductRecord) WithDetail(d DetailFields) ProductRecord {
	r.Detail = &d
	return r
}

// StatusFilter is an allow-list of stock statuses. An empty filter allows everything.
type StatusFilter map[StockStatus]struct{}

// ParseStatusFilter parses a comma-separated list of statuses. The aliases
// "all" (no filtering) and "available" (in_stock + new_items) are accepted.
func ParseStatusFilter(spec string) (StatusFilter, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, "all") {
		return nil, nil
	}

	filter := make(StatusFilter)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.EqualFold(part, "available") {
			filter[StockInStock] = struct{}{}
			filter[StockNewItems] = struct{}{}
			continue
		}
		status, err := ParseStockStatus(part)
		if err != nil {
			return nil, err
		}
		filter[status] = struct{}{}
	}
	if len(filter) == 0 {
		return nil, nil
	}
	return filter, nil
}

// Allows reports whether status passes the filter.
func (f StatusFilter) Allows(status StockStatus) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[status]
	return ok
}

// Apply returns the records allowed by f, preserving order.
func (f StatusFilter) Apply(records []ProductRecord) []ProductRecord {
	if len(f) == 0 {
		return records
	}
	out := make([]ProductRecord, 0, len(records))
	for _, r := range records {
		if f.Allows(r.StockStatus) {
			out = append(out, r)
		}
	}
	return out
}

// String renders the filter in priority order.
func (f StatusFilter) String() string {
	if len(f) == 0 {
		return "all"
	}
	parts := make([]string, 0, len(f))
	for _, s := range AllStockStatuses {
		if _, ok := f[s]; ok {
			parts = append(parts, string(s))
		}
	}
	return strings.Join(parts, ",")
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	RunID        string
	Products     []ProductRecord
	Collections  []string
	StartTime    time.Time
	EndTime      time.Time
	Extracted    int
	Filtered     int
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	PageCount    int
	SkippedCount int
	CapReached   bool
	Interrupted  bool
}

// CountByStatus tallies the result's products per stock status.
func (r *CrawlResult) CountByStatus() map[StockStatus]int {
	out := make(map[StockStatus]int)
	for _, p := range r.Products {
		out[p.StockStatus]++
	}
	return out
}

// CountByCollection tallies the result's products per collection.
func (r *CrawlResult) CountByCollection() map[string]int {
	out := make(map[string]int)
	for _, p := range r.Products {
		out[p.Collection]++
	}
	return out
}
