package parser

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-market/models"
)

// ErrExtractionSkip marks a fragment that yields no usable record. It is a
// filtering outcome, not a failure.
var ErrExtractionSkip = errors.New("parser: fragment skipped")

// Extractor turns listing fragments into product records.
type Extractor struct {
	base             *url.URL
	priceSearchDepth int
	now              func() time.Time
}

// NewExtractor builds an extractor resolving links against baseURL.
// priceSearchDepth bounds the ancestor walk used to find a price for bare
// product links.
func NewExtractor(baseURL string, priceSearchDepth int) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if priceSearchDepth < 0 {
		priceSearchDepth = 0
	}
	return &Extractor{base: base, priceSearchDepth: priceSearchDepth, now: time.Now}, nil
}

// Base returns the origin links are resolved against.
func (e *Extractor) Base() *url.URL {
	u := *e.base
	return &u
}

// Fragments locates candidate product fragments using the first strategy
// that finds any. The strategy name is returned for logging.
func (e *Extractor) Fragments(doc *goquery.Document, collection string) ([]*goquery.Selection, string) {
	for _, strategy := range FragmentStrategies() {
		if frags := strategy.Find(doc.Selection, collection); len(frags) > 0 {
			return frags, strategy.Name
		}
	}
	return nil, ""
}

// Record extracts a product record from one fragment. Fragments without a
// resolvable product link return an error wrapping ErrExtractionSkip.
func (e *Extractor) Record(frag *goquery.Selection, collection string) (models.ProductRecord, error) {
	link := productLink(frag)
	if link == nil {
		return models.ProductRecord{}, fmt.Errorf("%w: no product link", ErrExtractionSkip)
	}
	href, _ := link.Attr("href")
	productURL, err := ResolveURL(e.base, href)
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("%w: %v", ErrExtractionSkip, err)
	}

	return models.ProductRecord{
		ID:          ProductID(productURL),
		Title:       e.title(frag, link),
		URL:         productURL,
		Price:       e.price(frag, link),
		Collection:  collection,
		StockStatus: ClassifyStock(frag.Text()),
		ExtractedAt: e.now(),
	}, nil
}

func productLink(frag *goquery.Selection) *goquery.Selection {
	if isProductAnchor(frag, productPathRe) {
		return frag.First()
	}
	link := frag.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return isProductAnchor(a, productPathRe)
	}).First()
	if link.Length() == 0 {
		return nil
	}
	return link
}

func (e *Extractor) title(frag, link *goquery.Selection) string {
	for _, match := range titleMatchers {
		if title := match(frag); title != "" {
			return title
		}
	}
	if title := CleanText(link.Text()); title != "" {
		return title
	}
	for _, attr := range []string{"title", "aria-label"} {
		if v, ok := link.Attr(attr); ok {
			if title := CleanText(v); title != "" {
				return title
			}
		}
	}
	return UnknownTitle
}

func (e *Extractor) price(frag, link *goquery.Selection) *float64 {
	if el := firstPriceClass(frag); el.Length() > 0 {
		return ParsePrice(el.Text())
	}
	if text, ok := currencyTextParent(frag); ok {
		return ParsePrice(text)
	}
	// A bare product link carries no price of its own; look at its
	// surroundings, nearest ancestor first.
	if frag.Is("a") {
		if anc, ok := SearchAncestors(link, e.priceSearchDepth, func(s *goquery.Selection) bool {
			text, found := currencyTextParent(s)
			return found && ParsePrice(text) != nil
		}); ok {
			text, _ := currencyTextParent(anc)
			return ParsePrice(text)
		}
	}
	return nil
}
