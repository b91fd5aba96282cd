// Package parser holds the HTML heuristics that turn catalog markup into
// product records. Nothing in this package performs network I/O.
package parser

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-market/models"
	"golang.org/x/text/width"
)

// UnknownTitle is stored when no title node matches a fragment.
const UnknownTitle = "unknown"

var (
	digitRunRe      = regexp.MustCompile(`[0-9]+`)
	currencyMarkers = []string{"¥", "￥", "円", "$", "£", "€"}
)

// ValidateProduct ensures a record satisfies the record invariants.
func ValidateProduct(p *models.ProductRecord) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product missing url")
	}
	u, err := url.Parse(p.URL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("product url %q is not absolute", p.URL)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("product missing id for %s", p.URL)
	}
	if _, err := models.ParseStockStatus(string(p.StockStatus)); err != nil {
		return fmt.Errorf("product %s: %w", p.ID, err)
	}
	if p.Price != nil && *p.Price < 0 {
		return fmt.Errorf("product %s has negative price", p.ID)
	}
	return nil
}

// CleanText decodes HTML entities and collapses every run of whitespace,
// including full-width and non-breaking spaces, into one ASCII space.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

// ParsePrice extracts the first run of digits from text after dropping
// thousands separators. Full-width digits are folded first. It returns nil
// when the text holds no digits.
func ParsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	text = width.Narrow.String(text)
	text = strings.ReplaceAll(text, ",", "")
	match := digitRunRe.FindString(text)
	if match == "" {
		return nil
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &value
}

// HasCurrencyMarker reports whether text contains a currency glyph.
func HasCurrencyMarker(text string) bool {
	for _, marker := range currencyMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// ProductID derives a record identity from the trailing path segment of a
// product URL. Unparseable URLs are returned unchanged.
func ProductID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	p := strings.TrimRight(u.Path, "/")
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		p = p[idx+1:]
	}
	if p == "" {
		return rawURL
	}
	return p
}

// ErrUnresolvableLink is returned when an href cannot be made absolute.
var ErrUnresolvableLink = errors.New("parser: link cannot be resolved")

// ResolveURL resolves href against base and drops any fragment.
func ResolveURL(base *url.URL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", ErrUnresolvableLink
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvableLink, err)
	}
	abs := base.ResolveReference(ref)
	if abs.Host == "" || (abs.Scheme != "http" && abs.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrUnresolvableLink, href)
	}
	abs.Fragment = ""
	return abs.String(), nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
