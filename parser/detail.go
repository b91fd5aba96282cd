package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-market/models"
)

// DescriptionLimit caps the stored description, in runes.
const DescriptionLimit = 500

var (
	detailTitleClassRe = regexp.MustCompile(`(?i)product.*title|title`)
	descriptionClassRe = regexp.MustCompile(`(?i)description|product.*desc`)
	skuLabelRe         = regexp.MustCompile(`SKU|商品コード`)
)

// ParseDetails extracts detail fields from a product page. Every field is
// attempted independently; a malformed structured-data block leaves the
// heuristic fields intact.
func ParseDetails(doc *goquery.Document) models.DetailFields {
	var d models.DetailFields

	if el := firstWithClass(doc.Selection, "h1, h2", detailTitleClassRe); el.Length() > 0 {
		d.DetailedTitle = CleanText(el.Text())
	}
	if el := firstWithClass(doc.Selection, "span, div", priceClassRe); el.Length() > 0 {
		d.DetailedPrice = ParsePrice(el.Text())
	}
	if el := firstWithClass(doc.Selection, "div, section", descriptionClassRe); el.Length() > 0 {
		d.Description = truncateRunes(CleanText(el.Text()), DescriptionLimit)
	}
	for _, root := range doc.Nodes {
		if n := findTextNode(root, skuLabelRe.MatchString); n != nil {
			if n.Parent != nil {
				d.SKU = CleanText(nodeText(n.Parent))
			} else {
				d.SKU = CleanText(n.Data)
			}
			break
		}
	}

	if offer, ok := structuredOffer(doc); ok {
		d.Availability = offer.Availability
		d.PriceCurrency = offer.PriceCurrency
		if d.PriceCurrency == "" {
			d.PriceCurrency = "JPY"
		}
	}
	return d
}

func firstWithClass(root *goquery.Selection, elements string, re *regexp.Regexp) *goquery.Selection {
	return root.Find(elements).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return classMatches(s, re)
	}).First()
}

type ldOffer struct {
	Availability  string `json:"availability"`
	PriceCurrency string `json:"priceCurrency"`
}

// structuredOffer returns the first offer found in the page's JSON-LD blocks.
// Blocks that do not decode are ignored.
func structuredOffer(doc *goquery.Document) (ldOffer, bool) {
	var (
		offer ldOffer
		found bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		offer, found = offerFromJSONLD([]byte(strings.TrimSpace(s.Text())))
		return !found
	})
	return offer, found
}

func offerFromJSONLD(data []byte) (ldOffer, bool) {
	if len(data) == 0 {
		return ldOffer{}, false
	}

	var entities []map[string]json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &entities); err != nil {
			return ldOffer{}, false
		}
	} else {
		var entity map[string]json.RawMessage
		if err := json.Unmarshal(data, &entity); err != nil {
			return ldOffer{}, false
		}
		entities = append(entities, entity)
	}

	for _, entity := range entities {
		raw, ok := entity["offers"]
		if !ok || len(raw) == 0 {
			continue
		}
		if offer, ok := decodeOffer(raw); ok {
			return offer, true
		}
	}
	return ldOffer{}, false
}

// decodeOffer accepts an offer object or a list of them, using the first.
func decodeOffer(raw json.RawMessage) (ldOffer, bool) {
	var offer ldOffer
	if raw[0] == '[' {
		var offers []ldOffer
		if err := json.Unmarshal(raw, &offers); err != nil || len(offers) == 0 {
			return ldOffer{}, false
		}
		return offers[0], true
	}
	if err := json.Unmarshal(raw, &offer); err != nil {
		return ldOffer{}, false
	}
	return offer, true
}
