package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	cardClassRe    = regexp.MustCompile(`(?i)card`)
	titleClassRe   = regexp.MustCompile(`(?i)title|name|product|heading`)
	priceClassRe   = regexp.MustCompile(`(?i)price|cost`)
	productPathRe  = regexp.MustCompile(`/products/[^/?#]+`)
	headingElement = "h1, h2, h3, h4, h5, h6"
)

func collectionProductRe(collection string) *regexp.Regexp {
	return regexp.MustCompile(`/collections/` + regexp.QuoteMeta(collection) + `/products/[^/?#]+`)
}

// FragmentStrategy locates candidate product fragments on a listing page.
type FragmentStrategy struct {
	Name string
	Find func(root *goquery.Selection, collection string) []*goquery.Selection
}

// FragmentStrategies returns the discovery tiers in priority order.
func FragmentStrategies() []FragmentStrategy {
	return []FragmentStrategy{
		{Name: "card", Find: findCards},
		{Name: "collection_link", Find: func(root *goquery.Selection, collection string) []*goquery.Selection {
			return findProductAnchors(root, collectionProductRe(collection))
		}},
		{Name: "product_link", Find: func(root *goquery.Selection, _ string) []*goquery.Selection {
			return findProductAnchors(root, productPathRe)
		}},
	}
}

func classMatches(s *goquery.Selection, re *regexp.Regexp) bool {
	class, ok := s.Attr("class")
	return ok && re.MatchString(class)
}

func isProductAnchor(s *goquery.Selection, re *regexp.Regexp) bool {
	if goquery.NodeName(s) != "a" {
		return false
	}
	href, ok := s.Attr("href")
	return ok && re.MatchString(href)
}

func distinctProductLinks(s *goquery.Selection) int {
	seen := make(map[string]struct{})
	collect := func(_ int, a *goquery.Selection) {
		if isProductAnchor(a, productPathRe) {
			href, _ := a.Attr("href")
			seen[strings.TrimSpace(href)] = struct{}{}
		}
	}
	s.Each(collect)
	s.Find("a[href]").Each(collect)
	return len(seen)
}

// findCards returns the outermost card-classed elements that cover at most
// one product. A card wrapping several products is a container; its inner
// cards are used instead, or the container itself when it has none.
func findCards(root *goquery.Selection, _ string) []*goquery.Selection {
	var out []*goquery.Selection
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Children().Each(func(_ int, child *goquery.Selection) {
			if !classMatches(child, cardClassRe) {
				walk(child)
				return
			}
			if distinctProductLinks(child) > 1 {
				before := len(out)
				walk(child)
				if len(out) > before {
					return
				}
			}
			out = append(out, child)
		})
	}
	walk(root)
	return out
}

// findProductAnchors keeps the first anchor for each distinct href.
func findProductAnchors(root *goquery.Selection, re *regexp.Regexp) []*goquery.Selection {
	var out []*goquery.Selection
	seen := make(map[string]struct{})
	root.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if !isProductAnchor(a, re) {
			return
		}
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		out = append(out, a)
	})
	return out
}

// titleMatchers are tried in order against a fragment.
var titleMatchers = []func(frag *goquery.Selection) string{
	headingText,
	innermostClassText(isTitleClass),
}

func headingText(frag *goquery.Selection) string {
	var title string
	frag.Find(headingElement).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		title = CleanText(h.Text())
		return title == ""
	})
	return title
}

// isTitleClass matches title-like classes. Price elements such as
// "product-price" are not titles even though "product" matches.
func isTitleClass(s *goquery.Selection) bool {
	return classMatches(s, titleClassRe) && !classMatches(s, priceClassRe)
}

// innermostClassText returns the text of the first element accepted by match
// that has no accepted descendant of its own, so wrapper elements like
// "product-card" do not swallow the whole fragment.
func innermostClassText(match func(*goquery.Selection) bool) func(*goquery.Selection) string {
	return func(frag *goquery.Selection) string {
		var text string
		frag.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !match(s) {
				return true
			}
			if s.Find("[class]").FilterFunction(func(_ int, d *goquery.Selection) bool {
				return match(d)
			}).Length() > 0 {
				return true
			}
			text = CleanText(s.Text())
			return text == ""
		})
		return text
	}
}

func firstPriceClass(frag *goquery.Selection) *goquery.Selection {
	return frag.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return classMatches(s, priceClassRe)
	}).First()
}

// currencyTextParent finds the first text node under frag holding a currency
// marker and returns its parent element's text.
func currencyTextParent(frag *goquery.Selection) (string, bool) {
	for _, root := range frag.Nodes {
		if n := findTextNode(root, HasCurrencyMarker); n != nil {
			if n.Parent != nil {
				return nodeText(n.Parent), true
			}
			return n.Data, true
		}
	}
	return "", false
}

func findTextNode(n *html.Node, match func(string) bool) *html.Node {
	if n.Type == html.TextNode && match(n.Data) {
		return n
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTextNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// SearchAncestors walks at most maxDepth ancestors of start, nearest first,
// and returns the first one satisfying match.
func SearchAncestors(start *goquery.Selection, maxDepth int, match func(*goquery.Selection) bool) (*goquery.Selection, bool) {
	current := start.Parent()
	for depth := 0; depth < maxDepth && current.Length() > 0; depth++ {
		if goquery.NodeName(current) == "#document" {
			break
		}
		if match(current) {
			return current, true
		}
		current = current.Parent()
	}
	return nil, false
}
