package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const collectionPrefix = "/collections/"

// CollectionSlugs returns the collection slugs linked from doc, in document
// order and without duplicates.
func CollectionSlugs(doc *goquery.Document) []string {
	var out []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		slug := CollectionSlug(href)
		if slug == "" {
			return
		}
		if _, ok := seen[slug]; ok {
			return
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	})
	return out
}

// CollectionSlug extracts the path segment following "/collections/" in
// href, ignoring any query string or fragment. It returns "" when href has no
// collection segment.
func CollectionSlug(href string) string {
	idx := strings.Index(href, collectionPrefix)
	if idx < 0 {
		return ""
	}
	rest := href[idx+len(collectionPrefix):]
	if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
		rest = rest[:cut]
	}
	if unescaped, err := url.PathUnescape(rest); err == nil {
		rest = unescaped
	}
	return strings.TrimSpace(rest)
}

// CollectionPageURL builds the listing URL for one page of a collection.
func CollectionPageURL(base *url.URL, collection string, page int) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + collectionPrefix + collection
	u.RawPath = ""
	u.RawQuery = fmt.Sprintf("page=%d", page)
	u.Fragment = ""
	return u.String()
}
