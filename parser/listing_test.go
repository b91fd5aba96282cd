package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-market/models"
)

func mustDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	return doc
}

func newTestExtractor(t *testing.T, depth int) *Extractor {
	t.Helper()
	e, err := NewExtractor("https://shop.example", depth)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	e.now = func() time.Time { return time.Date(2025, 7, 18, 10, 0, 0, 0, time.UTC) }
	return e
}

func shopifyCard(handle, title, price, badge string) string {
	return fmt.Sprintf(`<li class="grid__item">
  <div class="card-wrapper product-card-wrapper">
    <div class="card card--standard">
      <div class="card__inner"><a href="/collections/newitems/products/%[1]s"><img src="/cdn/%[1]s.jpg"></a></div>
      <div class="card__content">
        <h3 class="card__heading"><a href="/collections/newitems/products/%[1]s">%[2]s</a></h3>
        <div class="price"><span class="price-item price-item--regular">%[3]s</span></div>
        <span class="badge">%[4]s</span>
      </div>
    </div>
  </div>
</li>`, handle, title, price, badge)
}

func TestFragmentsCardTier(t *testing.T) {
	page := `<html><body><ul class="product-grid">` +
		shopifyCard("usagi-mug", "うさぎ マグカップ", "¥1,980", "NEW") +
		shopifyCard("hachiware-bag", "ハチワレ &amp; バッグ", "¥3,300", "売り切れ") +
		shopifyCard("chiikawa-plush", "ちいかわ ぬいぐるみ", "¥2,200", "") +
		`</ul></body></html>`

	e := newTestExtractor(t, 5)
	frags, strategy := e.Fragments(mustDoc(t, page), "newitems")
	if strategy != "card" {
		t.Fatalf("strategy = %q, want card", strategy)
	}
	if len(frags) != 3 {
		t.Fatalf("fragments = %d, want 3", len(frags))
	}

	rec, err := e.Record(frags[0], "newitems")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.ID != "usagi-mug" {
		t.Errorf("id = %q", rec.ID)
	}
	if rec.URL != "https://shop.example/collections/newitems/products/usagi-mug" {
		t.Errorf("url = %q", rec.URL)
	}
	if rec.Title != "うさぎ マグカップ" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Price == nil || *rec.Price != 1980 {
		t.Errorf("price = %v, want 1980", rec.Price)
	}
	if rec.StockStatus != models.StockNewItems {
		t.Errorf("status = %s, want new_items", rec.StockStatus)
	}
	if rec.Collection != "newitems" {
		t.Errorf("collection = %q", rec.Collection)
	}
	if !rec.ExtractedAt.Equal(time.Date(2025, 7, 18, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("extracted at = %v", rec.ExtractedAt)
	}

	second, err := e.Record(frags[1], "newitems")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if second.Title != "ハチワレ & バッグ" || second.StockStatus != models.StockSoldOut {
		t.Errorf("second = %q/%s", second.Title, second.StockStatus)
	}

	third, _ := e.Record(frags[2], "newitems")
	if third.StockStatus != models.StockInStock {
		t.Errorf("third status = %s, want in_stock", third.StockStatus)
	}
}

func TestFragmentsCardContainerIsSplit(t *testing.T) {
	page := `<html><body><div class="collection-cards">
<div class="card"><a href="/products/a">A</a><span class="price">¥100</span></div>
<div class="card"><a href="/products/b">B</a><span class="price">¥200</span></div>
</div></body></html>`

	e := newTestExtractor(t, 5)
	frags, strategy := e.Fragments(mustDoc(t, page), "misc")
	if strategy != "card" || len(frags) != 2 {
		t.Fatalf("strategy=%q fragments=%d, want card/2", strategy, len(frags))
	}
	rec, err := e.Record(frags[1], "misc")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Title != "B" || rec.Price == nil || *rec.Price != 200 {
		t.Fatalf("record = %q/%v", rec.Title, rec.Price)
	}
}

func TestFragmentsCollectionLinkTier(t *testing.T) {
	page := `<html><body><div class="grid">
<div class="item"><a href="/collections/newitems/products/p1">P1</a><span>¥500</span></div>
<div class="item"><a href="/collections/newitems/products/p2">P2</a><span>¥600</span></div>
<div class="item"><a href="/collections/newitems/products/p2">P2 again</a></div>
<div class="item"><a href="/products/elsewhere">Elsewhere</a></div>
</div></body></html>`

	e := newTestExtractor(t, 5)
	frags, strategy := e.Fragments(mustDoc(t, page), "newitems")
	if strategy != "collection_link" {
		t.Fatalf("strategy = %q, want collection_link", strategy)
	}
	if len(frags) != 2 {
		t.Fatalf("fragments = %d, want 2", len(frags))
	}
}

func TestFragmentsProductLinkTier(t *testing.T) {
	page := `<html><body>
<a href="/products/p1">P1</a>
<a href="/products/p1"><img src="p1.jpg"></a>
<a href="https://shop.example/products/p2?variant=9">P2</a>
<a href="/pages/about">About</a>
</body></html>`

	e := newTestExtractor(t, 5)
	frags, strategy := e.Fragments(mustDoc(t, page), "newitems")
	if strategy != "product_link" {
		t.Fatalf("strategy = %q, want product_link", strategy)
	}
	if len(frags) != 2 {
		t.Fatalf("fragments = %d, want 2", len(frags))
	}
	rec, err := e.Record(frags[1], "newitems")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.ID != "p2" || rec.URL != "https://shop.example/products/p2?variant=9" {
		t.Fatalf("record = %s %s", rec.ID, rec.URL)
	}
}

func TestFragmentsNone(t *testing.T) {
	e := newTestExtractor(t, 5)
	frags, strategy := e.Fragments(mustDoc(t, `<html><body><p>No products</p></body></html>`), "newitems")
	if len(frags) != 0 || strategy != "" {
		t.Fatalf("fragments=%d strategy=%q, want none", len(frags), strategy)
	}
}

func TestRecordWithoutLinkIsSkipped(t *testing.T) {
	e := newTestExtractor(t, 5)
	doc := mustDoc(t, `<html><body><div class="card"><span>Coming soon ¥1,000</span></div></body></html>`)
	frags, _ := e.Fragments(doc, "newitems")
	if len(frags) != 1 {
		t.Fatalf("fragments = %d, want 1", len(frags))
	}
	if _, err := e.Record(frags[0], "newitems"); !errors.Is(err, ErrExtractionSkip) {
		t.Fatalf("expected ErrExtractionSkip, got %v", err)
	}
}

func TestRecordTitleFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "class match", body: `<div class="card"><a href="/products/p"><span class="product-title">Usagi Cup</span></a></div>`, expected: "Usagi Cup"},
		{name: "price class is not a title", body: `<div class="card"><a href="/products/mug">Chiikawa Mug</a><span class="product-price">¥1,980</span></div>`, expected: "Chiikawa Mug"},
		{name: "name class beside price", body: `<div class="card"><a href="/products/p"><img src="x.jpg"></a><div class="product-price">¥880</div><div class="product-name">Kurimanju Keychain</div></div>`, expected: "Kurimanju Keychain"},
		{name: "link text", body: `<div class="card"><a href="/products/p">  Momonga   Pouch </a></div>`, expected: "Momonga Pouch"},
		{name: "link title attribute", body: `<div class="card"><a href="/products/p" title="Hachiware Bag"><img src="x.jpg"></a></div>`, expected: "Hachiware Bag"},
		{name: "sentinel", body: `<div class="card"><a href="/products/p"><img src="x.jpg"></a></div>`, expected: UnknownTitle},
	}

	e := newTestExtractor(t, 5)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags, _ := e.Fragments(mustDoc(t, "<html><body>"+tt.body+"</body></html>"), "x")
			if len(frags) != 1 {
				t.Fatalf("fragments = %d", len(frags))
			}
			rec, err := e.Record(frags[0], "x")
			if err != nil {
				t.Fatalf("record: %v", err)
			}
			if rec.Title != tt.expected {
				t.Errorf("title = %q, want %q", rec.Title, tt.expected)
			}
		})
	}
}

func TestRecordPriceFromCurrencyText(t *testing.T) {
	e := newTestExtractor(t, 5)
	doc := mustDoc(t, `<html><body><div class="card"><a href="/products/p1">Model 7 figure</a><p>税込 <b>1,100円</b></p></div></body></html>`)
	frags, _ := e.Fragments(doc, "x")
	rec, err := e.Record(frags[0], "x")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Price == nil || *rec.Price != 1100 {
		t.Fatalf("price = %v, want 1100", rec.Price)
	}
}

func TestRecordPriceAbsent(t *testing.T) {
	e := newTestExtractor(t, 5)
	doc := mustDoc(t, `<html><body><div class="card"><a href="/products/p1">P1</a><span class="price">price unavailable</span></div></body></html>`)
	frags, _ := e.Fragments(doc, "x")
	rec, err := e.Record(frags[0], "x")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Price != nil {
		t.Fatalf("price = %v, want absent", *rec.Price)
	}
}

func TestRecordPriceAncestorSearchDepth(t *testing.T) {
	page := `<html><body><div class="item"><div><div><a href="/products/p1">Plush</a></div></div><span>¥2,200</span></div></body></html>`

	shallow := newTestExtractor(t, 2)
	frags, strategy := shallow.Fragments(mustDoc(t, page), "x")
	if strategy != "product_link" || len(frags) != 1 {
		t.Fatalf("strategy=%q fragments=%d", strategy, len(frags))
	}
	rec, _ := shallow.Record(frags[0], "x")
	if rec.Price != nil {
		t.Fatalf("depth 2 should not reach the price, got %v", *rec.Price)
	}

	deep := newTestExtractor(t, 3)
	frags, _ = deep.Fragments(mustDoc(t, page), "x")
	rec, _ = deep.Record(frags[0], "x")
	if rec.Price == nil || *rec.Price != 2200 {
		t.Fatalf("depth 3 price = %v, want 2200", rec.Price)
	}
}

func TestSearchAncestorsStopsAtDocument(t *testing.T) {
	doc := mustDoc(t, `<html><body><p><a href="/products/p">x</a></p></body></html>`)
	link := doc.Find("a").First()
	calls := 0
	_, ok := SearchAncestors(link, 50, func(*goquery.Selection) bool {
		calls++
		return false
	})
	if ok {
		t.Fatalf("expected no match")
	}
	if calls != 3 {
		t.Fatalf("visited %d ancestors, want 3 (p, body, html)", calls)
	}
}
