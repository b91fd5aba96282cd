package parser

import (
	"strings"

	"github.com/aluiziolira/go-scrape-market/models"
)

type stockRule struct {
	status   models.StockStatus
	keywords []string
}

// Evaluated in order; the first rule with a matching keyword wins, so a
// listing flagged both new and sold out is classified sold out.
var stockRules = []stockRule{
	{
		status:   models.StockSoldOut,
		keywords: []string{"sold out", "soldout", "sold-out", "out of stock", "no stock", "売り切れ", "売切れ", "完売", "在庫なし", "在庫切れ"},
	},
	{
		status:   models.StockNewItems,
		keywords: []string{"new", "新着", "新商品"},
	},
	{
		status:   models.StockPreOrder,
		keywords: []string{"pre-order", "preorder", "reservation", "予約"},
	},
}

// ClassifyStock maps the text content of a listing to a stock status.
func ClassifyStock(text string) models.StockStatus {
	text = strings.ToLower(text)
	for _, rule := range stockRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.status
			}
		}
	}
	return models.StockInStock
}
