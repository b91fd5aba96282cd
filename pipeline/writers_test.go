package pipeline

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
)

func sampleRecords() []models.ProductRecord {
	price := 1980.0
	detailPrice := 2180.0
	plain := models.ProductRecord{
		ID:          "shiba-plush",
		Title:       "Shiba Plush",
		URL:         "https://shop.example.test/products/shiba-plush",
		Price:       &price,
		Collection:  "newitems",
		StockStatus: models.StockNewItems,
		ExtractedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	detailed := plain.WithDetail(models.DetailFields{
		DetailedTitle: "Shiba Plush (L)",
		DetailedPrice: &detailPrice,
		SKU:           "SKU-1",
		PriceCurrency: "JPY",
	})
	detailed.ID = "shiba-plush-l"
	detailed.URL = "https://shop.example.test/products/shiba-plush-l"
	noPrice := plain
	noPrice.ID = "mystery"
	noPrice.URL = "https://shop.example.test/products/mystery"
	noPrice.Price = nil
	noPrice.StockStatus = models.StockSoldOut
	return []models.ProductRecord{plain, detailed, noPrice}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows=%d, want 4", len(rows))
	}
	if rows[0][0] != "id" || rows[0][4] != "stock_status" || len(rows[0]) != 13 {
		t.Fatalf("unexpected header: %v", rows[0])
	}

	tests := []struct {
		name string
		row  int
		col  int
		want string
	}{
		{"price", 1, 2, "1980"},
		{"status", 1, 4, "new_items"},
		{"extracted at", 1, 6, "2026-03-01T09:00:00Z"},
		{"no detail", 1, 7, ""},
		{"detailed title", 2, 7, "Shiba Plush (L)"},
		{"detailed price", 2, 8, "2180"},
		{"currency", 2, 12, "JPY"},
		{"missing price", 3, 2, ""},
		{"sold out", 3, 4, "sold_out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rows[tt.row][tt.col]; got != tt.want {
				t.Fatalf("rows[%d][%d] = %q, want %q", tt.row, tt.col, got, tt.want)
			}
		})
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []models.ProductRecord
	for scanner.Scan() {
		var rec models.ProductRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 3 {
		t.Fatalf("json lines=%d, want 3", len(decoded))
	}
	if decoded[1].Detail == nil || decoded[1].Detail.SKU != "SKU-1" {
		t.Fatalf("detail not preserved: %+v", decoded[1].Detail)
	}
	if decoded[2].Price != nil {
		t.Fatalf("missing price decoded as %v", *decoded[2].Price)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "products.csv")
	jsonPath := filepath.Join(dir, "out", "products.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestSQLiteWriterWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.db")

	writer, err := NewSQLiteWriter(ctx, path, "run-1")
	if err != nil {
		t.Fatalf("create sqlite writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatal("expected validate to fail before any write")
	}

	records := sampleRecords()
	if err := writer.Write(records); err != nil {
		t.Fatalf("write sqlite: %v", err)
	}
	// Same keys again update in place.
	if err := writer.Write(records[:1]); err != nil {
		t.Fatalf("rewrite sqlite: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate sqlite: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("rows = %d, want 3", count)
	}

	var price sql.NullFloat64
	var detail sql.NullString
	if err := db.QueryRow(`SELECT price, detail FROM products WHERE id = ?`, "mystery").Scan(&price, &detail); err != nil {
		t.Fatalf("select mystery: %v", err)
	}
	if price.Valid || detail.Valid {
		t.Fatalf("price=%v detail=%v, want both NULL", price, detail)
	}

	if err := db.QueryRow(`SELECT detail FROM products WHERE id = ?`, "shiba-plush-l").Scan(&detail); err != nil {
		t.Fatalf("select detailed: %v", err)
	}
	var fields models.DetailFields
	if err := json.Unmarshal([]byte(detail.String), &fields); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if fields.PriceCurrency != "JPY" {
		t.Fatalf("currency = %q, want JPY", fields.PriceCurrency)
	}
}

func TestSQLiteWriterRepeatRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.db")
	records := sampleRecords()

	for _, runID := range []string{"run-1", "run-2"} {
		writer, err := NewSQLiteWriter(ctx, path, runID)
		if err != nil {
			t.Fatalf("%s open: %v", runID, err)
		}
		if err := writer.Write(records); err != nil {
			t.Fatalf("%s write: %v", runID, err)
		}
		if err := writer.Validate(); err != nil {
			t.Fatalf("%s validate: %v", runID, err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("%s close: %v", runID, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer db.Close()

	tests := []struct {
		query string
		want  int
	}{
		{`SELECT COUNT(*) FROM products`, len(records)},
		{`SELECT COUNT(*) FROM products WHERE run_id = 'run-2'`, len(records)},
		{`SELECT COUNT(*) FROM products WHERE run_id = 'run-1'`, 0},
	}
	for _, tt := range tests {
		var got int
		if err := db.QueryRow(tt.query).Scan(&got); err != nil {
			t.Fatalf("%s: %v", tt.query, err)
		}
		if got != tt.want {
			t.Fatalf("%s = %d, want %d", tt.query, got, tt.want)
		}
	}
}
