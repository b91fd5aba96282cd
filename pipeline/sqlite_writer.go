package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS products (
	id            TEXT NOT NULL,
	url           TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	title         TEXT NOT NULL,
	price         REAL,
	collection    TEXT NOT NULL,
	stock_status  TEXT NOT NULL,
	extracted_at  TEXT NOT NULL,
	detail        TEXT,
	PRIMARY KEY (id, url)
)`

const sqliteUpsert = `INSERT INTO products
	(id, url, run_id, title, price, collection, stock_status, extracted_at, detail)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id, url) DO UPDATE SET
		run_id = excluded.run_id,
		title = excluded.title,
		price = excluded.price,
		collection = excluded.collection,
		stock_status = excluded.stock_status,
		extracted_at = excluded.extracted_at,
		detail = excluded.detail`

// SQLiteWriter stores records in a local SQLite database. A row already
// present for the same id and url is refreshed from the latest crawl.
type SQLiteWriter struct {
	ctx   context.Context
	db    *sql.DB
	runID string
}

func NewSQLiteWriter(ctx context.Context, path, runID string) (*SQLiteWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteWriter{ctx: ctx, db: db, runID: runID}, nil
}

func (sw *SQLiteWriter) Write(records []models.ProductRecord) error {
	tx, err := sw.db.BeginTx(sw.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(sw.ctx, sqliteUpsert)
	if err != nil {
		return fmt.Errorf("prepare sqlite upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		detail, err := detailJSON(rec.Detail)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(sw.ctx,
			rec.ID, rec.URL, sw.runID, rec.Title, rec.Price, rec.Collection,
			string(rec.StockStatus), rec.ExtractedAt.UTC().Format(time.RFC3339), detail,
		); err != nil {
			return fmt.Errorf("insert %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

func (sw *SQLiteWriter) Close() error {
	return sw.db.Close()
}

// Validate ensures this run stored at least one row.
func (sw *SQLiteWriter) Validate() error {
	var n int
	if err := sw.db.QueryRowContext(sw.ctx, `SELECT COUNT(*) FROM products WHERE run_id = ?`, sw.runID).Scan(&n); err != nil {
		return fmt.Errorf("count sqlite rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite database has no rows for run %s", sw.runID)
	}
	return nil
}

func detailJSON(d *models.DetailFields) (*string, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode detail: %w", err)
	}
	s := string(raw)
	return &s, nil
}
