package pipeline

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS products (
	id            TEXT NOT NULL,
	url           TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	title         TEXT NOT NULL,
	price         DOUBLE PRECISION,
	collection    TEXT NOT NULL,
	stock_status  TEXT NOT NULL,
	extracted_at  TIMESTAMPTZ NOT NULL,
	detail        JSONB,
	PRIMARY KEY (id, url)
)`

const postgresUpsert = `INSERT INTO products
	(id, url, run_id, title, price, collection, stock_status, extracted_at, detail)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id, url) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		title = EXCLUDED.title,
		price = EXCLUDED.price,
		collection = EXCLUDED.collection,
		stock_status = EXCLUDED.stock_status,
		extracted_at = EXCLUDED.extracted_at,
		detail = EXCLUDED.detail`

// batchSender is the part of *pgxpool.Pool the writer needs.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// PostgresWriter stores records through a pgx pool, one batch per Write. A
// row already present for the same id and url is refreshed from the latest
// crawl.
type PostgresWriter struct {
	ctx     context.Context
	pool    batchSender
	runID   string
	written int64
}

func NewPostgresWriter(ctx context.Context, dsn, runID string) (*PostgresWriter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	return newPostgresWriter(ctx, pool, runID), nil
}

func newPostgresWriter(ctx context.Context, pool batchSender, runID string) *PostgresWriter {
	return &PostgresWriter{ctx: ctx, pool: pool, runID: runID}
}

func (pw *PostgresWriter) Write(records []models.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, rec := range records {
		detail, err := detailJSON(rec.Detail)
		if err != nil {
			return err
		}
		b.Queue(postgresUpsert,
			rec.ID, rec.URL, pw.runID, rec.Title, rec.Price, rec.Collection,
			string(rec.StockStatus), rec.ExtractedAt, detail,
		)
	}

	br := pw.pool.SendBatch(pw.ctx, b)
	for range records {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert batch: %w", err)
		}
		pw.written += tag.RowsAffected()
	}
	return br.Close()
}

func (pw *PostgresWriter) Close() error {
	pw.pool.Close()
	return nil
}

// Validate ensures the run stored at least one row.
func (pw *PostgresWriter) Validate() error {
	if pw.written == 0 {
		return fmt.Errorf("postgres run %s stored no rows", pw.runID)
	}
	return nil
}
