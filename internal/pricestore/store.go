// Package pricestore persists daily OHLCV history in the history database.
// It is the source of record for analytics: the metrics service reads from
// here first and only goes to the provider for symbols with no local data.
package pricestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quantlens/quantlens/internal/database"
	"github.com/quantlens/quantlens/internal/domain"
)

// Store provides access to the daily_prices table.
type Store struct {
	db *database.DB
}

// New creates the daily_prices table if it does not exist.
func New(db *database.DB) (*Store, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_prices (
		symbol     TEXT NOT NULL,
		date       TEXT NOT NULL,
		open       REAL NOT NULL,
		high       REAL NOT NULL,
		low        REAL NOT NULL,
		close      REAL NOT NULL,
		volume     INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (symbol, date)
	);
	CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create daily_prices table: %w", err)
	}
	return &Store{db: db}, nil
}

// Read returns the price series for symbol between start and end dates
// (inclusive, YYYY-MM-DD), in ascending date order. Empty bounds are open.
func (s *Store) Read(ctx context.Context, symbol, start, end string) (domain.PriceSeries, error) {
	query := `SELECT date, open, high, low, close, volume
		FROM daily_prices WHERE symbol = ?`
	args := []interface{}{symbol}

	if start != "" {
		query += " AND date >= ?"
		args = append(args, start)
	}
	if end != "" {
		query += " AND date <= ?"
		args = append(args, end)
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("failed to read prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	series := domain.PriceSeries{Symbol: symbol}
	for rows.Next() {
		p := domain.PricePoint{Symbol: symbol}
		if err := rows.Scan(&p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return domain.PriceSeries{}, fmt.Errorf("failed to scan price row for %s: %w", symbol, err)
		}
		series.Points = append(series.Points, p)
	}
	if err := rows.Err(); err != nil {
		return domain.PriceSeries{}, fmt.Errorf("price row iteration failed for %s: %w", symbol, err)
	}
	return series, nil
}

// Write upserts a full series, replacing bars that already exist for a date.
func (s *Store) Write(ctx context.Context, series domain.PriceSeries) error {
	if series.Len() == 0 {
		return nil
	}

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin price write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO daily_prices (symbol, date, open, high, low, close, volume, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
		 ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare price write: %w", err)
	}
	defer stmt.Close()

	for _, p := range series.Points {
		if _, err := stmt.ExecContext(ctx, series.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume); err != nil {
			return fmt.Errorf("failed to write bar %s/%s: %w", series.Symbol, p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price write: %w", err)
	}
	return nil
}

// LatestVersion returns a token identifying the current state of a symbol's
// stored history. It changes whenever bars are added or replaced, which
// makes it a natural cache-key component: cached analytics die with the data
// they were computed from. A symbol with no data gets "0:".
func (s *Store) LatestVersion(ctx context.Context, symbol string) (string, error) {
	var count int64
	var maxDate sql.NullString
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MAX(date) FROM daily_prices WHERE symbol = ?", symbol)
	if err := row.Scan(&count, &maxDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "0:", nil
		}
		return "", fmt.Errorf("failed to read price version for %s: %w", symbol, err)
	}
	return fmt.Sprintf("%d:%s", count, maxDate.String), nil
}

// Symbols returns all symbols with stored history.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}
