// Package journal keeps an append-only SQLite log of fills and order
// operations for post-trade inspection via the ops API.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

type FillRecord struct {
	ID      string    `json:"id"`
	Symbol  string    `json:"symbol"`
	OrderID string    `json:"order_id"`
	Side    string    `json:"side"`
	Price   float64   `json:"price"`
	Qty     float64   `json:"qty"`
	Fee     float64   `json:"fee"`
	At      time.Time `json:"at"`
}

type OperationRecord struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Kind   string    `json:"kind"` // place / amend / cancel / cancel_all / halt / trip
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fills (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			order_id TEXT NOT NULL,
			side TEXT NOT NULL,
			price REAL NOT NULL,
			qty REAL NOT NULL,
			fee REAL NOT NULL,
			at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_symbol_at ON fills(symbol, at DESC)`,
		`CREATE TABLE IF NOT EXISTS operations (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT,
			at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_symbol_at ON operations(symbol, at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("journal migration failed: %w", err)
		}
	}
	return nil
}

func (j *Journal) AppendFill(ctx context.Context, rec FillRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO fills (id, symbol, order_id, side, price, qty, fee, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Symbol, rec.OrderID, rec.Side, rec.Price, rec.Qty, rec.Fee, rec.At.UnixMilli())
	return err
}

func (j *Journal) AppendOperation(ctx context.Context, rec OperationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO operations (id, symbol, kind, detail, at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Symbol, rec.Kind, rec.Detail, rec.At.UnixMilli())
	return err
}

func (j *Journal) ListFills(ctx context.Context, symbol string, limit int) ([]FillRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	query := `SELECT id, symbol, order_id, side, price, qty, fee, at FROM fills`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FillRecord
	for rows.Next() {
		var rec FillRecord
		var at int64
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.OrderID, &rec.Side, &rec.Price, &rec.Qty, &rec.Fee, &at); err != nil {
			return nil, err
		}
		rec.At = time.UnixMilli(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
