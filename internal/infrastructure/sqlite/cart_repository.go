// Package sqlite persists the shopping list and budget in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/flyerlens/backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS cart_entries (
	id       TEXT PRIMARY KEY,
	record   TEXT NOT NULL,
	added_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const budgetKey = "budget"

// CartRepository implements domain.CartRepository
type CartRepository struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path
func Open(ctx context.Context, path string) (*CartRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &CartRepository{db: db}, nil
}

func (r *CartRepository) Close() error {
	return r.db.Close()
}

func (r *CartRepository) List(ctx context.Context) ([]domain.CartEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, record, added_at FROM cart_entries ORDER BY added_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list cart entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.CartEntry{}
	for rows.Next() {
		var id, record, addedAt string
		if err := rows.Scan(&id, &record, &addedAt); err != nil {
			return nil, err
		}
		entry := domain.CartEntry{ID: id}
		if err := json.Unmarshal([]byte(record), &entry.Record); err != nil {
			return nil, fmt.Errorf("decode cart entry %s: %w", id, err)
		}
		entry.AddedAt, err = time.Parse(time.RFC3339Nano, addedAt)
		if err != nil {
			return nil, fmt.Errorf("decode cart entry %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *CartRepository) Add(ctx context.Context, entry domain.CartEntry) error {
	record, err := json.Marshal(entry.Record)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO cart_entries (id, record, added_at) VALUES (?, ?, ?)`,
		entry.ID, string(record), entry.AddedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add cart entry: %w", err)
	}
	return nil
}

func (r *CartRepository) Remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove cart entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_entries`)
	return err
}

// Budget returns the stored budget; ok is false when none was ever set
func (r *CartRepository) Budget(ctx context.Context) (decimal.Decimal, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, budgetKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("decode budget: %w", err)
	}
	return amount, true, nil
}

func (r *CartRepository) SetBudget(ctx context.Context, amount decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		budgetKey, amount.String())
	return err
}
