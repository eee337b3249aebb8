package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/persist"
)

const (
	getEntrySQL = `SELECT value FROM storage_entries WHERE key = $1`

	setEntrySQL = `INSERT INTO storage_entries (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
)

var (
	_ persist.Storage = (*Storage)(nil)
	_ persist.Pinger  = (*Storage)(nil)
)

// Storage implements persist.Storage on the storage_entries table.
type Storage struct {
	pool *pgxpool.Pool
}

// NewStorage returns a Storage that uses the given pool.
func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Get returns the value stored under key.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	if err := s.pool.QueryRow(ctx, getEntrySQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "get %q", key)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	if _, err := s.pool.Exec(ctx, setEntrySQL, key, value); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
