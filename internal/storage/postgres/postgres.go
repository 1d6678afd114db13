// Package postgres implements storage.Store on a PostgreSQL JSONB table so
// several storefront replicas can share cached client state.
package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-storefront/db"
	"github.com/xenking/kart-storefront/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// NewPool parses the connection URL and opens a pool, verifying
// connectivity with a ping.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return pool, nil
}

// RunMigrations applies the embedded schema. Statements are idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

// Store reads and writes the kv_entries table.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store that uses the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const (
	getQuery    = `SELECT value FROM kv_entries WHERE key = $1`
	putQuery    = `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	deleteQuery = `DELETE FROM kv_entries WHERE key = $1`
)

// Get returns the JSON document stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.pool.QueryRow(ctx, getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrapf(err, "select %q", key)
	}
	return value, nil
}

// Put upserts value, which must be valid JSON.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.pool.Exec(ctx, putQuery, key, value); err != nil {
		return errors.Wrapf(err, "upsert %q", key)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, deleteQuery, key); err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}
	return nil
}
