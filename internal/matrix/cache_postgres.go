package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/walkshed/access-cli/internal/model"
)

// PgxPool is the subset of pgxpool.Pool the Postgres cache uses, also
// satisfied by pgxmock for unit tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCache is a shared Cache backed by Postgres. Writes are single
// upserts, so per-key atomicity comes from the database.
type PostgresCache struct {
	pool PgxPool
}

// NewPostgresCache connects a pool and ensures the cache table exists.
func NewPostgresCache(ctx context.Context, connString string) (*PostgresCache, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "matrix: postgres connect")
	}

	c := &PostgresCache{pool: pool}
	if err := c.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// NewPostgresCacheWithPool wraps an existing pool (or a mock in tests).
func NewPostgresCacheWithPool(pool PgxPool) *PostgresCache {
	return &PostgresCache{pool: pool}
}

func (c *PostgresCache) migrate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS matrix_cache (
			key        TEXT PRIMARY KEY,
			legs       JSONB NOT NULL,
			cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_matrix_cache_expires_at ON matrix_cache(expires_at)`)
	return eris.Wrap(err, "matrix: postgres migrate")
}

// Get returns the cached batch if present and unexpired.
func (c *PostgresCache) Get(ctx context.Context, key CacheKey) (*model.TravelLegBatch, bool, error) {
	var legsJSON []byte
	err := c.pool.QueryRow(ctx,
		`SELECT legs FROM matrix_cache WHERE key = $1 AND expires_at > now()`,
		key.String(),
	).Scan(&legsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "matrix: postgres cache get")
	}

	var batch model.TravelLegBatch
	if err := json.Unmarshal(legsJSON, &batch); err != nil {
		return nil, false, eris.Wrap(err, "matrix: postgres cache unmarshal")
	}
	return &batch, true, nil
}

// Put upserts a batch for the key.
func (c *PostgresCache) Put(ctx context.Context, key CacheKey, batch *model.TravelLegBatch, ttl time.Duration) error {
	legsJSON, err := json.Marshal(batch)
	if err != nil {
		return eris.Wrap(err, "matrix: postgres cache marshal")
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO matrix_cache (key, legs, cached_at, expires_at)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (key) DO UPDATE SET
			legs = EXCLUDED.legs,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at`,
		key.String(), legsJSON, time.Now().UTC().Add(ttl),
	)
	return eris.Wrap(err, "matrix: postgres cache put")
}
