package matrix

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/walkshed/access-cli/internal/model"
)

// SQLiteCache is a persistent Cache backed by modernc.org/sqlite. A Put is a
// single INSERT OR REPLACE, so per-key writes are atomic.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (or creates) the cache database at the given path.
func NewSQLiteCache(dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "matrix: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "matrix: sqlite exec %s", pragma)
		}
	}

	c := &SQLiteCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

const sqliteCacheMigration = `
CREATE TABLE IF NOT EXISTS matrix_cache (
	key        TEXT PRIMARY KEY,
	legs       TEXT NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_matrix_cache_expires_at ON matrix_cache(expires_at);
`

func (c *SQLiteCache) migrate() error {
	_, err := c.db.Exec(sqliteCacheMigration)
	return eris.Wrap(err, "matrix: sqlite migrate")
}

// Close releases the database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Get returns the cached batch if present and unexpired.
func (c *SQLiteCache) Get(ctx context.Context, key CacheKey) (*model.TravelLegBatch, bool, error) {
	var legsJSON string
	err := c.db.QueryRowContext(ctx,
		`SELECT legs FROM matrix_cache WHERE key = ? AND expires_at > ?`,
		key.String(), time.Now().UTC(),
	).Scan(&legsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "matrix: sqlite cache get")
	}

	var batch model.TravelLegBatch
	if err := json.Unmarshal([]byte(legsJSON), &batch); err != nil {
		return nil, false, eris.Wrap(err, "matrix: sqlite cache unmarshal")
	}
	return &batch, true, nil
}

// Put stores a batch, replacing any previous entry for the key.
func (c *SQLiteCache) Put(ctx context.Context, key CacheKey, batch *model.TravelLegBatch, ttl time.Duration) error {
	legsJSON, err := json.Marshal(batch)
	if err != nil {
		return eris.Wrap(err, "matrix: sqlite cache marshal")
	}

	now := time.Now().UTC()
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO matrix_cache (key, legs, cached_at, expires_at) VALUES (?, ?, ?, ?)`,
		key.String(), string(legsJSON), now, now.Add(ttl),
	)
	return eris.Wrap(err, "matrix: sqlite cache put")
}

// Stats reports total and expired entry counts.
func (c *SQLiteCache) Stats(ctx context.Context) (total, expired int, err error) {
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(expires_at <= ?), 0) FROM matrix_cache`,
		time.Now().UTC(),
	).Scan(&total, &expired)
	if err != nil {
		return 0, 0, eris.Wrap(err, "matrix: sqlite cache stats")
	}
	return total, expired, nil
}

// DeleteExpired removes entries past their TTL; returns the count removed.
func (c *SQLiteCache) DeleteExpired(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM matrix_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "matrix: sqlite cache delete expired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "matrix: sqlite cache rows affected")
	}
	return int(n), nil
}
