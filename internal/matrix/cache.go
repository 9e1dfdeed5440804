package matrix

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/walkshed/access-cli/internal/model"
)

// CacheKey identifies one cached tile result. DataVersion is part of the key
// so a network or timetable update invalidates the whole keyspace without an
// explicit purge.
type CacheKey struct {
	Mode        model.Mode
	Period      model.Period
	OriginTile  string
	DestTile    string
	DataVersion string
}

// String renders the key for use as a storage key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", k.Mode, k.Period, k.OriginTile, k.DestTile, k.DataVersion)
}

// tileHash returns a short content hash over the member IDs of one tile side,
// so identical tiles hit the cache across runs regardless of request order.
func tileHash(ids []string) string {
	h := sha256.Sum256([]byte(strings.Join(ids, "|")))
	return fmt.Sprintf("%x", h[:8])
}

// Cache stores travel-leg tile batches. Implementations must make Put atomic
// per key: a concurrent Get never observes a partially written entry. Racing
// writers on the same key are acceptable (idempotent overwrite).
type Cache interface {
	Get(ctx context.Context, key CacheKey) (*model.TravelLegBatch, bool, error)
	Put(ctx context.Context, key CacheKey, batch *model.TravelLegBatch, ttl time.Duration) error
}

// memEntry is immutable once stored; expiry is checked on read.
type memEntry struct {
	batch     *model.TravelLegBatch
	expiresAt time.Time
}

// MemoryCache is an in-process Cache backed by a concurrent map. Stores are
// atomic pointer swaps, so readers see either the old entry or the complete
// new one.
type MemoryCache struct {
	entries *xsync.MapOf[string, memEntry]
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: xsync.NewMapOf[string, memEntry](),
		now:     time.Now,
	}
}

// Get returns the cached batch if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key CacheKey) (*model.TravelLegBatch, bool, error) {
	entry, ok := c.entries.Load(key.String())
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		// Evict only if the entry is still the one we read; a fresh Put
		// racing this read must survive.
		c.entries.Compute(key.String(), func(cur memEntry, loaded bool) (memEntry, bool) {
			// delete=true on an absent key is a no-op, never a store.
			return cur, !loaded || cur.batch == entry.batch
		})
		return nil, false, nil
	}
	return entry.batch, true, nil
}

// Put stores a batch with the given TTL.
func (c *MemoryCache) Put(_ context.Context, key CacheKey, batch *model.TravelLegBatch, ttl time.Duration) error {
	c.entries.Store(key.String(), memEntry{batch: batch, expiresAt: c.now().Add(ttl)})
	return nil
}

// Purge drops every entry.
func (c *MemoryCache) Purge() {
	c.entries.Clear()
}

// Len reports the current entry count (expired entries included until read).
func (c *MemoryCache) Len() int {
	return c.entries.Size()
}
