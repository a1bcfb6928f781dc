package viewstate

import (
	"context"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"github.com/blockberries/nftflow/types"
)

const cacheKeyPrefix = "nftflow:snapshot:"

// SnapshotCache keeps the last refreshed snapshot per account so a
// reconnecting session can render before its first refresh returns.
// It is backed by an in-process TinyLFU tier and, optionally, Redis.
type SnapshotCache struct {
	cache   *cache.Cache
	ttl     time.Duration
	timeout time.Duration
}

// NewSnapshotCache creates a cache. rdb may be nil for a local-only
// cache.
func NewSnapshotCache(rdb *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	opts := &cache.Options{
		StatsEnabled: false,
		LocalCache:   cache.NewTinyLFU(1000, ttl),
	}
	if rdb != nil {
		opts.Redis = rdb
	}
	return &SnapshotCache{
		cache:   cache.New(opts),
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
	}
}

// Put stores snap under its address.
func (c *SnapshotCache) Put(ctx context.Context, snap types.AccountSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   cacheKeyPrefix + snap.Address,
		Value: snap,
		TTL:   c.ttl,
	})
}

// Get returns the cached snapshot for address.
func (c *SnapshotCache) Get(ctx context.Context, address string) (types.AccountSnapshot, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var snap types.AccountSnapshot
	if err := c.cache.Get(ctx, cacheKeyPrefix+address, &snap); err != nil {
		return types.AccountSnapshot{}, false
	}
	return snap, true
}
