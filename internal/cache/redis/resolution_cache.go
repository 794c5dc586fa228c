// Package redis caches resolved collection membership in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"shelf/internal/config"
	"shelf/internal/port"
)

// ResolutionCache stores membership sequences as packed 16-byte ids under a
// key derived from collection id, generation, catalog revision and case
// policy. Entries are
// never updated in place; a new generation or revision simply misses.
type ResolutionCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

var _ port.ResolutionCache = (*ResolutionCache)(nil)

// NewResolutionCache creates a cache backed by a new Redis client.
func NewResolutionCache(cfg config.RedisConfig) *ResolutionCache {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewResolutionCacheWithClient(client, cfg.Prefix, cfg.TTL)
}

// NewResolutionCacheWithClient creates a cache on an existing client.
func NewResolutionCacheWithClient(client *goredis.Client, prefix string, ttl time.Duration) *ResolutionCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResolutionCache{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks connectivity.
func (c *ResolutionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *ResolutionCache) Close() error {
	return c.client.Close()
}

func (c *ResolutionCache) Get(ctx context.Context, key port.ResolutionKey) ([]uuid.UUID, bool, error) {
	raw, err := c.client.Get(ctx, c.makeKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis.ResolutionCache.Get: %w", err)
	}
	ids, err := unpackIDs(raw)
	if err != nil {
		return nil, false, fmt.Errorf("redis.ResolutionCache.Get: %w", err)
	}
	return ids, true, nil
}

func (c *ResolutionCache) Set(ctx context.Context, key port.ResolutionKey, ids []uuid.UUID) error {
	if err := c.client.Set(ctx, c.makeKey(key), packIDs(ids), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis.ResolutionCache.Set: %w", err)
	}
	return nil
}

func (c *ResolutionCache) makeKey(key port.ResolutionKey) string {
	policy := "ci"
	if key.CaseSensitive {
		policy = "cs"
	}
	return c.prefix + key.CollectionID.String() + ":" + strconv.FormatInt(key.Generation, 10) + ":" + key.CatalogRevision + ":" + policy
}

func packIDs(ids []uuid.UUID) []byte {
	buf := make([]byte, 0, len(ids)*16)
	for _, id := range ids {
		buf = append(buf, id[:]...)
	}
	return buf
}

func unpackIDs(raw []byte) ([]uuid.UUID, error) {
	if len(raw)%16 != 0 {
		return nil, fmt.Errorf("corrupt entry of %d bytes", len(raw))
	}
	ids := make([]uuid.UUID, len(raw)/16)
	for i := range ids {
		copy(ids[i][:], raw[i*16:(i+1)*16])
	}
	return ids, nil
}
