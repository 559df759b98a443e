package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/somerville/nbhd-map/internal/config"
	"github.com/somerville/nbhd-map/internal/logger"
	"github.com/somerville/nbhd-map/internal/metrics"
)

const listKeyPrefix = "nbhd:geojson:list:v1:"

// ListKey holds the serialized default neighborhood list for one data
// version.
func ListKey(version string) string {
	return listKeyPrefix + version
}

// Cache stores serialized GeoJSON payloads in redis. A nil *Cache is valid
// and behaves as an always-empty cache.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

// Open returns nil when no redis address is configured.
func Open(cfg config.Redis, log *logger.Logger) *Cache {
	if cfg.Addr == "" {
		log.Info("Redis cache disabled")
		return nil
	}
	log.Debug("redis_config", "addr", cfg.Addr, "db", cfg.DB)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return New(rdb, cfg.TTL, log)
}

func New(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl, log: log.With("component", "cache")}
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Get reports a miss on any redis error; the caller falls back to the
// database.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Cache read failed", "key", key, "error", err)
		}
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return b, true
}

func (c *Cache) Set(ctx context.Context, key string, b []byte) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.Warn("Cache write failed", "key", key, "error", err)
	}
}

// Invalidate drops the cached list of every version. Called after every
// successful import.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var keys []string
	iter := c.rdb.Scan(ctx, 0, listKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
