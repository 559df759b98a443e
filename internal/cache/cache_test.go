package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/somerville/nbhd-map/internal/cache"
	"github.com/somerville/nbhd-map/internal/config"
	"github.com/somerville/nbhd-map/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.New(rdb, time.Minute, logger.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNilCacheIsEmpty(t *testing.T) {
	c := cache.Open(config.Redis{}, logger.Nop())
	require.Nil(t, c)

	ctx := context.Background()
	c.Set(ctx, cache.ListKey("empty"), []byte(`{}`))
	_, ok := c.Get(ctx, cache.ListKey("empty"))
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx))
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestListKey(t *testing.T) {
	assert.Equal(t, "nbhd:geojson:list:v1:empty", cache.ListKey("empty"))
	assert.NotEqual(t, cache.ListKey("a"), cache.ListKey("b"))
}

func TestRedisRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	key := cache.ListKey("run-1")
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	payload := []byte(`{"type":"FeatureCollection","features":[]}`)
	c.Set(ctx, key, payload)
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Equal(t, time.Minute, mr.TTL(key))

	require.NoError(t, c.Invalidate(ctx))
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}

func TestInvalidateDropsEveryVersion(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, cache.ListKey("run-1"), []byte(`1`))
	c.Set(ctx, cache.ListKey("run-2"), []byte(`2`))
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, c.Invalidate(ctx))

	assert.False(t, mr.Exists(cache.ListKey("run-1")))
	assert.False(t, mr.Exists(cache.ListKey("run-2")))
	assert.True(t, mr.Exists("unrelated"))
}

func TestGetMissOnRedisFailure(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, cache.ListKey("run-1"), []byte(`1`))
	mr.Close()

	_, ok := c.Get(ctx, cache.ListKey("run-1"))
	assert.False(t, ok)
}
