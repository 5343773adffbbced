package data

import (
	"context"
	"os"
	"testing"
	"time"

	"FuseLane/pkg/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return rdb, mr
}

func newRedisStore(t *testing.T) (*RedisWindowStore, *clock.Fake, *miniredis.Miniredis) {
	rdb, mr := setupTestRedis(t)
	t.Cleanup(func() { _ = rdb.Close() })
	clk := clock.NewFake(time.Now())
	logger := log.NewStdLogger(os.Stdout)
	return NewRedisWindowStore(rdb, clk, logger), clk, mr
}

// Counts increment per key within the window.
func TestRedisWindowStore_CheckAndIncrement(t *testing.T) {
	store, _, _ := newRedisStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, ttl, err := store.CheckAndIncrement(ctx, "external_api:weather", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.Equal(t, time.Minute, ttl)
	}
}

// Keys are independent.
func TestRedisWindowStore_IndependentKeys(t *testing.T) {
	store, _, _ := newRedisStore(t)
	ctx := context.Background()

	count, _, err := store.CheckAndIncrement(ctx, "api:a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, _, err = store.CheckAndIncrement(ctx, "api:b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// Entries older than the window are pruned: the window slides.
func TestRedisWindowStore_WindowSlides(t *testing.T) {
	store, clk, _ := newRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := store.CheckAndIncrement(ctx, "api:x", time.Minute)
		require.NoError(t, err)
	}

	// Past the window: old entries fall out of the set.
	clk.Advance(61 * time.Second)
	count, _, err := store.CheckAndIncrement(ctx, "api:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// A partial slide keeps the in-window entries.
func TestRedisWindowStore_PartialSlide(t *testing.T) {
	store, clk, _ := newRedisStore(t)
	ctx := context.Background()

	_, _, err := store.CheckAndIncrement(ctx, "api:x", time.Minute)
	require.NoError(t, err)

	clk.Advance(30 * time.Second)
	_, _, err = store.CheckAndIncrement(ctx, "api:x", time.Minute)
	require.NoError(t, err)

	// 40s after the first entry: only it has expired.
	clk.Advance(31 * time.Second)
	count, _, err := store.CheckAndIncrement(ctx, "api:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// The backing key carries a TTL so idle identifiers expire in Redis.
func TestRedisWindowStore_KeyExpires(t *testing.T) {
	store, _, mr := newRedisStore(t)
	ctx := context.Background()

	_, _, err := store.CheckAndIncrement(ctx, "api:x", time.Minute)
	require.NoError(t, err)

	ttl := mr.TTL(windowKeyPrefix + "api:x")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

// Reset drops the key.
func TestRedisWindowStore_Reset(t *testing.T) {
	store, _, _ := newRedisStore(t)
	ctx := context.Background()

	_, _, err := store.CheckAndIncrement(ctx, "api:x", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "api:x"))

	count, _, err := store.CheckAndIncrement(ctx, "api:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// A dead backend surfaces an error the failover layer can absorb.
func TestRedisWindowStore_BackendDown(t *testing.T) {
	store, _, mr := newRedisStore(t)
	mr.Close()

	_, _, err := store.CheckAndIncrement(context.Background(), "api:x", time.Minute)
	assert.Error(t, err)
	assert.Error(t, store.Ping(context.Background()))
}

// A nil client errors instead of panicking.
func TestRedisWindowStore_NilClient(t *testing.T) {
	store := NewRedisWindowStore(nil, clock.New(), log.NewStdLogger(os.Stdout))

	_, _, err := store.CheckAndIncrement(context.Background(), "api:x", time.Minute)
	assert.Error(t, err)
	assert.Error(t, store.Reset(context.Background(), "api:x"))
	assert.Error(t, store.Ping(context.Background()))
}

// Ping succeeds against a live backend.
func TestRedisWindowStore_Ping(t *testing.T) {
	store, _, _ := newRedisStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
