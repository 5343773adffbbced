package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"FuseLane/pkg/clock"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const windowKeyPrefix = "window:"

// RedisWindowStore implements biz.WindowStore on a Redis sorted set per
// identifier, scored by request timestamp. Following Kratos v2 DDD
// architecture, the interface is defined in the biz layer.
type RedisWindowStore struct {
	rdb    *redis.Client
	clk    clock.Clock
	logger *log.Helper
}

// NewRedisWindowStore creates the distributed sliding-window store.
func NewRedisWindowStore(rdb *redis.Client, clk clock.Clock, logger log.Logger) *RedisWindowStore {
	return &RedisWindowStore{
		rdb:    rdb,
		clk:    clk,
		logger: log.NewHelper(logger),
	}
}

// CheckAndIncrement prunes entries older than the window, records this
// request and returns the resulting count. The four commands run in a single
// MULTI/EXEC round trip so concurrent checks cannot interleave between prune
// and count.
func (s *RedisWindowStore) CheckAndIncrement(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if s.rdb == nil {
		return 0, 0, fmt.Errorf("redis client is nil")
	}

	now := s.clk.Now()
	windowStart := now.Add(-window)
	redisKey := windowKeyPrefix + key

	// Member must be unique per request: nanosecond timestamp alone collides
	// under concurrency and ZADD would silently dedupe.
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	pipe := s.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	card := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("sliding window pipeline failed: %w", err)
	}

	return int(card.Val()), window, nil
}

// Reset drops all recorded requests for key.
func (s *RedisWindowStore) Reset(ctx context.Context, key string) error {
	if s.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := s.rdb.Del(ctx, windowKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset window for %s: %w", key, err)
	}
	return nil
}

// Ping implements biz.LivenessProber.
func (s *RedisWindowStore) Ping(ctx context.Context) error {
	if s.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	return s.rdb.Ping(ctx).Err()
}
