// Package data provides data access layer implementations.
package data

import (
	"context"
	"time"

	"FuseLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates the coordination store client.
// Connection failure does not prevent application startup (graceful
// degradation): the limiter falls back to its in-memory window and the
// liveness probe picks the backend up when it becomes reachable.
func NewRedisClient(c *conf.Data, logger log.Logger) (*redis.Client, func(), error) {
	helper := log.NewHelper(logger)

	if c == nil || c.Redis == nil {
		helper.Warn("Redis configuration is nil, rate limiting runs on the in-memory window")
		return nil, func() {}, nil
	}
	addr := c.Redis.Addr
	if addr == "" {
		helper.Warn("Redis address is empty, rate limiting runs on the in-memory window")
		return nil, func() {}, nil
	}

	dialTimeout := 5 * time.Second
	if c.Redis.DialTimeout != nil {
		dialTimeout = c.Redis.DialTimeout.AsDuration()
	}
	rdb := redis.NewClient(&redis.Options{
		Network:         c.Redis.Network,
		Addr:            addr,
		Password:        c.Redis.Password,
		DB:              0,
		PoolSize:        100,
		MinIdleConns:    10,
		DialTimeout:     dialTimeout,
		ReadTimeout:     c.Redis.ReadTimeout.AsDuration(),
		WriteTimeout:    c.Redis.WriteTimeout.AsDuration(),
		ConnMaxIdleTime: 5 * time.Minute,
	})

	cleanup := func() {
		helper.Info("closing Redis client")
		if err := rdb.Close(); err != nil {
			helper.Errorf("failed to close Redis client: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Keep the client: the failover store probes it back to life.
		helper.Warnf("failed to connect to Redis at %s: %v (starting degraded)", addr, err)
		return rdb, cleanup, nil
	}

	helper.Infof("successfully connected to Redis at %s", addr)
	return rdb, cleanup, nil
}
