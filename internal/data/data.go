// Package data provides data access layer implementations.
// It implements the window stores, audit sinks and metrics the biz layer
// declares as interfaces.
package data

import (
	"FuseLane/internal/biz"
	"FuseLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewDB,
	NewRedisWindowStore,
	NewMemoryWindowStore,
	NewFailoverStore,
	NewGormAuditLogger,
	NewLogEventNotifier,
	NewPrometheusMetrics,
	wire.Bind(new(biz.AuditLogger), new(*GormAuditLogger)),
	wire.Bind(new(biz.EventNotifier), new(*LogEventNotifier)),
	wire.Bind(new(biz.MetricsSink), new(*PrometheusMetrics)),
)

// Data contains the shared data layer dependencies.
type Data struct {
	redisClient *redis.Client
	db          *gorm.DB
}

// NewData bundles the backing clients. Either client may be nil: Redis
// degrades to in-memory counting, MySQL degrades to log-only auditing.
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, distributed rate limiting will be unavailable")
	}
	if db == nil {
		helper.Warn("database client is nil, transition auditing will not be persisted")
	}

	d := &Data{redisClient: rdb, db: db}
	cleanup := func() {
		helper.Info("closing the data resources")
		// Client cleanup is handled by the NewRedisClient / NewDB cleanup
		// functions, which Wire calls in reverse order.
	}
	return d, cleanup, nil
}

// NewFailoverStore composes the Redis and in-memory window stores behind the
// failover switch. With no Redis client configured the remote side is left
// nil and the limiter runs purely in memory.
func NewFailoverStore(r *RedisWindowStore, m *MemoryWindowStore, metrics biz.MetricsSink,
	logger log.Logger) *biz.FailoverWindowStore {
	var remote biz.WindowStore
	var prober biz.LivenessProber
	if r != nil && r.rdb != nil {
		remote = r
		prober = r
	}
	return biz.NewFailoverWindowStore(remote, m, prober, metrics, logger)
}

// GetRedisClient returns the Redis client for advanced operations.
func (d *Data) GetRedisClient() *redis.Client {
	return d.redisClient
}

// GetDB returns the audit database handle, possibly nil.
func (d *Data) GetDB() *gorm.DB {
	return d.db
}
