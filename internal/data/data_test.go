package data

import (
	"context"
	"os"
	"testing"
	"time"

	"FuseLane/internal/conf"
	"FuseLane/pkg/clock"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Missing Redis configuration yields a nil client, not an error.
func TestNewRedisClient_NoConfig(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)

	client, cleanup, err := NewRedisClient(nil, logger)
	require.NoError(t, err)
	assert.Nil(t, client)
	cleanup()

	client, cleanup, err = NewRedisClient(&conf.Data{Redis: &conf.Data_Redis{Addr: ""}}, logger)
	require.NoError(t, err)
	assert.Nil(t, client)
	cleanup()
}

// An unreachable Redis still returns a usable client: startup must not fail
// on a degraded backend.
func TestNewRedisClient_UnreachableStartsDegraded(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	c := &conf.Data{Redis: &conf.Data_Redis{
		Addr:         "127.0.0.1:1", // nothing listens here
		DialTimeout:  durationpb.New(100 * time.Millisecond),
		ReadTimeout:  durationpb.New(100 * time.Millisecond),
		WriteTimeout: durationpb.New(100 * time.Millisecond),
	}}

	client, cleanup, err := NewRedisClient(c, logger)
	require.NoError(t, err)
	require.NotNil(t, client)
	cleanup()
}

// A reachable Redis connects and pings.
func TestNewRedisClient_Connects(t *testing.T) {
	_, mr := setupTestRedis(t)
	logger := log.NewStdLogger(os.Stdout)
	c := &conf.Data{Redis: &conf.Data_Redis{
		Addr:         mr.Addr(),
		DialTimeout:  durationpb.New(time.Second),
		ReadTimeout:  durationpb.New(time.Second),
		WriteTimeout: durationpb.New(time.Second),
	}}

	client, cleanup, err := NewRedisClient(c, logger)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.NoError(t, client.Ping(context.Background()).Err())
	cleanup()
}

// Missing database configuration yields a nil handle, not an error.
func TestNewDB_NoConfig(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)

	db, cleanup, err := NewDB(&conf.Data{}, logger)
	require.NoError(t, err)
	assert.Nil(t, db)
	cleanup()
}

// NewData tolerates nil backends.
func TestNewData_NilBackends(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)

	d, cleanup, err := NewData(&conf.Data{}, logger, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, d.GetRedisClient())
	assert.Nil(t, d.GetDB())
	cleanup()
}

// NewFailoverStore leaves the remote leg nil when Redis is absent.
func TestNewFailoverStore_NilRedis(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	clk := clock.NewFake(time.Now())
	rc := &conf.Resilience{RateLimit: &conf.Resilience_RateLimit{MaxTrackedIdentifiers: 64}}

	mem, err := NewMemoryWindowStore(rc, clk, logger)
	require.NoError(t, err)
	redisStore := NewRedisWindowStore(nil, clk, logger)
	metrics := NewPrometheusMetrics()

	store := NewFailoverStore(redisStore, mem, metrics, logger)
	assert.Equal(t, "memory", store.Mode())

	count, _, err := store.CheckAndIncrement(context.Background(), "api:x", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
