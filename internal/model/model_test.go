package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerConfigValidate(t *testing.T) {
	valid := BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenTimeout:      30 * time.Second,
		MonitoringPeriod: 60 * time.Second,
	}
	assert.NoError(t, valid.Validate())

	assert.Error(t, BreakerConfig{}.Validate())

	noTimeout := valid
	noTimeout.OpenTimeout = 0
	assert.Error(t, noTimeout.Validate())
}

func TestRateLimitConfigValidate(t *testing.T) {
	valid := RateLimitConfig{Identifier: "external_api:weather", MaxRequests: 10, Window: time.Minute}
	assert.NoError(t, valid.Validate())

	assert.Error(t, RateLimitConfig{}.Validate())

	noIdentifier := valid
	noIdentifier.Identifier = ""
	assert.Error(t, noIdentifier.Validate())

	zeroWindow := valid
	zeroWindow.Window = 0
	assert.Error(t, zeroWindow.Validate())
}

func TestRateLimitConfigEffectiveLimit(t *testing.T) {
	cfg := RateLimitConfig{Identifier: "a", MaxRequests: 10, Window: time.Minute}
	assert.Equal(t, 10, cfg.EffectiveLimit())

	cfg.BurstLimit = 15
	assert.Equal(t, 15, cfg.EffectiveLimit())

	// A burst limit below the base limit grants nothing.
	cfg.BurstLimit = 5
	assert.Equal(t, 10, cfg.EffectiveLimit())
}

func TestRateLimitConfigCategory(t *testing.T) {
	assert.Equal(t, "yodlee", RateLimitConfig{Identifier: "yodlee:sync-user123"}.Category())
	assert.Equal(t, "database", RateLimitConfig{Identifier: "database:users"}.Category())
	assert.Equal(t, "plain", RateLimitConfig{Identifier: "plain"}.Category())
}
