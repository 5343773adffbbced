// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with FUSELANE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Every section has a usable default: FuseLane starts with no config file,
// no Redis and no database, running the limiter on its in-memory window.
//
// Parameters:
//   - configPath: Path to the configuration file or directory
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with FUSELANE_ prefix
	v.SetEnvPrefix("FUSELANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without FUSELANE_ prefix) for compatibility
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "FUSELANE_DATA_REDIS_ADDR")
	_ = v.BindEnv("data.redis.password", "REDIS_PASSWORD", "FUSELANE_DATA_REDIS_PASSWORD")
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "FUSELANE_DATA_DATABASE_SOURCE")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				DialTimeout:  durationpb.New(v.GetDuration("data.redis.dial_timeout")),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
		},
		Resilience: &Resilience{
			RateLimit: &Resilience_RateLimit{
				Policy:                v.GetString("resilience.rate_limit.policy"),
				QueueDrainInterval:    durationpb.New(v.GetDuration("resilience.rate_limit.queue_drain_interval")),
				ProbeInterval:         durationpb.New(v.GetDuration("resilience.rate_limit.probe_interval")),
				MemorySweepInterval:   durationpb.New(v.GetDuration("resilience.rate_limit.memory_sweep_interval")),
				MaxTrackedIdentifiers: v.GetInt("resilience.rate_limit.max_tracked_identifiers"),
				MaxRetries:            v.GetInt("resilience.rate_limit.max_retries"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 1*time.Minute)

	// Data defaults
	// Note: data.redis.addr is optional; empty means memory-only rate limiting
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "")
	v.SetDefault("data.redis.dial_timeout", 5*time.Second)
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is optional; empty disables audit persistence

	// Resilience defaults
	v.SetDefault("resilience.rate_limit.policy", "fail_open")
	v.SetDefault("resilience.rate_limit.queue_drain_interval", 100*time.Millisecond)
	v.SetDefault("resilience.rate_limit.probe_interval", 5*time.Second)
	v.SetDefault("resilience.rate_limit.memory_sweep_interval", 1*time.Minute)
	v.SetDefault("resilience.rate_limit.max_tracked_identifiers", 4096)
	v.SetDefault("resilience.rate_limit.max_retries", 3)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that the loaded configuration is coherent.
func Validate(bc *Bootstrap) error {
	if bc.Resilience == nil || bc.Resilience.RateLimit == nil {
		return fmt.Errorf("missing resilience.rate_limit configuration")
	}
	rl := bc.Resilience.RateLimit

	if err := validation.Validate(rl.Policy,
		validation.Required,
		validation.In("fail_open", "fail_closed"),
	); err != nil {
		return fmt.Errorf("invalid resilience.rate_limit.policy %q: %w", rl.Policy, err)
	}

	if err := validation.Validate(rl.MaxTrackedIdentifiers, validation.Min(16)); err != nil {
		return fmt.Errorf("invalid resilience.rate_limit.max_tracked_identifiers: %w", err)
	}

	if err := validation.Validate(rl.MaxRetries, validation.Min(1)); err != nil {
		return fmt.Errorf("invalid resilience.rate_limit.max_retries: %w", err)
	}

	if rl.QueueDrainInterval.AsDuration() <= 0 {
		return fmt.Errorf("resilience.rate_limit.queue_drain_interval must be positive")
	}

	if bc.Log != nil {
		if err := validation.Validate(bc.Log.Format,
			validation.In("json", "console", ""),
		); err != nil {
			return fmt.Errorf("invalid log.format %q: %w", bc.Log.Format, err)
		}
	}

	return nil
}
