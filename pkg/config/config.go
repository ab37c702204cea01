// Package config handles gtrandb configuration via environment variables.
//
// Configuration is loaded from environment variables using LoadFromEnv() and
// can be validated with Validate() before use.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables:
//
//   - GTRANDB_ISOLATION_LEVEL="snapshot" or "serializable"
//   - GTRANDB_ENABLE_OPT_VALIDATION=true
//   - GTRANDB_ENABLE_INDEXING=true
//   - GTRANDB_POOL_SIZE=4096
//   - GTRANDB_POOL_ENABLED=true
//   - GTRANDB_OPT_VALID_TIMEOUT_ITERS=50
//   - GTRANDB_OPT_VALID_SLEEP=100us
//
// For a complete list, see the Config struct field documentation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all gtrandb configuration loaded from environment variables.
//
// Configuration is organized into logical sections:
//   - Isolation: isolation level and optimistic-validation toggle (§4.8, §6)
//   - Indexing: secondary-index buffer gating (§6)
//   - Pools: per-arena/value-store pool sizing (§5)
//   - Validation: optimistic wait-loop timing (§4.8)
//   - Logging: component logger configuration
//
// Use LoadFromEnv() to create a Config from environment variables.
type Config struct {
	Isolation  IsolationConfig
	Indexing   IndexingConfig
	Pools      PoolConfig
	Validation ValidationConfig
	Logging    LoggingConfig
}

// IsolationConfig controls §4.8 step 2's SNAPSHOT short-circuit.
type IsolationConfig struct {
	// Level is "snapshot" or "serializable".
	Level string
	// EnableOptValidation, if false, treats a VALIDATING peer conflict as an
	// immediate abort instead of entering the optimistic wait loop.
	EnableOptValidation bool
}

// IndexingConfig holds the enable_indexing knob (§6). It is loaded and
// reported by String, but this module keeps no secondary-index buffers, so
// nothing else reads it.
type IndexingConfig struct {
	Enabled bool
}

// PoolConfig holds pool settings (§5). They are validated and reported by
// String, but no component reads them: the value stores, MVCC lists and row
// lists do not pool, and pkg/pool keeps its own Config.
type PoolConfig struct {
	Enabled bool
	Size    int
}

// ValidationConfig times the optimistic wait loop (§4.8 step 6).
type ValidationConfig struct {
	TimeoutIters  int
	SleepInterval time.Duration
}

// LoggingConfig configures the per-subsystem *log.Logger instances.
type LoggingConfig struct {
	Level string
}

// LoadFromEnv builds a Config from environment variables, falling back to
// the documented defaults for anything unset.
func LoadFromEnv() *Config {
	cfg := &Config{}

	cfg.Isolation.Level = getEnv("GTRANDB_ISOLATION_LEVEL", "serializable")
	cfg.Isolation.EnableOptValidation = getEnvBool("GTRANDB_ENABLE_OPT_VALIDATION", true)

	cfg.Indexing.Enabled = getEnvBool("GTRANDB_ENABLE_INDEXING", false)

	cfg.Pools.Enabled = getEnvBool("GTRANDB_POOL_ENABLED", true)
	cfg.Pools.Size = getEnvInt("GTRANDB_POOL_SIZE", 4096)

	cfg.Validation.TimeoutIters = getEnvInt("GTRANDB_OPT_VALID_TIMEOUT_ITERS", 50)
	cfg.Validation.SleepInterval = getEnvDuration("GTRANDB_OPT_VALID_SLEEP", 100*time.Microsecond)

	cfg.Logging.Level = getEnv("GTRANDB_LOG_LEVEL", "info")

	return cfg
}

// Validate checks the configuration for internal consistency, returning the
// first problem found.
func (c *Config) Validate() error {
	if c.Isolation.Level != "snapshot" && c.Isolation.Level != "serializable" {
		return fmt.Errorf("invalid isolation level: %q", c.Isolation.Level)
	}
	if c.Pools.Enabled && c.Pools.Size <= 0 {
		return fmt.Errorf("invalid pool size: %d", c.Pools.Size)
	}
	if c.Validation.TimeoutIters <= 0 {
		return fmt.Errorf("invalid optimistic-validation timeout iterations: %d", c.Validation.TimeoutIters)
	}
	if c.Validation.SleepInterval <= 0 {
		return fmt.Errorf("invalid optimistic-validation sleep interval: %s", c.Validation.SleepInterval)
	}
	return nil
}

// String returns a representation of Config suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Isolation: %s, OptValidation: %v, Indexing: %v, Pool: %d, ValidTimeout: %d}",
		c.Isolation.Level, c.Isolation.EnableOptValidation,
		c.Indexing.Enabled, c.Pools.Size, c.Validation.TimeoutIters,
	)
}

// Helper functions for environment variable parsing, matching the teacher's
// getEnv* family.

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
