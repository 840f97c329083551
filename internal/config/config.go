// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents the engine configuration that can be loaded from a JSON
// file. All fields are optional; missing values use defaults or must be
// provided via CLI flags.
type Config struct {
	// Storage
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL

	// Worker loop
	WorkerID        string `json:"worker_id,omitempty"`        // Stable worker identity; defaults to host+pid
	PollInterval    string `json:"poll_interval,omitempty"`    // Sleep between empty polls (duration string)
	LockLease       string `json:"lock_lease,omitempty"`       // Age after which an in-progress lock is orphaned
	MaxAttempts     int    `json:"max_attempts,omitempty"`     // Default attempt budget per queue item
	DefaultPriority int    `json:"default_priority,omitempty"` // Default enqueue priority (lower runs first)

	// Rate limiting
	AggressiveRateLimits bool `json:"aggressive_rate_limits,omitempty"` // Use the aggressive per-platform tables
	GlobalDailyCap       int  `json:"global_daily_cap,omitempty"`       // Total submissions per day across platforms

	// Batch
	ChunkSize      int    `json:"chunk_size,omitempty"`      // Items per batch chunk
	MaxConcurrency int    `json:"max_concurrency,omitempty"` // Concurrent platform groups per chunk
	CheckpointDir  string `json:"checkpoint_dir,omitempty"`  // Directory for batch checkpoint files

	// Behavior
	AutoSubmit bool `json:"auto_submit,omitempty"` // Submit applications instead of stopping at review
	Verbose    bool `json:"verbose,omitempty"`     // Print detailed progress information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a Config from environment variables. Used as the lowest
// layer under the config file and CLI flags.
func FromEnv() Config {
	return Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		WorkerID:             os.Getenv("WORKER_ID"),
		PollInterval:         os.Getenv("WORKER_POLL_INTERVAL"),
		LockLease:            os.Getenv("WORKER_LOCK_LEASE"),
		MaxAttempts:          getEnvInt("MAX_ATTEMPTS", 0),
		AggressiveRateLimits: getEnvBool("AGGRESSIVE_RATE_LIMITS", false),
		GlobalDailyCap:       getEnvInt("GLOBAL_DAILY_CAP", 0),
		CheckpointDir:        os.Getenv("CHECKPOINT_DIR"),
	}
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("config error: 'max_attempts' must be non-negative")
	}
	if c.DefaultPriority < 0 || c.DefaultPriority > 100 {
		return fmt.Errorf("config error: 'default_priority' must be between 0 and 100")
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("config error: 'chunk_size' must be non-negative")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("config error: 'max_concurrency' must be non-negative")
	}
	if c.GlobalDailyCap < 0 {
		return fmt.Errorf("config error: 'global_daily_cap' must be non-negative")
	}

	if c.PollInterval != "" {
		if _, err := time.ParseDuration(c.PollInterval); err != nil {
			return fmt.Errorf("config error: invalid 'poll_interval': %w", err)
		}
	}
	if c.LockLease != "" {
		if _, err := time.ParseDuration(c.LockLease); err != nil {
			return fmt.Errorf("config error: invalid 'lock_lease': %w", err)
		}
	}

	if c.CheckpointDir != "" {
		if info, err := os.Stat(c.CheckpointDir); err == nil && !info.IsDir() {
			return fmt.Errorf("config error: 'checkpoint_dir' is not a directory: %s", c.CheckpointDir)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. This is used to layer config file values over environment values.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.WorkerID == "" {
		result.WorkerID = defaults.WorkerID
	}
	if result.PollInterval == "" {
		result.PollInterval = defaults.PollInterval
	}
	if result.LockLease == "" {
		result.LockLease = defaults.LockLease
	}
	if result.CheckpointDir == "" {
		result.CheckpointDir = defaults.CheckpointDir
	}

	// Int fields: use default if zero
	if result.MaxAttempts == 0 {
		result.MaxAttempts = defaults.MaxAttempts
	}
	if result.DefaultPriority == 0 {
		result.DefaultPriority = defaults.DefaultPriority
	}
	if result.ChunkSize == 0 {
		result.ChunkSize = defaults.ChunkSize
	}
	if result.MaxConcurrency == 0 {
		result.MaxConcurrency = defaults.MaxConcurrency
	}
	if result.GlobalDailyCap == 0 {
		result.GlobalDailyCap = defaults.GlobalDailyCap
	}

	// Bool fields: cannot distinguish unset from false, so we only promote
	// a true default (CLI flags should always win for bools)
	if !result.AggressiveRateLimits {
		result.AggressiveRateLimits = defaults.AggressiveRateLimits
	}
	if !result.AutoSubmit {
		result.AutoSubmit = defaults.AutoSubmit
	}

	return result
}

// PollIntervalOr parses the configured poll interval, returning fallback when
// unset.
func (c *Config) PollIntervalOr(fallback time.Duration) time.Duration {
	return parseDurationOr(c.PollInterval, fallback)
}

// LockLeaseOr parses the configured lock lease, returning fallback when unset.
func (c *Config) LockLeaseOr(fallback time.Duration) time.Duration {
	return parseDurationOr(c.LockLease, fallback)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
