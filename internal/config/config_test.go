package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("loads valid config", func(t *testing.T) {
		path := writeConfigFile(t, `{
			"database_url": "postgres://localhost/apply",
			"poll_interval": "5s",
			"max_attempts": 5,
			"aggressive_rate_limits": true
		}`)

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost/apply", cfg.DatabaseURL)
		assert.Equal(t, "5s", cfg.PollInterval)
		assert.Equal(t, 5, cfg.MaxAttempts)
		assert.True(t, cfg.AggressiveRateLimits)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := LoadConfig("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := writeConfigFile(t, `{not json`)
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty config", Config{}, false},
		{"valid durations", Config{PollInterval: "2s", LockLease: "10m"}, false},
		{"bad poll interval", Config{PollInterval: "soon"}, true},
		{"bad lock lease", Config{LockLease: "whenever"}, true},
		{"negative max attempts", Config{MaxAttempts: -1}, true},
		{"priority out of range", Config{DefaultPriority: 150}, true},
		{"negative chunk size", Config{ChunkSize: -5}, true},
		{"negative concurrency", Config{MaxConcurrency: -1}, true},
		{"negative daily cap", Config{GlobalDailyCap: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("checkpoint dir must be a directory", func(t *testing.T) {
		file := writeConfigFile(t, `{}`)
		cfg := Config{CheckpointDir: file}
		assert.Error(t, cfg.Validate())
	})
}

func TestConfig_MergeWithDefaults(t *testing.T) {
	cfg := Config{
		DatabaseURL: "postgres://explicit/db",
		ChunkSize:   10,
	}
	defaults := Config{
		DatabaseURL:          "postgres://default/db",
		WorkerID:             "worker-1",
		PollInterval:         "2s",
		ChunkSize:            25,
		MaxConcurrency:       7,
		AggressiveRateLimits: true,
	}

	merged := cfg.MergeWithDefaults(defaults)

	assert.Equal(t, "postgres://explicit/db", merged.DatabaseURL, "explicit value wins")
	assert.Equal(t, "worker-1", merged.WorkerID, "empty value filled from defaults")
	assert.Equal(t, "2s", merged.PollInterval)
	assert.Equal(t, 10, merged.ChunkSize, "non-zero value wins")
	assert.Equal(t, 7, merged.MaxConcurrency)
	assert.True(t, merged.AggressiveRateLimits, "true default promotes")
}

func TestConfig_DurationAccessors(t *testing.T) {
	cfg := Config{PollInterval: "5s"}
	assert.Equal(t, 5*time.Second, cfg.PollIntervalOr(2*time.Second))
	assert.Equal(t, 10*time.Minute, cfg.LockLeaseOr(10*time.Minute), "unset uses fallback")

	bad := Config{LockLease: "garbage"}
	assert.Equal(t, time.Minute, bad.LockLeaseOr(time.Minute), "unparseable uses fallback")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("AGGRESSIVE_RATE_LIMITS", "true")
	t.Setenv("GLOBAL_DAILY_CAP", "40")
	t.Setenv("MAX_ATTEMPTS", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.True(t, cfg.AggressiveRateLimits)
	assert.Equal(t, 40, cfg.GlobalDailyCap)
	assert.Equal(t, 0, cfg.MaxAttempts, "unparseable env value falls back")
}
