package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/spancache/internal/cache"
	"github.com/FairForge/spancache/internal/kvstore"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, 24*time.Hour, cfg.Cache.MaxAge)
	assert.Equal(t, "promptBuilder.spanLabelingCache.v2", cfg.Cache.Namespace)
	assert.Equal(t, 50, cfg.Predict.MaxHistory)
	assert.Equal(t, 2, cfg.Predict.MinFrequency)
	assert.Equal(t, 5, cfg.Predict.PredictionWindow)
	assert.Equal(t, 0.8, cfg.Predict.SimilarityThreshold)
	assert.Equal(t, 2*time.Second, cfg.Predict.IdleTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		// Arrange
		path := writeFile(t, "spancache.yaml", `
server:
  address: ":9000"
cache:
  max_entries: 10
  max_age: 2h
  compression: zstd
storage:
  driver: sqlite
  path: /tmp/spancache.db
predict:
  idle_mode: fallback
`)

		// Act
		cfg, err := Load(path)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Address)
		assert.Equal(t, 10, cfg.Cache.MaxEntries)
		assert.Equal(t, 2*time.Hour, cfg.Cache.MaxAge)
		assert.Equal(t, cache.CompressionZstd, cfg.Cache.Compression)
		assert.Equal(t, kvstore.DriverSQLite, cfg.Storage.Driver)
		assert.Equal(t, "fallback", cfg.Predict.IdleMode)
		assert.Equal(t, 0.8, cfg.Predict.SimilarityThreshold, "unset keys keep defaults")
		assert.NoError(t, cfg.Validate())
	})

	t.Run("expands environment references", func(t *testing.T) {
		t.Setenv("TEST_SPANCACHE_DSN", "postgres://cache@localhost/spans")
		path := writeFile(t, "spancache.yaml", `
storage:
  driver: postgres
  dsn: ${TEST_SPANCACHE_DSN}
`)

		cfg, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, "postgres://cache@localhost/spans", cfg.Storage.DSN)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "cache: [unclosed")

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero entries", func(c *Config) { c.Cache.MaxEntries = 0 }, "cache.max_entries"},
		{"zero age", func(c *Config) { c.Cache.MaxAge = 0 }, "cache.max_age"},
		{"namespace collides with version key", func(c *Config) { c.Cache.Namespace = "span_cache_version" }, "cache.namespace"},
		{"unknown compression", func(c *Config) { c.Cache.Compression = "lz4" }, "cache.compression"},
		{"file without path", func(c *Config) { c.Storage.Driver = kvstore.DriverFile }, "storage.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = kvstore.DriverPostgres }, "storage.dsn"},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = kvstore.DriverS3 }, "storage.s3.bucket"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"bad threshold", func(c *Config) { c.Predict.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"bad idle mode", func(c *Config) { c.Predict.IdleMode = "sometimes" }, "idle_mode"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "invalid level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	// Arrange
	t.Setenv("SPANCACHE_ADDRESS", ":7000")
	t.Setenv("SPANCACHE_LOG_LEVEL", "debug")
	t.Setenv("SPANCACHE_LABELER_URL", "http://labeler:8000/label")
	t.Setenv("SPANCACHE_CACHE_MAX_ENTRIES", "25")
	t.Setenv("SPANCACHE_CACHE_MAX_AGE", "90m")
	t.Setenv("SPANCACHE_STORAGE_DRIVER", "file")
	t.Setenv("SPANCACHE_STORAGE_PATH", "/var/lib/spancache")
	t.Setenv("SPANCACHE_PREDICT_ENABLED", "false")
	t.Setenv("SPANCACHE_CACHE_COMPRESSION", "snappy")
	cfg := Default()

	// Act
	LoadFromEnv(cfg)

	// Assert
	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://labeler:8000/label", cfg.Labeler.URL)
	assert.Equal(t, 25, cfg.Cache.MaxEntries)
	assert.Equal(t, 90*time.Minute, cfg.Cache.MaxAge)
	assert.Equal(t, kvstore.DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/spancache", cfg.Storage.Path)
	assert.False(t, cfg.Predict.Enabled)
	assert.Equal(t, "snappy", cfg.Cache.Compression)
}

func TestLoadFromEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("SPANCACHE_CACHE_MAX_ENTRIES", "lots")
	t.Setenv("SPANCACHE_CACHE_MAX_AGE", "forever")
	cfg := Default()

	LoadFromEnv(cfg)

	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, 24*time.Hour, cfg.Cache.MaxAge)
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("loads without overriding", func(t *testing.T) {
		t.Setenv("SPANCACHE_LOG_LEVEL", "warn")
		path := writeFile(t, ".env", "SPANCACHE_LOG_LEVEL=debug\nSPANCACHE_TEST_DOTENV=loaded\n")
		t.Cleanup(func() { _ = os.Unsetenv("SPANCACHE_TEST_DOTENV") })

		require.NoError(t, LoadDotEnv(path))

		assert.Equal(t, "warn", os.Getenv("SPANCACHE_LOG_LEVEL"))
		assert.Equal(t, "loaded", os.Getenv("SPANCACHE_TEST_DOTENV"))
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		assert.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
	})
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("SPANCACHE_TEST_VALUE", "set")

	assert.Equal(t, "set", GetEnvOrDefault("SPANCACHE_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("SPANCACHE_TEST_UNSET", "fallback"))
}
