package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/spancache/internal/cache"
	"github.com/FairForge/spancache/internal/idle"
	"github.com/FairForge/spancache/internal/kvstore"
	"github.com/FairForge/spancache/internal/logging"
	"github.com/FairForge/spancache/internal/predict"
	"github.com/FairForge/spancache/internal/version"
)

type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Log      logging.LoggerConfig `yaml:"log"`
	Labeler  LabelerConfig        `yaml:"labeler"`
	Cache    CacheConfig          `yaml:"cache"`
	Versions version.Versions     `yaml:"versions"`
	Storage  kvstore.Config       `yaml:"storage"`
	Predict  predict.Config       `yaml:"predict"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type LabelerConfig struct {
	URL                  string        `yaml:"url"`
	Timeout              time.Duration `yaml:"timeout"`
	RatePerSecond        float64       `yaml:"rate_per_second"`
	Burst                int           `yaml:"burst"`
	DefaultMaxSpans      int           `yaml:"default_max_spans"`
	DefaultMinConfidence float64       `yaml:"default_min_confidence"`
}

type CacheConfig struct {
	Namespace        string        `yaml:"namespace"`
	MaxEntries       int           `yaml:"max_entries"`
	MaxAge           time.Duration `yaml:"max_age"`
	Compression      string        `yaml:"compression"`
	HydrationTimeout time.Duration `yaml:"hydration_timeout"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       50,
			RateBurst:       100,
			MaxBodyBytes:    1 << 20,
		},
		Log: logging.LoggerConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatJSON,
		},
		Labeler: LabelerConfig{
			Timeout:              30 * time.Second,
			RatePerSecond:        0,
			Burst:                1,
			DefaultMaxSpans:      20,
			DefaultMinConfidence: 0.5,
		},
		Cache: CacheConfig{
			Namespace:        cache.DefaultNamespace,
			MaxEntries:       cache.DefaultMaxEntries,
			MaxAge:           cache.DefaultMaxAge,
			Compression:      cache.CompressionNone,
			HydrationTimeout: cache.DefaultHydrationTimeout,
		},
		Versions: version.Versions{
			Taxonomy:       "1",
			PromptTemplate: "1",
			CacheFormat:    "2",
		},
		Storage: kvstore.Config{
			Driver: kvstore.DriverMemory,
		},
		Predict: predict.DefaultConfig(),
	}
}

// Load reads a YAML config file over the defaults. ${VAR} references in the file are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Cache.MaxEntries < 1 {
		errs = append(errs, fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries))
	}
	if c.Cache.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_age must be positive, got %s", c.Cache.MaxAge))
	}
	if c.Cache.Namespace == "" {
		errs = append(errs, errors.New("cache.namespace is required"))
	}
	if c.Cache.Namespace == version.StorageKey {
		errs = append(errs, fmt.Errorf("cache.namespace must differ from %q", version.StorageKey))
	}
	switch c.Cache.Compression {
	case "", cache.CompressionNone, cache.CompressionSnappy, cache.CompressionZstd:
	default:
		errs = append(errs, fmt.Errorf("cache.compression: unsupported %q", c.Cache.Compression))
	}

	switch c.Storage.Driver {
	case "", kvstore.DriverMemory:
	case kvstore.DriverFile, kvstore.DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver))
		}
	case kvstore.DriverPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres driver"))
		}
	case kvstore.DriverS3:
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown %q", c.Storage.Driver))
	}

	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit must not be negative"))
	}
	if c.Server.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes))
	}
	if c.Labeler.RatePerSecond < 0 {
		errs = append(errs, errors.New("labeler.rate_per_second must not be negative"))
	}
	if c.Predict.SimilarityThreshold < 0 || c.Predict.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("predict.similarity_threshold must be within [0,1], got %v", c.Predict.SimilarityThreshold))
	}
	switch c.Predict.IdleMode {
	case "", idle.ModeActivity, idle.ModeFallback:
	default:
		errs = append(errs, fmt.Errorf("predict.idle_mode: unknown %q", c.Predict.IdleMode))
	}

	return errors.Join(errs...)
}
