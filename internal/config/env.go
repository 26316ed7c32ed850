package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files (or ./.env) without overriding
// variables already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	return godotenv.Load(files...)
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if addr := os.Getenv("SPANCACHE_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	} else if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Address = ":" + strconv.Itoa(p)
		}
	}

	if limit := os.Getenv("SPANCACHE_RATE_LIMIT"); limit != "" {
		if v, err := strconv.ParseFloat(limit, 64); err == nil {
			cfg.Server.RateLimit = v
		}
	}

	if logLevel := os.Getenv("SPANCACHE_LOG_LEVEL"); logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat := os.Getenv("SPANCACHE_LOG_FORMAT"); logFormat != "" {
		cfg.Log.Format = logFormat
	}

	// Labeler
	if url := os.Getenv("SPANCACHE_LABELER_URL"); url != "" {
		cfg.Labeler.URL = url
	}
	if timeout := os.Getenv("SPANCACHE_LABELER_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Labeler.Timeout = d
		}
	}
	if rps := os.Getenv("SPANCACHE_LABELER_RATE"); rps != "" {
		if r, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.Labeler.RatePerSecond = r
		}
	}

	// Cache settings
	if entries := os.Getenv("SPANCACHE_CACHE_MAX_ENTRIES"); entries != "" {
		if n, err := strconv.Atoi(entries); err == nil {
			cfg.Cache.MaxEntries = n
		}
	}
	if maxAge := os.Getenv("SPANCACHE_CACHE_MAX_AGE"); maxAge != "" {
		if d, err := time.ParseDuration(maxAge); err == nil {
			cfg.Cache.MaxAge = d
		}
	}
	if compression := os.Getenv("SPANCACHE_CACHE_COMPRESSION"); compression != "" {
		cfg.Cache.Compression = compression
	}

	// Storage
	if driver := os.Getenv("SPANCACHE_STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if path := os.Getenv("SPANCACHE_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if dsn := os.Getenv("SPANCACHE_STORAGE_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if bucket := os.Getenv("SPANCACHE_S3_BUCKET"); bucket != "" {
		cfg.Storage.S3.Bucket = bucket
	}
	if endpoint := os.Getenv("SPANCACHE_S3_ENDPOINT"); endpoint != "" {
		cfg.Storage.S3.Endpoint = endpoint
	}
	if region := os.Getenv("SPANCACHE_S3_REGION"); region != "" {
		cfg.Storage.S3.Region = region
	}
	if key := os.Getenv("SPANCACHE_S3_ACCESS_KEY"); key != "" {
		cfg.Storage.S3.AccessKey = key
	}
	if secret := os.Getenv("SPANCACHE_S3_SECRET_KEY"); secret != "" {
		cfg.Storage.S3.SecretKey = secret
	}

	// Prediction
	if enabled := os.Getenv("SPANCACHE_PREDICT_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Predict.Enabled = b
		}
	}
	if mode := os.Getenv("SPANCACHE_IDLE_MODE"); mode != "" {
		cfg.Predict.IdleMode = mode
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
