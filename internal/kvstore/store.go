// Package kvstore provides the durable key-value slot the span cache persists into.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a durable key-value slot. Values are opaque byte blobs written whole.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Drivers
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

// Config selects and configures a driver
type Config struct {
	Driver string   `yaml:"driver"`
	Path   string   `yaml:"path"` // file directory or sqlite database path
	DSN    string   `yaml:"dsn"`  // postgres
	Table  string   `yaml:"table"`
	S3     S3Config `yaml:"s3"`
}

// S3Config configures the S3 driver
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// Open creates the store named by cfg.Driver
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		return NewFileStore(cfg.Path)
	case DriverSQLite:
		return NewSQLite(cfg.Path)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DSN, cfg.Table)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("kvstore: unknown driver %q", cfg.Driver)
	}
}

const defaultTable = "span_cache_kv"

func tableName(name string) string {
	if name == "" {
		return defaultTable
	}
	return name
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
