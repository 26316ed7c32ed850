package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/FairForge/spancache/internal/cache"
	"github.com/FairForge/spancache/internal/config"
	"github.com/FairForge/spancache/internal/kvstore"
	"github.com/FairForge/spancache/internal/logging"
	"github.com/FairForge/spancache/internal/version"
)

// loadConfig layers defaults, the optional YAML file, .env and SPANCACHE_* variables
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app holds what every command needs: config, logger, the persistent store and the cache
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	store    kvstore.Store
	cache    *cache.SpanCache
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := kvstore.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	codec, err := cache.NewCodec(cfg.Cache.Compression)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	gate := version.NewGate(cfg.Versions, logger)
	c := cache.New(ctx, store, gate, cache.Options{
		Namespace:        cfg.Cache.Namespace,
		MaxEntries:       cfg.Cache.MaxEntries,
		MaxAge:           cfg.Cache.MaxAge,
		HydrationTimeout: cfg.Cache.HydrationTimeout,
		Codec:            codec,
		Logger:           logger,
		Metrics:          cache.NewMetrics(registry),
	})

	return &app{cfg: cfg, logger: logger, registry: registry, store: store, cache: c}, nil
}

// close writes the pending cache snapshot and releases the store
func (a *app) close(ctx context.Context) error {
	err := a.cache.Close(ctx)
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	_ = a.logger.Sync()
	return err
}
