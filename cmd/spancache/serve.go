package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/spancache/internal/api"
	"github.com/FairForge/spancache/internal/engine"
	"github.com/FairForge/spancache/internal/idle"
	"github.com/FairForge/spancache/internal/labeling"
	"github.com/FairForge/spancache/internal/predict"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	cfg := a.cfg
	logger := a.logger

	if cfg.Labeler.URL == "" {
		_ = a.close(context.Background())
		return errors.New("labeler.url is required to serve")
	}
	labeler := labeling.NewClient(labeling.ClientConfig{
		URL:           cfg.Labeler.URL,
		Timeout:       cfg.Labeler.Timeout,
		RatePerSecond: cfg.Labeler.RatePerSecond,
		Burst:         cfg.Labeler.Burst,
	}, logger)

	scheduler := idle.New(cfg.Predict.IdleMode)
	predictor := predict.NewService(cfg.Predict, scheduler, logger,
		predict.WithMetrics(predict.NewMetrics(a.registry)))

	opts := []engine.Option{engine.WithDefaults(cfg.Labeler.DefaultMaxSpans, cfg.Labeler.DefaultMinConfidence)}
	if activity, ok := scheduler.(*idle.ActivityScheduler); ok {
		opts = append(opts, engine.WithActivity(activity))
	}
	eng := engine.New(a.cache, predictor, labeler.Label, logger, opts...)

	// Restore the last snapshot before the first request arrives
	a.cache.Hydrate()

	server := api.NewServer(cfg.Server, eng, a.cache, predictor, logger,
		api.WithMetrics(api.NewMetrics(a.registry)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err = <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Error("shutdown error", zap.Error(serr))
	}
	if eerr := eng.Close(shutdownCtx); eerr != nil {
		logger.Warn("failed to flush span cache", zap.Error(eerr))
	}
	if cerr := a.close(shutdownCtx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
