// Package api exposes the span cache and the predictor over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/FairForge/spancache/internal/cache"
	"github.com/FairForge/spancache/internal/config"
	"github.com/FairForge/spancache/internal/engine"
	"github.com/FairForge/spancache/internal/predict"
)

// Version is set at build time
var Version = "dev"

type Server struct {
	config     config.ServerConfig
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server

	engine    *engine.Engine
	cache     *cache.SpanCache
	predictor *predict.Service

	metrics   *Metrics
	limiter   *RateLimiter
	startTime time.Time
}

// ServerOption configures the server
type ServerOption func(*Server)

// WithMetrics records HTTP metrics on m instead of a private registry
func WithMetrics(m *Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

func NewServer(cfg config.ServerConfig, eng *engine.Engine, c *cache.SpanCache, p *predict.Service, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		config:    cfg,
		logger:    logger.Named("api"),
		router:    mux.NewRouter(),
		engine:    eng,
		cache:     c,
		predictor: p,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	if s.limiter != nil {
		v1.Use(mux.MiddlewareFunc(RateLimitMiddleware(s.limiter, s.metrics)))
	}

	v1.HandleFunc("/spans", s.handleLabel).Methods("POST")

	v1.HandleFunc("/cache/snapshot", s.handleCacheSnapshot).Methods("GET")
	v1.HandleFunc("/cache/hydrate", s.handleCacheHydrate).Methods("POST")
	v1.HandleFunc("/cache", s.handleCacheClear).Methods("DELETE")

	v1.HandleFunc("/predictions", s.handlePredictions).Methods("GET")
	v1.HandleFunc("/predictions/stats", s.handlePredictionStats).Methods("GET")
	v1.HandleFunc("/predictions/prewarm", s.handlePreWarm).Methods("POST")
	v1.HandleFunc("/predictions", s.handlePredictionsClear).Methods("DELETE")

	s.router.Use(requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
}

// Handler returns the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.cache.Stats()
	health := map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(s.startTime).Seconds(),
		"entries": stats.Entries,
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	})
}

func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("address", s.config.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
