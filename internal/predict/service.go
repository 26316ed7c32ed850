// Package predict learns which labeling requests recur and pre-warms the cache for them
// while the process is idle.
package predict

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/spancache/internal/idle"
)

// Config holds prediction settings
type Config struct {
	Enabled             bool          `yaml:"enabled"`
	MaxHistory          int           `yaml:"max_history"`
	MinFrequency        int           `yaml:"min_frequency"`
	PredictionWindow    int           `yaml:"prediction_window"`
	FrequentLimit       int           `yaml:"frequent_limit"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	PatternTTL          time.Duration `yaml:"pattern_ttl"`
	RecencyDecay        time.Duration `yaml:"recency_decay"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	IdleMode            string        `yaml:"idle_mode"`
}

// DefaultConfig returns the default prediction settings
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		MaxHistory:          50,
		MinFrequency:        2,
		PredictionWindow:    5,
		FrequentLimit:       3,
		SimilarityThreshold: 0.8,
		PatternTTL:          time.Hour,
		RecencyDecay:        time.Hour,
		IdleTimeout:         idle.DefaultTimeout,
		IdleMode:            idle.ModeActivity,
	}
}

// FetchFunc labels a predicted request and stores the result in the cache
type FetchFunc func(ctx context.Context, req Request) error

// Stats holds prediction statistics
type Stats struct {
	TotalRequests           int64   `json:"totalRequests"`
	PatternsDetected        int64   `json:"patternsDetected"`
	PreWarmAttempts         int64   `json:"preWarmAttempts"`
	PreWarmSuccess          int64   `json:"preWarmSuccess"`
	CacheHitsFromPrediction int64   `json:"cacheHitsFromPrediction"`
	HistorySize             int     `json:"historySize"`
	PatternsTracked         int     `json:"patternsTracked"`
	PredictionAccuracy      float64 `json:"predictionAccuracy"`
}

// Service tracks requests, ranks likely next requests and pre-warms them
type Service struct {
	config    Config
	tracker   *Tracker
	ranker    *Ranker
	scheduler idle.Scheduler
	now       func() time.Time
	logger    *zap.Logger
	metrics   *Metrics

	preWarming atomic.Bool
	attempts   atomic.Int64
	successes  atomic.Int64
	hits       atomic.Int64
}

// ServiceOption configures the service
type ServiceOption func(*Service)

// WithClock sets the time source
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithMetrics sets the Prometheus metrics
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a prediction service. Zero numeric settings take their defaults.
func NewService(config Config, scheduler idle.Scheduler, logger *zap.Logger, opts ...ServiceOption) *Service {
	config = withDefaults(config)
	if scheduler == nil {
		scheduler = idle.New(config.IdleMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		config:  config,
		tracker: NewTracker(config.MaxHistory, config.MinFrequency, config.PatternTTL),
		ranker: NewRanker(config.PredictionWindow,
			&FrequencyStrategy{MinFrequency: config.MinFrequency, Limit: config.FrequentLimit, Decay: config.RecencyDecay},
			&SimilarityStrategy{Threshold: config.SimilarityThreshold},
		),
		scheduler: scheduler,
		now:       time.Now,
		logger:    logger.Named("predict"),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func withDefaults(c Config) Config {
	d := DefaultConfig()
	if c.MaxHistory <= 0 {
		c.MaxHistory = d.MaxHistory
	}
	if c.MinFrequency <= 0 {
		c.MinFrequency = d.MinFrequency
	}
	if c.PredictionWindow <= 0 {
		c.PredictionWindow = d.PredictionWindow
	}
	if c.FrequentLimit <= 0 {
		c.FrequentLimit = d.FrequentLimit
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.PatternTTL <= 0 {
		c.PatternTTL = d.PatternTTL
	}
	if c.RecencyDecay <= 0 {
		c.RecencyDecay = d.RecencyDecay
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	return c
}

// RecordRequest adds a request to the history and its pattern. Blank text is ignored.
func (s *Service) RecordRequest(req Request) {
	if s.tracker.Track(req, s.now()) {
		s.metrics.recordRequest()
	}
}

// RecordPredictionHit counts a cache hit served by a pre-warmed entry
func (s *Service) RecordPredictionHit() {
	s.hits.Add(1)
	s.metrics.recordPredictionHit()
}

// GetPredictions returns up to PredictionWindow candidates, most confident first. It needs
// at least two requests of history.
func (s *Service) GetPredictions() []Candidate {
	state := s.tracker.State()
	if state.HistorySize < 2 {
		return []Candidate{}
	}

	candidates := s.ranker.Rank(state, s.now())
	if candidates == nil {
		candidates = []Candidate{}
	}
	s.metrics.observePredictions(len(candidates))
	return candidates
}

// PreWarmCache fetches the current predictions one at a time, each after the scheduler
// reports idle. Only one pass runs at a time; fetch errors are counted and dropped.
func (s *Service) PreWarmCache(ctx context.Context, fetch FetchFunc) {
	if !s.config.Enabled {
		return
	}
	if !s.preWarming.CompareAndSwap(false, true) {
		return
	}
	defer s.preWarming.Store(false)

	candidates := s.GetPredictions()
	if len(candidates) == 0 {
		return
	}

	for i, c := range candidates {
		if !s.scheduler.WaitForIdle(ctx, s.config.IdleTimeout) {
			s.logger.Debug("pre-warm interrupted", zap.Int("remaining", len(candidates)-i))
			return
		}

		err := fetch(ctx, Request{
			Text:            c.Text,
			Policy:          c.Policy,
			TemplateVersion: c.TemplateVersion,
			Priority:        false,
		})
		s.attempts.Add(1)
		if err != nil {
			s.logger.Debug("pre-warm fetch failed",
				zap.String("pattern", c.Key),
				zap.String("reason", c.Reason),
				zap.Error(err))
			s.metrics.recordAttempt(false)
			continue
		}
		s.successes.Add(1)
		s.metrics.recordAttempt(true)
	}
}

// PreWarming reports whether a pre-warm pass is running
func (s *Service) PreWarming() bool {
	return s.preWarming.Load()
}

// GetStats returns prediction statistics
func (s *Service) GetStats() Stats {
	total, detected := s.tracker.Counters()
	history, patterns := s.tracker.Sizes()
	successes := s.successes.Load()
	hits := s.hits.Load()

	accuracy := 0.0
	if successes > 0 {
		accuracy = float64(hits) / float64(successes)
	}

	return Stats{
		TotalRequests:           total,
		PatternsDetected:        detected,
		PreWarmAttempts:         s.attempts.Load(),
		PreWarmSuccess:          successes,
		CacheHitsFromPrediction: hits,
		HistorySize:             history,
		PatternsTracked:         patterns,
		PredictionAccuracy:      accuracy,
	}
}

// Clear resets history, patterns and counters
func (s *Service) Clear() {
	s.tracker.Reset()
	s.attempts.Store(0)
	s.successes.Store(0)
	s.hits.Store(0)
}
