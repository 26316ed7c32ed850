// Package engine routes labeling requests through the span cache and feeds the predictor.
package engine

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/FairForge/spancache/internal/cache"
	"github.com/FairForge/spancache/internal/fingerprint"
	"github.com/FairForge/spancache/internal/idle"
	"github.com/FairForge/spancache/internal/labeling"
	"github.com/FairForge/spancache/internal/predict"
)

const maxPrewarmedKeys = 1024

// Response is the answer to one labeling request
type Response struct {
	Key       string          `json:"key"`
	Spans     []labeling.Span `json:"spans"`
	Meta      map[string]any  `json:"meta,omitempty"`
	Signature string          `json:"signature"`
	Cached    bool            `json:"cached"`
}

// Engine answers labeling requests from the cache, labels misses once per key and
// pre-warms predicted requests in the background
type Engine struct {
	cache     *cache.SpanCache
	predictor *predict.Service
	label     labeling.LabelFunc
	activity  *idle.ActivityScheduler
	logger    *zap.Logger

	defaultMaxSpans      int
	defaultMinConfidence float64

	group singleflight.Group

	mu        sync.Mutex
	prewarmed map[string]struct{}
	closed    bool
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures the engine
type Option func(*Engine)

// WithActivity brackets foreground requests so the scheduler can tell when the process is idle
func WithActivity(s *idle.ActivityScheduler) Option {
	return func(e *Engine) {
		e.activity = s
	}
}

// WithDefaults fills MaxSpans and MinConfidence on payloads that leave them unset.
// Predicted requests carry neither, so both paths must agree for keys to match.
func WithDefaults(maxSpans int, minConfidence float64) Option {
	return func(e *Engine) {
		e.defaultMaxSpans = maxSpans
		e.defaultMinConfidence = minConfidence
	}
}

// New creates an engine
func New(c *cache.SpanCache, predictor *predict.Service, label labeling.LabelFunc, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cache:     c,
		predictor: predictor,
		label:     label,
		logger:    logger.Named("engine"),
		prewarmed: make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Label answers a foreground request and then pre-warms predictions in the background
func (e *Engine) Label(ctx context.Context, p labeling.Payload) (Response, error) {
	if strings.TrimSpace(p.Text) == "" {
		return Response{}, WrapError(ErrInvalidInput, "text is empty")
	}
	if e.isClosed() {
		return Response{}, ErrClosed
	}

	if e.activity != nil {
		e.activity.Begin()
	}
	resp, err := e.resolve(ctx, e.withDefaults(p), true)
	if e.activity != nil {
		e.activity.End()
	}
	if err != nil {
		return Response{}, err
	}

	e.schedulePreWarm()
	return resp, nil
}

// PreWarm runs one pre-warm pass and waits for it
func (e *Engine) PreWarm(ctx context.Context) {
	e.predictor.PreWarmCache(ctx, e.prefetch)
}

// ClearCache empties the span cache
func (e *Engine) ClearCache() {
	e.cache.Clear()

	e.mu.Lock()
	e.prewarmed = make(map[string]struct{})
	e.mu.Unlock()
}

// Close stops background pre-warming and writes the latest cache snapshot
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	return e.cache.Flush(ctx)
}

func (e *Engine) resolve(ctx context.Context, p labeling.Payload, foreground bool) (Response, error) {
	key := string(fingerprint.Of(p))
	logger := e.logger.With(zap.String("key", key))
	if id, ok := RequestIDFromContext(ctx); ok {
		logger = logger.With(zap.String("request_id", id))
	}

	if entry, ok := e.cache.Get(p); ok {
		if foreground {
			e.record(p, true)
			if e.takePrewarmed(key) {
				e.predictor.RecordPredictionHit()
			}
		}
		logger.Debug("cache hit", zap.Bool("foreground", foreground))
		return Response{Key: key, Spans: entry.Spans, Meta: entry.Meta, Signature: entry.Signature, Cached: true}, nil
	}

	v, err, shared := e.group.Do(key, func() (any, error) {
		result, err := e.label(ctx, p)
		if err != nil {
			return nil, err
		}
		if result.Spans == nil {
			result.Spans = []labeling.Span{}
		}
		if result.Signature == "" {
			result.Signature = fingerprint.Signature(p.Text)
		}
		e.cache.Set(p, result)
		return result, nil
	})
	if err != nil {
		logger.Warn("labeling failed", zap.Bool("foreground", foreground), zap.Error(err))
		return Response{}, &LabelError{Key: key, Err: err}
	}
	result := v.(labeling.Result)

	if foreground {
		e.record(p, false)
		e.forgetPrewarmed(key)
	} else {
		e.markPrewarmed(key)
	}
	logger.Debug("cache miss labeled", zap.Bool("foreground", foreground), zap.Bool("shared", shared))

	return Response{Key: key, Spans: result.Spans, Meta: result.Meta, Signature: result.Signature}, nil
}

// prefetch is the pre-warm fetch function; it goes through the same path as foreground requests
func (e *Engine) prefetch(ctx context.Context, req predict.Request) error {
	p := e.withDefaults(labeling.Payload{
		Text:            req.Text,
		Policy:          req.Policy,
		TemplateVersion: req.TemplateVersion,
	})
	_, err := e.resolve(ctx, p, req.Priority)
	return err
}

func (e *Engine) schedulePreWarm() {
	if e.predictor.PreWarming() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.predictor.PreWarmCache(e.ctx, e.prefetch)
	}()
}

func (e *Engine) record(p labeling.Payload, hit bool) {
	e.predictor.RecordRequest(predict.Request{
		Text:            p.Text,
		Policy:          p.Policy,
		TemplateVersion: p.TemplateVersion,
		CacheHit:        hit,
		Priority:        true,
	})
}

func (e *Engine) withDefaults(p labeling.Payload) labeling.Payload {
	if p.MaxSpans == 0 {
		p.MaxSpans = e.defaultMaxSpans
	}
	if p.MinConfidence == 0 {
		p.MinConfidence = e.defaultMinConfidence
	}
	return p
}

func (e *Engine) markPrewarmed(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prewarmed) >= maxPrewarmedKeys {
		e.prewarmed = make(map[string]struct{})
	}
	e.prewarmed[key] = struct{}{}
}

func (e *Engine) takePrewarmed(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.prewarmed[key]; !ok {
		return false
	}
	delete(e.prewarmed, key)
	return true
}

func (e *Engine) forgetPrewarmed(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.prewarmed, key)
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
