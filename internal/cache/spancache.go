// internal/cache/spancache.go
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/spancache/internal/fingerprint"
	"github.com/FairForge/spancache/internal/kvstore"
	"github.com/FairForge/spancache/internal/labeling"
	"github.com/FairForge/spancache/internal/version"
)

// Defaults for Options
const (
	DefaultNamespace        = "promptBuilder.spanLabelingCache.v2"
	DefaultMaxEntries       = 50
	DefaultMaxAge           = 24 * time.Hour
	DefaultHydrationTimeout = 10 * time.Second
)

// Options configures a SpanCache
type Options struct {
	Namespace        string
	MaxEntries       int
	MaxAge           time.Duration
	HydrationTimeout time.Duration
	Codec            Codec
	Clock            func() time.Time
	Logger           *zap.Logger
	Metrics          *Metrics
}

// SpanCache caches labeling results by request fingerprint. It is bounded by entry count
// and entry age, persists itself in the background and restores itself from the last
// persisted snapshot on first use.
type SpanCache struct {
	mu sync.Mutex

	store     *Store
	gate      *version.Gate
	persister *Persister

	maxAge           time.Duration
	hydrationTimeout time.Duration
	now              func() time.Time
	logger           *zap.Logger
	metrics          *Metrics

	hydration *hydration
	dirty     map[string]struct{}
	cleared   bool

	hits     int64
	misses   int64
	hydrated int64
}

// New creates a span cache over kv. The version gate is checked first: a changed token
// removes the persisted snapshot before anything can be hydrated from it.
func New(ctx context.Context, kv kvstore.Store, gate *version.Gate, opts Options) *SpanCache {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.HydrationTimeout <= 0 {
		opts.HydrationTimeout = DefaultHydrationTimeout
	}
	if opts.Codec == nil {
		opts.Codec = plainCodec{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("spancache")

	gate.Check(ctx, kv, opts.Namespace)

	return &SpanCache{
		store:            NewStore(opts.MaxEntries),
		gate:             gate,
		persister:        newPersister(kv, opts.Namespace, opts.Codec, logger, opts.Metrics),
		maxAge:           opts.MaxAge,
		hydrationTimeout: opts.HydrationTimeout,
		now:              opts.Clock,
		logger:           logger,
		metrics:          opts.Metrics,
	}
}

// Get returns the cached entry for a payload. Entries stamped with another version token
// or older than the maximum age are misses; expired entries are also removed. A hit
// becomes the most recently used entry.
func (c *SpanCache) Get(p labeling.Payload) (*Entry, bool) {
	key := string(fingerprint.Of(p))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureHydratedLocked()

	entry, ok := c.store.Peek(key)
	if ok && c.expired(entry, c.now()) {
		c.store.Delete(key)
		if c.dirty != nil {
			c.dirty[key] = struct{}{}
		}
		c.metrics.setEntries(c.store.Len())
		c.persister.ScheduleWrite(c.store.Entries())
		ok = false
	}
	if !ok || !c.gate.Matches(entry.FormatVersion) {
		c.misses++
		c.metrics.recordMiss()
		return nil, false
	}

	c.store.Promote(key)
	c.hits++
	c.metrics.recordHit()
	return entry.clone(), true
}

// Set stores a labeling result as the most recently used entry, evicts the least recently
// used entries beyond capacity and schedules a background write of the whole cache.
func (c *SpanCache) Set(p labeling.Payload, result labeling.Result) {
	signature := result.Signature
	if signature == "" {
		signature = fingerprint.Signature(p.Text)
	}
	spans := make([]labeling.Span, len(result.Spans))
	copy(spans, result.Spans)

	entry := &Entry{
		Key:           fingerprint.Of(p),
		Spans:         spans,
		Meta:          result.Meta,
		Signature:     signature,
		FormatVersion: c.gate.Token(),
		CreatedAtMs:   c.now().UnixMilli(),
		TextPreview:   preview(p.Text),
	}

	c.mu.Lock()
	c.ensureHydratedLocked()

	evicted := c.store.Put(entry)
	if c.dirty != nil {
		c.dirty[string(entry.Key)] = struct{}{}
		for _, key := range evicted {
			c.dirty[key] = struct{}{}
		}
	}
	snapshot := c.store.Entries()
	c.metrics.recordEvictions(len(evicted))
	c.metrics.setEntries(c.store.Len())
	c.mu.Unlock()

	c.persister.ScheduleWrite(snapshot)
}

// Hydrate loads the persisted snapshot in the background. It is a no-op while a hydration
// is running or after one has finished; after Clear it loads again.
func (c *SpanCache) Hydrate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startHydrationLocked()
}

// WaitHydrated blocks until the current hydration finishes
func (c *SpanCache) WaitHydrated(ctx context.Context) error {
	c.mu.Lock()
	h := c.hydration
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastHydration returns the report of the current hydration once it has finished
func (c *SpanCache) LastHydration() (HydrationReport, bool) {
	c.mu.Lock()
	h := c.hydration
	c.mu.Unlock()

	if h == nil {
		return HydrationReport{}, false
	}
	select {
	case <-h.done:
		return h.report, true
	default:
		return HydrationReport{}, false
	}
}

// Clear empties the cache and removes the persisted snapshot before returning. The version
// token is kept. A running hydration is abandoned and Get/Set no longer hydrate on their own.
// Storage errors are logged, not returned.
func (c *SpanCache) Clear() {
	c.mu.Lock()
	c.store.Clear()
	c.hydration = nil
	c.dirty = nil
	c.cleared = true
	c.metrics.setEntries(0)
	c.mu.Unlock()

	if err := c.persister.Delete(context.Background()); err != nil {
		c.logger.Warn("failed to delete persisted span cache", zap.Error(err))
	}
	c.logger.Info("span cache cleared")
}

// GetSnapshot lists live entries, least recently used first and most recently used last
func (c *SpanCache) GetSnapshot() []SnapshotItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entries := c.store.Entries()
	items := make([]SnapshotItem, 0, len(entries))
	for _, e := range entries {
		if !c.gate.Matches(e.FormatVersion) || c.expired(e, now) {
			continue
		}
		items = append(items, SnapshotItem{Key: string(e.Key), TextPreview: e.TextPreview})
	}
	return items
}

// Stats returns cache statistics
func (c *SpanCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:   c.store.Len(),
		Capacity:  c.store.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.store.Evictions(),
		Hydrated:  c.hydrated,
	}
}

// Flush writes the latest pending snapshot and returns the storage error, if any
func (c *SpanCache) Flush(ctx context.Context) error {
	return c.persister.Flush(ctx)
}

// Close stops background persistence after writing what is pending
func (c *SpanCache) Close(ctx context.Context) error {
	return c.persister.Close(ctx)
}

func (c *SpanCache) ensureHydratedLocked() {
	if c.cleared {
		return
	}
	c.startHydrationLocked()
}

func (c *SpanCache) expired(e *Entry, now time.Time) bool {
	return now.UnixMilli()-e.CreatedAtMs > c.maxAge.Milliseconds()
}
