package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/spancache/internal/cache"
	"github.com/FairForge/spancache/internal/kvstore"
	"github.com/FairForge/spancache/internal/labeling"
	"github.com/FairForge/spancache/internal/predict"
	"github.com/FairForge/spancache/internal/version"
)

type fakeLabeler struct {
	mu      sync.Mutex
	calls   map[string]int
	err     error
	release chan struct{}
}

func newFakeLabeler() *fakeLabeler {
	return &fakeLabeler{calls: make(map[string]int)}
}

func (f *fakeLabeler) Label(ctx context.Context, p labeling.Payload) (labeling.Result, error) {
	f.mu.Lock()
	f.calls[p.Text]++
	err := f.err
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return labeling.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return labeling.Result{}, err
	}
	return labeling.Result{
		Spans: []labeling.Span{{Start: 0, End: len(p.Text), Category: "subject", Confidence: 0.9}},
		Meta:  map[string]any{"model": "test"},
	}, nil
}

func (f *fakeLabeler) Calls(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

// immediate is always idle
type immediate struct{}

func (immediate) WaitForIdle(ctx context.Context, _ time.Duration) bool {
	return ctx.Err() == nil
}

type fixture struct {
	engine    *Engine
	cache     *cache.SpanCache
	predictor *predict.Service
	labeler   *fakeLabeler
	kv        *kvstore.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	kv := kvstore.NewMemory()
	gate := version.NewGate(version.Versions{Taxonomy: "t1", PromptTemplate: "p1", CacheFormat: "c1"}, logger)
	c := cache.New(context.Background(), kv, gate, cache.Options{Logger: logger})
	predictor := predict.NewService(predict.DefaultConfig(), immediate{}, logger)
	labeler := newFakeLabeler()

	e := New(c, predictor, labeler.Label, logger, WithDefaults(20, 0.5))
	t.Cleanup(func() {
		_ = e.Close(context.Background())
		_ = c.Close(context.Background())
	})
	return &fixture{engine: e, cache: c, predictor: predictor, labeler: labeler, kv: kv}
}

func TestEngine_Label(t *testing.T) {
	t.Run("miss is labeled once then served from cache", func(t *testing.T) {
		// Arrange
		f := newFixture(t)
		p := labeling.Payload{Text: "A neon city skyline", TemplateVersion: "v1"}

		// Act
		first, err := f.engine.Label(context.Background(), p)
		require.NoError(t, err)
		second, err := f.engine.Label(context.Background(), p)
		require.NoError(t, err)

		// Assert
		assert.False(t, first.Cached)
		assert.True(t, second.Cached)
		assert.Equal(t, first.Spans, second.Spans)
		assert.Equal(t, first.Signature, second.Signature)
		assert.NotEmpty(t, first.Signature)
		assert.Equal(t, first.Key, second.Key)
		assert.Equal(t, 1, f.labeler.Calls("A neon city skyline"))
	})

	t.Run("defaults make explicit and implicit parameters share a key", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})
		require.NoError(t, err)
		resp, err := f.engine.Label(context.Background(), labeling.Payload{Text: "red car", MaxSpans: 20, MinConfidence: 0.5})
		require.NoError(t, err)

		assert.True(t, resp.Cached)
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.engine.Label(context.Background(), labeling.Payload{Text: "  "})

		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Zero(t, f.predictor.GetStats().TotalRequests)
	})

	t.Run("labeler failure is returned and not cached", func(t *testing.T) {
		// Arrange
		f := newFixture(t)
		cause := errors.New("labeler unavailable")
		f.labeler.err = cause

		// Act
		_, err := f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})

		// Assert
		var labelErr *LabelError
		require.ErrorAs(t, err, &labelErr)
		assert.ErrorIs(t, err, cause)
		_, ok := f.cache.Get(f.engine.withDefaults(labeling.Payload{Text: "red car"}))
		assert.False(t, ok)
	})

	t.Run("foreground requests are recorded", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})
		require.NoError(t, err)
		_, err = f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})
		require.NoError(t, err)

		stats := f.predictor.GetStats()
		assert.Equal(t, int64(2), stats.TotalRequests)
		assert.Equal(t, int64(1), stats.PatternsDetected)
	})

	t.Run("concurrent misses share one labeling call", func(t *testing.T) {
		// Arrange
		f := newFixture(t)
		f.labeler.release = make(chan struct{})
		p := labeling.Payload{Text: "a crowded market"}

		// Act
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.engine.Label(context.Background(), p)
				assert.NoError(t, err)
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(f.labeler.release)
		wg.Wait()

		// Assert
		assert.Equal(t, 1, f.labeler.Calls("a crowded market"))
	})
}

func TestEngine_PreWarm(t *testing.T) {
	t.Run("pre-warmed entry hit counts as prediction hit", func(t *testing.T) {
		// Arrange
		f := newFixture(t)
		f.predictor.RecordRequest(predict.Request{Text: "blue boat", TemplateVersion: "v1"})
		f.predictor.RecordRequest(predict.Request{Text: "blue boat", TemplateVersion: "v1"})

		// Act
		f.engine.PreWarm(context.Background())
		resp, err := f.engine.Label(context.Background(), labeling.Payload{Text: "blue boat", TemplateVersion: "v1"})
		require.NoError(t, err)
		require.NoError(t, f.engine.Close(context.Background()))

		// Assert
		assert.True(t, resp.Cached)
		assert.Equal(t, 1, f.labeler.Calls("blue boat"))
		stats := f.predictor.GetStats()
		assert.Equal(t, int64(1), stats.CacheHitsFromPrediction)
		assert.Greater(t, stats.PredictionAccuracy, 0.0)
	})

	t.Run("ordinary hits are not attributed to prediction", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})
		require.NoError(t, err)
		_, err = f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})
		require.NoError(t, err)
		require.NoError(t, f.engine.Close(context.Background()))

		assert.Zero(t, f.predictor.GetStats().CacheHitsFromPrediction)
	})

	t.Run("background pass fills the cache", func(t *testing.T) {
		// Arrange
		f := newFixture(t)
		f.predictor.RecordRequest(predict.Request{Text: "green field", TemplateVersion: "v1"})
		f.predictor.RecordRequest(predict.Request{Text: "green field", TemplateVersion: "v1"})

		// Act
		_, err := f.engine.Label(context.Background(), labeling.Payload{Text: "red car", TemplateVersion: "v1"})
		require.NoError(t, err)

		// Assert
		assert.Eventually(t, func() bool {
			return f.labeler.Calls("green field") == 1
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestEngine_Close(t *testing.T) {
	// Arrange
	f := newFixture(t)
	_, err := f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})
	require.NoError(t, err)

	// Act
	require.NoError(t, f.engine.Close(context.Background()))
	_, err = f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})

	// Assert
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.kv.Get(context.Background(), cache.DefaultNamespace)
	assert.NoError(t, err, "close writes the snapshot")
}

func TestEngine_ClearCache(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})
	require.NoError(t, err)

	f.engine.ClearCache()
	resp, err := f.engine.Label(context.Background(), labeling.Payload{Text: "red car"})
	require.NoError(t, err)

	assert.False(t, resp.Cached)
	assert.Equal(t, 2, f.labeler.Calls("red car"))
}
