package idle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActivityScheduler(t *testing.T) {
	t.Run("idle immediately when nothing runs", func(t *testing.T) {
		s := NewActivityScheduler()

		start := time.Now()
		ok := s.WaitForIdle(context.Background(), time.Second)

		assert.True(t, ok)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("waits for foreground work to end", func(t *testing.T) {
		// Arrange
		s := NewActivityScheduler()
		s.Begin()
		go func() {
			time.Sleep(50 * time.Millisecond)
			s.End()
		}()

		// Act
		start := time.Now()
		ok := s.WaitForIdle(context.Background(), 5*time.Second)

		// Assert
		assert.True(t, ok)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
		assert.Zero(t, s.Active())
	})

	t.Run("timeout still reports idle", func(t *testing.T) {
		s := NewActivityScheduler()
		s.Begin()
		defer s.End()

		ok := s.WaitForIdle(context.Background(), 20*time.Millisecond)

		assert.True(t, ok)
	})

	t.Run("cancelled context reports busy", func(t *testing.T) {
		s := NewActivityScheduler()
		s.Begin()
		defer s.End()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ok := s.WaitForIdle(ctx, time.Second)

		assert.False(t, ok)
	})

	t.Run("nested work counts", func(t *testing.T) {
		s := NewActivityScheduler()
		s.Begin()
		s.Begin()
		s.End()
		assert.Equal(t, 1, s.Active())
		s.End()
		s.End()
		assert.Zero(t, s.Active())
	})
}

func TestFallbackScheduler(t *testing.T) {
	t.Run("waits the fixed delay", func(t *testing.T) {
		s := &FallbackScheduler{Delay: 30 * time.Millisecond}

		start := time.Now()
		ok := s.WaitForIdle(context.Background(), time.Hour)

		assert.True(t, ok)
		assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	})

	t.Run("cancelled context reports busy", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.False(t, NewFallbackScheduler().WaitForIdle(ctx, 0))
	})
}

func TestNew(t *testing.T) {
	assert.IsType(t, &FallbackScheduler{}, New(ModeFallback))
	assert.IsType(t, &ActivityScheduler{}, New(ModeActivity))
	assert.IsType(t, &ActivityScheduler{}, New(""))
}
