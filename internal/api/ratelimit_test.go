package api

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("allows within burst", func(t *testing.T) {
		rl := NewRateLimiter(10, 10)

		for i := 0; i < 10; i++ {
			assert.True(t, rl.Allow("client"))
		}
	})

	t.Run("blocks over limit", func(t *testing.T) {
		rl := NewRateLimiter(1, 2)

		assert.True(t, rl.Allow("client"))
		assert.True(t, rl.Allow("client"))
		assert.False(t, rl.Allow("client"))
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)

		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("burst below one is raised to one", func(t *testing.T) {
		rl := NewRateLimiter(1, 0)

		assert.Equal(t, 1, rl.burstSize)
		assert.True(t, rl.Allow("client"))
	})
}

func TestRateLimiter_MemoryBounds(t *testing.T) {
	rl := NewRateLimiter(100, 200)

	for i := 0; i < 10001; i++ {
		rl.Allow(fmt.Sprintf("client-%d", i))
	}

	rl.mu.Lock()
	count := len(rl.limiters)
	rl.mu.Unlock()

	assert.LessOrEqual(t, count, 10000)
}
