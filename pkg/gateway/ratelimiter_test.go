package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiter_Acquire(t *testing.T) {
	t.Run("should apply defaults for non-positive limits", func(t *testing.T) {
		limiter := NewClientRateLimiter(0, -1)
		assert.Equal(t, defaultRequestsPerMinute, limiter.requestsPerMinute)
		assert.Equal(t, defaultMaxConcurrent, limiter.maxConcurrent)
	})

	t.Run("should cap concurrent requests", func(t *testing.T) {
		limiter := NewClientRateLimiter(100, 2)

		ok, _ := limiter.Acquire()
		assert.True(t, ok)
		ok, _ = limiter.Acquire()
		assert.True(t, ok)

		ok, reason := limiter.Acquire()
		assert.False(t, ok)
		assert.Equal(t, reasonTooConcurrent, reason)

		limiter.Release()
		ok, _ = limiter.Acquire()
		assert.True(t, ok)
	})

	t.Run("should cap requests per minute", func(t *testing.T) {
		limiter := NewClientRateLimiter(3, 10)
		for i := 0; i < 3; i++ {
			ok, _ := limiter.Acquire()
			assert.True(t, ok)
			limiter.Release()
		}

		ok, reason := limiter.Acquire()
		assert.False(t, ok)
		assert.Equal(t, reasonRateLimited, reason)
	})

	t.Run("should slide the window", func(t *testing.T) {
		now := time.Unix(1000, 0)
		limiter := NewClientRateLimiter(2, 10)
		limiter.now = func() time.Time { return now }

		limiter.Acquire()
		limiter.Release()
		now = now.Add(30 * time.Second)
		limiter.Acquire()
		limiter.Release()

		ok, _ := limiter.Acquire()
		assert.False(t, ok)

		now = now.Add(31 * time.Second)
		ok, _ = limiter.Acquire()
		assert.True(t, ok)

		requests, concurrent := limiter.Stats()
		assert.Equal(t, 2, requests)
		assert.Equal(t, 1, concurrent)
	})

	t.Run("should not go negative on release", func(t *testing.T) {
		limiter := NewClientRateLimiter(10, 10)
		limiter.Release()
		limiter.Release()

		_, concurrent := limiter.Stats()
		assert.Equal(t, 0, concurrent)
	})
}
