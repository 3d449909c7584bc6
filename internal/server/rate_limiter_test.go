package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurstThenDeny(t *testing.T) {
	limiter := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(), "event %d within burst", i)
	}
	assert.False(t, limiter.Allow(), "burst exhausted")
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := newRateLimiter(2, 40*time.Millisecond)

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	assert.Eventually(t, limiter.Allow, time.Second, 10*time.Millisecond)
}

func TestRateLimiterInvalidArguments(t *testing.T) {
	limiter := newRateLimiter(0, 0)

	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
}
