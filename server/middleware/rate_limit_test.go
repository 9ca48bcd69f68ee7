package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 2)

	assert.True(t, rl.AllowUser(1))
	assert.True(t, rl.AllowUser(1))
	assert.False(t, rl.AllowUser(1), "burst exhausted")

	// Other users have their own bucket.
	assert.True(t, rl.AllowUser(2))
}

func TestRateLimiterReusesBucketPerKey(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	a := rl.getLimiter("user:7")
	b := rl.getLimiter("user:7")
	assert.Same(t, a, b)
}
