package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter provides token bucket rate limiting per caller.
// TOKEN BUCKET ALGORITHM:
//   - Tokens are added to the bucket at a fixed rate
//   - Each request consumes one token
//   - Requests are rejected when the bucket is empty
//   - Burst allows temporary exceeding of rate limit
type RateLimiter struct {
	rate  float64 // Tokens per second
	burst float64 // Maximum burst size

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // Token refill rate
	Burst             int     // Maximum burst size
}

// DefaultRateLimitConfig returns default rate limit configuration.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 50.0,
		Burst:             100,
	}
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		rate:    config.RequestsPerSecond,
		burst:   float64(config.Burst),
		buckets: make(map[string]*bucket),
	}
}

// allow refills and drains the caller's bucket, reporting whether the
// request may proceed and how many whole tokens remain.
func (r *RateLimiter) allow(key string) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{tokens: r.burst, lastFill: now}
		r.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastFill).Seconds() * r.rate
	if b.tokens > r.burst {
		b.tokens = r.burst
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false, 0
	}
	b.tokens--
	return true, int(b.tokens)
}

// GinMiddleware returns the Gin middleware for rate limiting.
// Authenticated callers are keyed by user id, anonymous ones by client IP.
func (r *RateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			key = "user:" + strconv.FormatInt(userID, 10)
		}

		allowed, remaining := r.allow(key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(int(r.burst)))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "too many requests, please retry later",
				"code":    "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		c.Next()
	}
}
