// Package quota limits how fast API clients may call the explorer.
package quota

import (
	"sync"
	"time"
)

// RateLimiter implements per-client token bucket rate limiting. Every
// client gets the same requests-per-minute budget.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rpm     int
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter allowing rpm requests per minute per
// client. It returns nil when rpm is 0 (unlimited); a nil limiter allows
// everything.
func NewRateLimiter(rpm int) *RateLimiter {
	if rpm <= 0 {
		return nil
	}
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		rpm:     rpm,
		now:     time.Now,
	}
}

func (rl *RateLimiter) refillRate() float64 {
	return float64(rl.rpm) / 60.0
}

// Allow takes a token from key's bucket, reporting false when it is empty.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &tokenBucket{tokens: float64(rl.rpm), lastRefill: now}
		rl.buckets[key] = bucket
	}

	bucket.tokens += now.Sub(bucket.lastRefill).Seconds() * rl.refillRate()
	if limit := float64(rl.rpm); bucket.tokens > limit {
		bucket.tokens = limit
	}
	bucket.lastRefill = now

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}

// RetryAfter returns the number of seconds until key's next token.
func (rl *RateLimiter) RetryAfter(key string) int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.buckets[key]
	if !ok || bucket.tokens >= 1 {
		return 0
	}
	needed := 1.0 - bucket.tokens
	return int(needed/rl.refillRate()) + 1
}

// Cleanup removes buckets of clients not seen within maxAge.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxAge)
	removed := 0
	for key, bucket := range rl.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}
