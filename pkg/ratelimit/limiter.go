package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket pairs a token bucket with the last time its key was seen
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages one token bucket per key
type RateLimiter struct {
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	ttl     time.Duration // Time to keep inactive buckets in memory
	now     func() time.Time
}

// NewRateLimiter creates a new rate limiter
// burst: Maximum number of requests allowed in a burst per key
// perMinute: Sustained number of requests allowed per minute per key
func NewRateLimiter(burst int, perMinute float64, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perMinute / 60.0),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow checks if a request for the given key should be allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// Reset drops the bucket for key so its next request starts with a full burst
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Run removes inactive buckets every ttl until ctx is done
func (rl *RateLimiter) Run(ctx context.Context) {
	if rl.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(rl.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.ttl {
			delete(rl.buckets, key)
		}
	}
}

// Stats returns statistics about the rate limiter
type Stats struct {
	ActiveBuckets int
	Burst         int
	PerMinute     float64
}

// GetStats returns current statistics
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return Stats{
		ActiveBuckets: len(rl.buckets),
		Burst:         rl.burst,
		PerMinute:     float64(rl.limit) * 60,
	}
}
