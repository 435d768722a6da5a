package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tendant/simple-lms/pkg/config"
	"github.com/tendant/simple-lms/pkg/device"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
)

// Middleware throttles requests per client IP
type Middleware struct {
	enabled bool
	limiter *RateLimiter
	burst   int
}

// NewMiddleware creates the login throttling middleware. Buckets idle for an hour are dropped.
func NewMiddleware(cfg config.RateLimitConfig) *Middleware {
	return &Middleware{
		enabled: cfg.LoginEnabled,
		limiter: NewRateLimiter(cfg.LoginBurst, cfg.LoginPerMinute, time.Hour),
		burst:   cfg.LoginBurst,
	}
}

// Run prunes idle buckets until ctx is done
func (m *Middleware) Run(ctx context.Context) {
	m.limiter.Run(ctx)
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := device.ClientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		if !m.limiter.Allow(ip) {
			slog.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path, "method", r.Method)
			w.Header().Set("Retry-After", "60")
			lmserrors.RenderError(w, r, lmserrors.RateLimitExceeded("60s"))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.burst))
		next.ServeHTTP(w, r)
	})
}

// Reset clears the limit for a client IP
func (m *Middleware) Reset(ip string) {
	m.limiter.Reset(ip)
}

// GetStats returns statistics about the limiter
func (m *Middleware) GetStats() Stats {
	return m.limiter.GetStats()
}
