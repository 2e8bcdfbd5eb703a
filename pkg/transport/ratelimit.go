// Package transport provides rate-limited HTTP fetching for remote music services.
package transport

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestsPerSecond is the per-origin request rate used when none is configured.
	DefaultRequestsPerSecond = 2.0
)

// RateLimiter paces requests per origin (scheme+host).
// Each origin gets a single-permit bucket refilled every 1/rps seconds.
type RateLimiter struct {
	rps      float64
	limiters map[string]*rate.Limiter // Key: origin
	mutex    sync.Mutex
}

// NewRateLimiter creates a limiter allowing rps requests per second to each origin.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	return &RateLimiter{
		rps:      rps,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Acquire blocks until a request to the origin of rawURL may be issued.
// It never rejects; only a cancelled context ends the wait early.
func (rl *RateLimiter) Acquire(ctx context.Context, rawURL string) error {
	// The wait happens outside the mutex so one throttled origin never stalls another.
	return rl.limiterFor(Origin(rawURL)).Wait(ctx)
}

func (rl *RateLimiter) limiterFor(origin string) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	limiter, exists := rl.limiters[origin]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(rl.rps), 1)
		rl.limiters[origin] = limiter
	}
	return limiter
}

// Rate returns the configured requests per second per origin.
func (rl *RateLimiter) Rate() float64 {
	return rl.rps
}

// GetStats returns statistics about the limiter for monitoring/debugging.
func (rl *RateLimiter) GetStats() Stats {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	return Stats{
		Origins:           len(rl.limiters),
		RequestsPerSecond: rl.rps,
	}
}

// Stats contains rate limiter statistics.
type Stats struct {
	Origins           int     `json:"origins"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

// Origin returns the scheme://host authority of rawURL, lower-cased.
// Unparsable input is returned unchanged so it still gets its own bucket.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
