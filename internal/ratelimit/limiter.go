// Package ratelimit bounds how fast one client may hit the session
// endpoints. Keyed token buckets: each client address gets its own bucket.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages per-client token buckets.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewLimiter allows requestsPerMinute sustained per client with the given
// burst.
func NewLimiter(requestsPerMinute, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

// Allow reports whether the client may proceed now.
func (l *Limiter) Allow(client string) bool {
	return l.limiterFor(client).Allow()
}

// Tokens is the client's remaining burst allowance.
func (l *Limiter) Tokens(client string) float64 {
	return l.limiterFor(client).Tokens()
}

func (l *Limiter) limiterFor(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[client]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[client] = lim
	}
	return lim
}
