// Package enrich looks up company data from an external provider to enrich
// scanned cards, throttled by an explicit, shareable rate limiter.
package enrich

import (
	"sync"
	"time"
)

// RateLimit is a fixed-window request counter. It is an explicit struct
// passed by reference into the client rather than a captured closure, so it
// can be inspected in tests and shared safely across goroutines.
type RateLimit struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	limit       int
	window      time.Duration
	now         func() time.Time
}

// NewRateLimit allows up to limit calls per window.
func NewRateLimit(limit int, window time.Duration) *RateLimit {
	return &RateLimit{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow consumes one slot if the current window has capacity.
func (rl *RateLimit) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if rl.windowStart.IsZero() || now.Sub(rl.windowStart) >= rl.window {
		rl.windowStart = now
		rl.count = 0
	}
	if rl.count >= rl.limit {
		return false
	}
	rl.count++
	return true
}

// Remaining reports how many calls the current window still permits.
func (rl *RateLimit) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.windowStart.IsZero() && rl.now().Sub(rl.windowStart) >= rl.window {
		return rl.limit
	}
	left := rl.limit - rl.count
	if left < 0 {
		return 0
	}
	return left
}
