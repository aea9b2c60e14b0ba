package alerting

import (
	"sync"
	"time"
)

// rateLimiter caps outbound dispatches over a sliding window. Events raised
// past the cap are still recorded by the manager; only delivery is withheld.
type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	sent   []time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &rateLimiter{window: window, limit: limit, sent: make([]time.Time, 0, limit)}
}

// Allow records a dispatch at now when under the cap and reports whether the
// dispatch may proceed.
func (r *rateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	kept := r.sent[:0]
	for _, t := range r.sent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.sent = kept

	if len(r.sent) >= r.limit {
		return false
	}
	r.sent = append(r.sent, now)
	return true
}

// InFlight reports how many dispatches count against the cap at now.
func (r *rateLimiter) InFlight(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	n := 0
	for _, t := range r.sent {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
