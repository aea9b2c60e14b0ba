package alerting

import (
	"testing"
	"time"
)

func TestRateLimiterCapsWithinWindow(t *testing.T) {
	limiter := newRateLimiter(3, time.Hour)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !limiter.Allow(now.Add(time.Duration(i) * time.Minute)) {
			t.Fatalf("dispatch %d should be allowed", i)
		}
	}
	if limiter.Allow(now.Add(4 * time.Minute)) {
		t.Fatal("dispatch over cap should be suppressed")
	}
	if got := limiter.InFlight(now.Add(4 * time.Minute)); got != 3 {
		t.Fatalf("expected 3 in flight, got %d", got)
	}
}

func TestRateLimiterSlidesWindow(t *testing.T) {
	limiter := newRateLimiter(2, time.Hour)
	now := time.Now()

	if !limiter.Allow(now) || !limiter.Allow(now.Add(time.Minute)) {
		t.Fatal("first two dispatches should be allowed")
	}
	if limiter.Allow(now.Add(2 * time.Minute)) {
		t.Fatal("third dispatch inside the window should be suppressed")
	}

	// The first dispatch ages out of the window; capacity frees up.
	if !limiter.Allow(now.Add(61 * time.Minute)) {
		t.Fatal("dispatch after oldest aged out should be allowed")
	}
}
