package server

import (
	"sync"
	"time"
)

// rateLimiter counts requests per merchant in fixed windows. Entries for
// idle merchants are swept whenever the map crosses sweepThreshold so the
// limiter stays bounded under key churn.
type rateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*requestWindow
}

type requestWindow struct {
	start time.Time
	count int
}

const sweepThreshold = 4096

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*requestWindow),
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if key == "" {
		return false
	}

	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.windows[key]
	if w == nil || now.Sub(w.start) > r.window {
		if len(r.windows) >= sweepThreshold {
			r.sweepLocked(now)
		}
		w = &requestWindow{start: now}
		r.windows[key] = w
	}

	if w.count >= r.limit {
		return false
	}

	w.count++
	return true
}

func (r *rateLimiter) sweepLocked(now time.Time) {
	for key, w := range r.windows {
		if now.Sub(w.start) > r.window {
			delete(r.windows, key)
		}
	}
}
