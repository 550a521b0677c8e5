package crawler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitTracker provides thread-safe visited URL tracking to prevent revisits
// within one job.
type visitTracker struct {
	seen sync.Map
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (t *visitTracker) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	_, loaded := t.seen.LoadOrStore(url, struct{}{})
	return !loaded
}

// hostLimiter rate-limits fetches per host so concurrent workers do not
// hammer one origin.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func newHostLimiter(interval time.Duration) *hostLimiter {
	if interval <= 0 {
		interval = time.Second
	}
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// Wait blocks until the host's limiter grants a slot or the context ends.
func (h *hostLimiter) Wait(ctx context.Context, host string) error {
	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.interval), 1)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()
	return limiter.Wait(ctx)
}
