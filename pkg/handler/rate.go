package handler

import (
	"sync"
	"time"
)

// rateTracker derives update_rate_hz from the timestamps of the two most
// recent publishes.
type rateTracker struct {
	mu   sync.Mutex
	prev time.Time
	last time.Time
}

func newRateTracker() *rateTracker { return &rateTracker{} }

func (r *rateTracker) mark(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prev, r.last = r.last, t
}

func (r *rateTracker) hz() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prev.IsZero() || r.last.IsZero() {
		return 0
	}
	dt := r.last.Sub(r.prev)
	if dt <= 0 {
		return 0
	}
	return float32(time.Second) / float32(dt)
}
