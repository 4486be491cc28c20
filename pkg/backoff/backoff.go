// Package backoff implements the per-source exponential backoff every
// sensor handler uses when its read() call fails.
package backoff

import (
	"time"

	"go.uber.org/atomic"
)

// logPoints are the consecutive-failure counts at which the handler
// should log, per §4.1: 1, 3, 10, 50, 100, 200, then every further
// doubling.
var logPoints = map[uint64]bool{1: true, 3: true, 10: true, 50: true, 100: true, 200: true}

// Backoff tracks a consecutive-failure streak and computes the delay
// before the next retry: min(base * 2^n, cap). A single success resets
// the streak to base.
type Backoff struct {
	base       time.Duration
	multiplier float64
	cap        time.Duration

	failures atomic.Uint64
}

// New creates a Backoff with the given base delay, multiplier, and cap.
// The spec's default is base=1s, multiplier=2, cap=64s.
func New(base time.Duration, multiplier float64, cap time.Duration) *Backoff {
	return &Backoff{base: base, multiplier: multiplier, cap: cap}
}

// Default returns the spec's default policy: base 1s, x2, cap 64s.
func Default() *Backoff {
	return New(time.Second, 2, 64*time.Second)
}

// Failure records one failed read and returns the delay to sleep before
// the next attempt, plus whether this failure count is one the caller
// should log at (1, 3, 10, 50, 100, 200, ...).
func (b *Backoff) Failure() (delay time.Duration, shouldLog bool) {
	n := b.failures.Add(1)
	return b.delayFor(n), b.logAt(n)
}

// Success resets the failure streak to zero (next Failure starts back at
// base).
func (b *Backoff) Success() {
	b.failures.Store(0)
}

// ConsecutiveFailures reports the current streak length.
func (b *Backoff) ConsecutiveFailures() uint64 {
	return b.failures.Load()
}

func (b *Backoff) delayFor(n uint64) time.Duration {
	d := float64(b.base)
	for i := uint64(0); i < n-1 && d < float64(b.cap); i++ {
		d *= b.multiplier
	}
	if time.Duration(d) > b.cap {
		return b.cap
	}
	return time.Duration(d)
}

func (b *Backoff) logAt(n uint64) bool {
	if logPoints[n] {
		return true
	}
	// Beyond 200, log on further doublings: 400, 800, 1600, ...
	for v := uint64(200); v <= n/2; v *= 2 {
		if v*2 == n {
			return true
		}
	}
	return false
}
