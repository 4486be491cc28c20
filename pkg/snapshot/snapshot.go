// Package snapshot implements the immutable, wait-free hand-off primitive
// that every sensor handler uses to publish readings to the renderer.
package snapshot

import (
	"time"

	"go.uber.org/atomic"
)

// Snapshot is an immutable record carrying one producer sample. Once
// constructed it is never mutated; ownership passes from producer to
// consumer by reference.
type Snapshot[T any] struct {
	Payload   T
	PublishTS time.Time
	Seq       uint64
}

// New builds a Snapshot stamped with the current monotonic time and the
// given sequence number.
func New[T any](payload T, seq uint64) Snapshot[T] {
	return Snapshot[T]{Payload: payload, PublishTS: time.Now(), Seq: seq}
}

// Slot is the per-handler "latest snapshot" reference. Publish swaps the
// reference; Latest reads it. Both are wait-free: Latest never blocks on
// a concurrent Publish and never observes a torn value, since the
// exchange is a single atomic pointer swap.
type Slot[T any] struct {
	v   atomic.Value
	seq atomic.Uint64
}

// Publish installs snap as the current value. Producer-ordered: if two
// goroutines call Publish concurrently the result is whichever wins the
// underlying atomic store, but a single-producer handler never does this
// concurrently with itself, so in practice Publish is called from exactly
// one goroutine per Slot.
func (s *Slot[T]) Publish(snap Snapshot[T]) {
	s.v.Store(boxed[T]{snap: snap, ok: true})
	s.seq.Store(snap.Seq)
}

// Latest returns the most recently published snapshot, or ok=false if
// nothing has ever been published. O(1), never allocates, never blocks.
func (s *Slot[T]) Latest() (Snapshot[T], bool) {
	v := s.v.Load()
	if v == nil {
		var zero Snapshot[T]
		return zero, false
	}
	b := v.(boxed[T])
	return b.snap, b.ok
}

// LastSeq returns the sequence number of the most recently published
// snapshot, or 0 if none has been published yet.
func (s *Slot[T]) LastSeq() uint64 {
	return s.seq.Load()
}

type boxed[T any] struct {
	snap Snapshot[T]
	ok   bool
}
