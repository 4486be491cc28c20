package snapshot

import "go.uber.org/atomic"

// Queue is the single-producer/single-consumer bounded queue of depth 2
// described in the handler runtime contract: on overflow the oldest
// snapshot is dropped in favor of the new one. A Slot sits alongside the
// queue so consumers that only want "what's current" never have to drain
// the channel themselves.
type Queue[T any] struct {
	ch    chan Snapshot[T]
	slot  Slot[T]
	seq   atomic.Uint64
	drops atomic.Uint64
}

// NewQueue creates an empty depth-2 queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{ch: make(chan Snapshot[T], 2)}
}

// Publish hands payload to the queue. If the queue is full the oldest
// entry is dropped (FramesDropped increments) before the new snapshot is
// enqueued, and the Slot is swapped to the new value in the same call so
// a concurrent Latest() never observes a torn or stale-behind-a-drop
// value.
func (q *Queue[T]) Publish(payload T) Snapshot[T] {
	seq := q.seq.Add(1)
	snap := New(payload, seq)

	select {
	case q.ch <- snap:
	default:
		select {
		case <-q.ch:
			q.drops.Add(1)
		default:
		}
		select {
		case q.ch <- snap:
		default:
			// Concurrent drain raced us; the channel has room now on a
			// retry, but a single-producer handler never reaches this.
			q.drops.Add(1)
		}
	}

	q.slot.Publish(snap)
	return snap
}

// Latest returns the most recently published snapshot without touching
// the channel — this is the wait-free path the renderer calls every
// frame.
func (q *Queue[T]) Latest() (Snapshot[T], bool) {
	return q.slot.Latest()
}

// Drain pops the oldest queued snapshot, if any. The renderer does not
// need this for its per-frame poll (it uses Latest), but it is available
// for consumers that want producer-order delivery instead of
// latest-wins.
func (q *Queue[T]) Drain() (Snapshot[T], bool) {
	select {
	case s := <-q.ch:
		return s, true
	default:
		var zero Snapshot[T]
		return zero, false
	}
}

// FramesDropped reports the cumulative count of snapshots dropped due to
// overflow.
func (q *Queue[T]) FramesDropped() uint64 {
	return q.drops.Load()
}

// Len reports how many snapshots currently sit in the queue (0, 1, or 2).
func (q *Queue[T]) Len() int {
	return len(q.ch)
}
