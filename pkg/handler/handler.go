// Package handler implements the bounded-queue-plus-snapshot runtime that
// every sensor handler is built on: one producer worker, one depth-2
// queue, one wait-free "latest" slot, and a per-source exponential
// backoff applied whenever the device read fails.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/tevino/abool"

	"github.com/SamSkjord/opentpt/pkg/backoff"
	"github.com/SamSkjord/opentpt/pkg/snapshot"
)

// State is a handler's lifecycle state.
type State int

const (
	Uninitialised State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrDeviceAbsent is returned by a Reader's Init to signal a permanent
// init failure (device missing): the handler enters a degraded
// never-publishes state instead of retrying forever.
var ErrDeviceAbsent = fmt.Errorf("handler: device absent")

// Reader is what a concrete sensor handler implements. Read is called in
// a loop on the worker goroutine; it must itself respect ctx so that
// Stop(timeout) is honored promptly, per the I/O timeout wrapping
// requirement.
type Reader[T any] interface {
	// Init performs any one-time device setup. Returning ErrDeviceAbsent
	// (wrapped or bare) marks the handler permanently degraded rather
	// than subject to backoff-and-retry.
	Init(ctx context.Context) error
	// Read blocks (bounded by ctx) for one reading and returns it, or an
	// error for the handler to back off on.
	Read(ctx context.Context) (T, error)
	// Close releases the device handle. Called once, after the worker
	// goroutine has exited.
	Close() error
}

// Handler wraps a Reader with the runtime described in §4.1: lifecycle,
// bounded queue, wait-free latest(), and backoff.
type Handler[T any] struct {
	name    string
	reader  Reader[T]
	backoff *backoff.Backoff
	log     Logger

	queue   *snapshot.Queue[T]
	state   abool.AtomicBool
	running abool.AtomicBool

	stopTimeout time.Duration

	cancel context.CancelFunc
	wg     conc.WaitGroup

	rate *rateTracker
}

// Logger is the minimal logging surface Handler needs; satisfied by
// internal/log.Logger.
type Logger interface {
	WithField(key string, value any) Logger
	Warn(args ...any)
	Error(args ...any)
}

// Option configures a Handler at construction time.
type Option func(*handlerOpts)

type handlerOpts struct {
	backoff     *backoff.Backoff
	stopTimeout time.Duration
	log         Logger
}

// WithBackoff overrides the default exponential backoff policy.
func WithBackoff(b *backoff.Backoff) Option {
	return func(o *handlerOpts) { o.backoff = b }
}

// WithStopTimeout bounds how long Stop waits for the worker to exit
// before reporting abandonment. Also the upper bound each device read
// must be wrapped to, per §4.1.
func WithStopTimeout(d time.Duration) Option {
	return func(o *handlerOpts) { o.stopTimeout = d }
}

// WithLogger attaches a logger; a nil logger discards all log calls.
func WithLogger(l Logger) Option {
	return func(o *handlerOpts) { o.log = l }
}

// New constructs a Handler around reader. It does not start the worker;
// call Start for that.
func New[T any](name string, reader Reader[T], opts ...Option) *Handler[T] {
	o := handlerOpts{backoff: backoff.Default(), stopTimeout: 2 * time.Second, log: noopLogger{}}
	for _, fn := range opts {
		fn(&o)
	}
	return &Handler[T]{
		name:        name,
		reader:      reader,
		backoff:     o.backoff,
		log:         o.log,
		queue:       snapshot.NewQueue[T](),
		stopTimeout: o.stopTimeout,
		rate:        newRateTracker(),
	}
}

// Name returns the handler's source name, for logs and diagnostics.
func (h *Handler[T]) Name() string { return h.name }

// State reports the current lifecycle state.
func (h *Handler[T]) State() State {
	switch {
	case h.running.IsSet():
		return Running
	case h.state.IsSet():
		return Stopped
	default:
		return Uninitialised
	}
}

// Start spawns the worker goroutine. Idempotent while Running.
func (h *Handler[T]) Start(ctx context.Context) {
	if !h.running.SetToIf(false, true) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.wg.Go(func() { h.pollLoop(runCtx) })
}

// Stop signals the worker to exit and waits up to timeout for it to
// join. Returns false if the worker did not exit in time (abandonment).
func (h *Handler[T]) Stop(timeout time.Duration) bool {
	if !h.running.IsSet() {
		return true
	}
	if h.cancel != nil {
		h.cancel()
	}
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.running.UnSet()
		h.state.Set()
		return true
	case <-time.After(timeout):
		h.running.UnSet()
		h.state.Set()
		h.log.Warn("handler stop timed out; worker abandoned", "handler", h.name)
		return false
	}
}

// Latest returns the most recently published snapshot, or ok=false if
// none has been published (absent source or not yet warmed up). Never
// blocks, never allocates.
func (h *Handler[T]) Latest() (snapshot.Snapshot[T], bool) {
	return h.queue.Latest()
}

// FramesDropped is the cumulative count of snapshots dropped from the
// depth-2 queue due to overflow.
func (h *Handler[T]) FramesDropped() uint64 {
	return h.queue.FramesDropped()
}

// ConsecutiveFailures is the current backoff failure streak.
func (h *Handler[T]) ConsecutiveFailures() uint64 {
	return h.backoff.ConsecutiveFailures()
}

// UpdateRateHz derives the publish rate from the two most recent
// snapshots' timestamps.
func (h *Handler[T]) UpdateRateHz() float32 {
	return h.rate.hz()
}

func (h *Handler[T]) pollLoop(ctx context.Context) {
	defer h.reader.Close()

	if err := h.reader.Init(ctx); err != nil {
		// Permanent init failure: degrade. Never publishes, but
		// latest() still returns ok=false rather than an error —
		// the renderer treats this identically to "never started".
		h.log.WithField("handler", h.name).Error("init failed, handler degraded: ", err)
		<-ctx.Done()
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, h.stopTimeout)
		val, err := h.reader.Read(readCtx)
		cancel()

		if err != nil {
			delay, shouldLog := h.backoff.Failure()
			if shouldLog {
				h.log.WithField("handler", h.name).Warn(fmt.Sprintf(
					"read failed (%d consecutive): %v, backing off %s",
					h.backoff.ConsecutiveFailures(), err, delay))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		h.backoff.Success()
		h.queue.Publish(val)
		h.rate.mark(time.Now())
	}
}

type noopLogger struct{}

func (noopLogger) WithField(string, any) Logger { return noopLogger{} }
func (noopLogger) Warn(...any)                  {}
func (noopLogger) Error(...any)                 {}
