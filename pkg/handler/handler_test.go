package handler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader produces an incrementing int on every Read call until
// closed; failEvery (if >0) makes every Nth read fail once.
type fakeReader struct {
	n         atomic.Int64
	initErr   error
	closed    atomic.Bool
	failEvery int
}

func (f *fakeReader) Init(ctx context.Context) error { return f.initErr }

func (f *fakeReader) Read(ctx context.Context) (int, error) {
	v := f.n.Add(1)
	if f.failEvery > 0 && v%int64(f.failEvery) == 0 {
		return 0, assert.AnError
	}
	return int(v), nil
}

func (f *fakeReader) Close() error {
	f.closed.Store(true)
	return nil
}

func TestHandler_PublishesAndLatestIsWaitFree(t *testing.T) {
	r := &fakeReader{}
	h := New[int]("test", r)
	h.Start(context.Background())

	require.Eventually(t, func() bool {
		_, ok := h.Latest()
		return ok
	}, time.Second, time.Millisecond)

	snap, ok := h.Latest()
	require.True(t, ok)
	assert.GreaterOrEqual(t, snap.Payload, 1)

	ok = h.Stop(time.Second)
	assert.True(t, ok)
	assert.True(t, r.closed.Load())
	assert.Equal(t, Stopped, h.State())
}

func TestHandler_DeviceAbsentNeverPublishes(t *testing.T) {
	r := &fakeReader{initErr: ErrDeviceAbsent}
	h := New[int]("absent", r)
	h.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	_, ok := h.Latest()
	assert.False(t, ok, "a degraded handler must never publish")

	h.Stop(time.Second)
}

func TestHandler_MonotonicSequence(t *testing.T) {
	r := &fakeReader{}
	h := New[int]("seq", r)
	h.Start(context.Background())
	defer h.Stop(time.Second)

	var lastSeq uint64
	for i := 0; i < 20; i++ {
		snap, ok := h.Latest()
		if ok {
			assert.GreaterOrEqual(t, snap.Seq, lastSeq)
			lastSeq = snap.Seq
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandler_StartIsIdempotent(t *testing.T) {
	r := &fakeReader{}
	h := New[int]("idempotent", r)
	h.Start(context.Background())
	h.Start(context.Background()) // second call must be a no-op
	defer h.Stop(time.Second)

	require.Eventually(t, func() bool {
		_, ok := h.Latest()
		return ok
	}, time.Second, time.Millisecond)
}
