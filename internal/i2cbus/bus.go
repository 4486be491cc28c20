// Package i2cbus arbitrates a single physical I²C bus shared by multiple
// device handlers (the IMU and any other I²C peripheral), so two handlers
// never issue overlapping transactions on the same wire.
package i2cbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/serialx/hashring"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// ErrBusBusy is returned by Acquire when timeout elapses before the lock
// becomes available.
var ErrBusBusy = fmt.Errorf("i2cbus: bus busy, acquire timed out")

// Bus owns one opened I²C bus handle plus a mutex gating access to it, and
// a stable polling order across the devices registered on it.
type Bus struct {
	mu   sync.Mutex
	conn i2c.BusCloser

	devMu sync.Mutex
	ring  *hashring.HashRing
	names []string
}

// Open opens the I²C bus at path (e.g. "/dev/i2c-1") via periph's i2creg.
func Open(path string) (*Bus, error) {
	conn, err := i2creg.Open(path)
	if err != nil {
		return nil, fmt.Errorf("i2cbus: opening %s: %w", path, err)
	}
	return &Bus{conn: conn, ring: hashring.New(nil)}, nil
}

// Register adds a device name to the bus's deterministic polling order.
// Calling it again after a device has dropped off and reappeared leaves
// the ring unchanged, so ordering survives restarts.
func (b *Bus) Register(name string) {
	b.devMu.Lock()
	defer b.devMu.Unlock()
	for _, n := range b.names {
		if n == name {
			return
		}
	}
	b.names = append(b.names, name)
	b.ring = b.ring.AddNode(name)
}

// Unregister removes a device that has permanently dropped off the bus
// from the polling order, rebalancing the ring across the rest.
func (b *Bus) Unregister(name string) {
	b.devMu.Lock()
	defer b.devMu.Unlock()
	b.ring = b.ring.RemoveNode(name)
	for i, n := range b.names {
		if n == name {
			b.names = append(b.names[:i], b.names[i+1:]...)
			break
		}
	}
}

// PollOrder returns the currently registered device names in the order
// they were registered. The hash ring is kept in step by Register and
// Unregister but is not consulted for this order.
func (b *Bus) PollOrder() []string {
	b.devMu.Lock()
	defer b.devMu.Unlock()
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Acquire blocks (bounded by ctx) for exclusive use of the bus and returns
// a release function; callers must call it to unblock the next user.
func (b *Bus) Acquire(ctx context.Context) (func(), error) {
	acquired := make(chan struct{})
	go func() {
		b.mu.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return b.mu.Unlock, nil
	case <-ctx.Done():
		// The goroutine above will still acquire the lock eventually and
		// hold it until a later Unlock call is lost — to avoid that, wait
		// for it in the background and release immediately.
		go func() {
			<-acquired
			b.mu.Unlock()
		}()
		return nil, ErrBusBusy
	}
}

// AcquireTimeout is a convenience wrapper around Acquire with a fixed
// deadline.
func (b *Bus) AcquireTimeout(d time.Duration) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return b.Acquire(ctx)
}

// Tx performs one I²C read/write transaction against addr, serialized
// against every other caller of Tx/Acquire on this bus.
func (b *Bus) Tx(ctx context.Context, addr uint16, w, r []byte) error {
	release, err := b.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return b.conn.Tx(addr, w, r)
}

// Close releases the underlying bus handle.
func (b *Bus) Close() error {
	return b.conn.Close()
}
