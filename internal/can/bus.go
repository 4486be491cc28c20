// Package can wraps a SocketCAN interface for the corner-sensor and radar
// buses. Frame payload decoding (DBC-style signal extraction) is left to
// each sensor handler; this package only owns the wire-level
// receive/transmit plumbing and per-ID dispatch, per the spec's explicit
// "DBC decode is out of scope" boundary.
package can

import (
	"context"
	"fmt"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// Frame is one received CAN frame, re-exported so callers don't need to
// import go.einride.tech/can directly.
type Frame = can.Frame

// Bus is a receive/transmit handle on one SocketCAN interface (e.g.
// "can0"), optionally shared by several logical sensors (corner
// temperatures and radar both ride the same physical harness on some
// builds).
type Bus struct {
	iface string
	recv  *socketcan.Receiver
	send  *socketcan.Transmitter
}

// Open dials the named SocketCAN interface for both receive and transmit.
func Open(iface string) (*Bus, error) {
	rconn, err := socketcan.DialContext(context.Background(), "can", iface)
	if err != nil {
		return nil, fmt.Errorf("can: dialing %s: %w", iface, err)
	}
	sconn, err := socketcan.DialContext(context.Background(), "can", iface)
	if err != nil {
		rconn.Close()
		return nil, fmt.Errorf("can: dialing %s for transmit: %w", iface, err)
	}
	return &Bus{
		iface: iface,
		recv:  socketcan.NewReceiver(rconn),
		send:  socketcan.NewTransmitter(sconn),
	}, nil
}

// Recv blocks (bounded by ctx) for the next frame on the bus matching one
// of wantIDs. Frames with other IDs are silently skipped, per the
// "passive RX" semantics §4.2 describes for corner-CAN and radar.
func (b *Bus) Recv(ctx context.Context, wantIDs map[uint32]bool) (Frame, error) {
	type result struct {
		f   Frame
		err error
	}
	for {
		done := make(chan result, 1)
		go func() {
			if !b.recv.Receive() {
				if err := b.recv.Err(); err != nil {
					done <- result{err: fmt.Errorf("can: receiving on %s: %w", b.iface, err)}
					return
				}
				done <- result{err: fmt.Errorf("can: receive loop ended on %s", b.iface)}
				return
			}
			done <- result{f: b.recv.Frame()}
		}()
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case r := <-done:
			if r.err != nil {
				return Frame{}, r.err
			}
			if len(wantIDs) == 0 || wantIDs[r.f.ID] {
				return r.f, nil
			}
		}
	}
}

// Send transmits a keep-alive or command frame, used by the Toyota Denso
// radar handler's 100Hz keep-alive requirement.
func (b *Bus) Send(ctx context.Context, f Frame) error {
	if err := b.send.TransmitFrame(ctx, f); err != nil {
		return fmt.Errorf("can: transmitting on %s: %w", b.iface, err)
	}
	return nil
}

// Close releases both the receive and transmit sockets.
func (b *Bus) Close() error {
	var err error
	if e := b.recv.Close(); e != nil {
		err = e
	}
	if e := b.send.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
