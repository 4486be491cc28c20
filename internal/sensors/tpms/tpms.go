// Package tpms implements the event-driven tyre-pressure-monitor handler
// described in §4.2: an RF receiver module delivers one frame per
// transmitting sensor, asynchronously, over a serial link; this handler
// decodes frames as they arrive and republishes the full four-corner
// table on every update.
package tpms

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/SamSkjord/opentpt/internal/models"
	"github.com/SamSkjord/opentpt/pkg/handler"
)

// SensorID maps a TPMS transmitter's hardware ID to the wheel corner it is
// mounted on; configured per-vehicle since RF sensor IDs are not
// positional.
type SensorID = uint32

// Reader implements handler.Reader[[]models.TPMSReading]. It maintains one
// slot per corner and only reports a corner Present once a frame from its
// mapped sensor ID has arrived.
type Reader struct {
	path       string
	baud       int
	idToCorner map[SensorID]models.WheelCorner

	port   serial.Port
	reader *bufio.Reader

	readings [4]models.TPMSReading
}

// New constructs a TPMS reader; idToCorner maps each paired sensor's
// hardware ID onto the corner it is mounted on.
func New(path string, baud int, idToCorner map[SensorID]models.WheelCorner) *Reader {
	if baud == 0 {
		baud = 19200
	}
	r := &Reader{path: path, baud: baud, idToCorner: idToCorner}
	for c := models.FrontLeft; c <= models.RearRight; c++ {
		r.readings[c] = models.TPMSReading{Corner: c, Present: false}
	}
	return r
}

// Init opens the RF receiver's serial link.
func (r *Reader) Init(ctx context.Context) error {
	mode := &serial.Mode{BaudRate: r.baud}
	p, err := serial.Open(r.path, mode)
	if err != nil {
		return fmt.Errorf("%w: opening tpms receiver %s: %v", handler.ErrDeviceAbsent, r.path, err)
	}
	if err := p.SetReadTimeout(200 * time.Millisecond); err != nil {
		p.Close()
		return fmt.Errorf("tpms: setting read timeout: %w", err)
	}
	r.port = p
	r.reader = bufio.NewReader(p)
	return nil
}

// Read blocks for one RF frame and returns the updated four-corner table.
// An unrecognised sensor ID is ignored (not an error) — the spec scopes
// only the paired corners.
func (r *Reader) Read(ctx context.Context) ([]models.TPMSReading, error) {
	for {
		frame, err := r.readFrameCtx(ctx)
		if err != nil {
			return nil, fmt.Errorf("tpms: %w", err)
		}

		corner, ok := r.idToCorner[frame.id]
		if !ok {
			continue
		}
		r.readings[corner] = models.TPMSReading{
			Corner:      corner,
			PressureKPA: frame.pressureKPA,
			TempC:       frame.tempC,
			BatteryPct:  frame.batteryPct,
			Present:     true,
		}
		out := make([]models.TPMSReading, 4)
		copy(out, r.readings[:])
		return out, nil
	}
}

// Close releases the serial handle.
func (r *Reader) Close() error {
	if r.port == nil {
		return nil
	}
	return r.port.Close()
}

// readFrameCtx runs readFrame on a background goroutine so a caller's
// context cancellation (e.g. Stop's timeout) is honoured promptly even
// though the underlying bufio.Reader has no context-aware Read.
func (r *Reader) readFrameCtx(ctx context.Context) (rfFrame, error) {
	type result struct {
		f   rfFrame
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := readFrame(r.reader)
		done <- result{f, err}
	}()
	select {
	case <-ctx.Done():
		return rfFrame{}, ctx.Err()
	case res := <-done:
		return res.f, res.err
	}
}

// rfFrame is one decoded RF receiver packet: 4-byte sensor ID, pressure in
// tenths of a kPa, temperature in deci-°C, battery percent, all
// little-endian, in a fixed-length frame between a 0xAA start byte and a
// 0x55 end byte.
type rfFrame struct {
	id          uint32
	pressureKPA float64
	tempC       float64
	batteryPct  float64
}

const frameLen = 1 + 4 + 2 + 2 + 1 + 1 // start + id + pressure + temp + battery + end

func readFrame(br *bufio.Reader) (rfFrame, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return rfFrame{}, err
		}
		if b != 0xAA {
			continue
		}
		payload := make([]byte, frameLen-1)
		if _, err := readFull(br, payload); err != nil {
			return rfFrame{}, err
		}
		if payload[len(payload)-1] != 0x55 {
			continue // resync on the next 0xAA
		}
		return rfFrame{
			id:          binary.LittleEndian.Uint32(payload[0:4]),
			pressureKPA: float64(binary.LittleEndian.Uint16(payload[4:6])) / 10,
			tempC:       float64(int16(binary.LittleEndian.Uint16(payload[6:8]))) / 10,
			batteryPct:  float64(payload[8]),
		}, nil
	}
}

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		k, err := br.Read(buf[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
