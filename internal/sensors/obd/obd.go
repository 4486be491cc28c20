// Package obd implements the round-robin OBD-II PID poller described in
// §4.2: Mode 01 standard PIDs plus vendor Mode 22 PIDs, each polled in
// turn over an ELM327-style serial adapter, with per-PID auto-disable
// after repeated failures and bounded-window smoothing on the
// high-frequency channels.
package obd

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/SamSkjord/opentpt/internal/models"
	"github.com/SamSkjord/opentpt/pkg/handler"
)

// SmoothingMethod selects how a high-frequency PID's window is reduced.
type SmoothingMethod int

const (
	Median SmoothingMethod = iota
	Mean
)

// maxConsecutiveFailures is the per-PID auto-disable threshold from §4.2.
const maxConsecutiveFailures = 5

// defaultSmoothingWindow is the default bounded median-or-mean window
// applied to the high-frequency channels (speed, RPM, MAP).
const defaultSmoothingWindow = 5

// PID identifies one OBD-II parameter to poll.
type PID struct {
	Mode byte // 0x01 standard, 0x22 vendor-specific
	Code uint16
	Name string
	// Decode turns the raw response bytes (after mode/PID echo) into a
	// physical value.
	Decode func(data []byte) float64
	// Smoothed marks a high-frequency channel that should be run through
	// the bounded window before being written into the snapshot.
	Smoothed bool
}

// StandardPIDs is Mode 01's commonly supported channel set.
var StandardPIDs = []PID{
	{Mode: 0x01, Code: 0x0D, Name: "speed", Decode: func(d []byte) float64 { return float64(d[0]) }, Smoothed: true},
	{Mode: 0x01, Code: 0x0C, Name: "rpm", Decode: func(d []byte) float64 { return (float64(d[0])*256 + float64(d[1])) / 4 }, Smoothed: true},
	{Mode: 0x01, Code: 0x11, Name: "throttle", Decode: func(d []byte) float64 { return float64(d[0]) * 100 / 255 }},
	{Mode: 0x01, Code: 0x05, Name: "coolant_c", Decode: func(d []byte) float64 { return float64(d[0]) - 40 }},
	{Mode: 0x01, Code: 0x0B, Name: "map_kpa", Decode: func(d []byte) float64 { return float64(d[0]) }, Smoothed: true},
	{Mode: 0x01, Code: 0x2F, Name: "fuel_pct", Decode: func(d []byte) float64 { return float64(d[0]) * 100 / 255 }},
	{Mode: 0x01, Code: 0xA4, Name: "gear", Decode: func(d []byte) float64 { return float64(d[1]) }},
}

type pidState struct {
	pid                 PID
	consecutiveFailures int
	disabled            bool
	window              []float64
}

// Reader implements handler.Reader[models.OBDReading].
type Reader struct {
	path   string
	baud   int
	pids   []pidState
	window int
	method SmoothingMethod

	port   serial.Port
	reader *bufio.Reader

	latest models.OBDReading
	idx    int
}

// New constructs an OBD reader polling pids in round-robin order with the
// given smoothing window (0 uses the spec default of 5) and reduction
// method.
func New(path string, baud int, pids []PID, window int, method SmoothingMethod) *Reader {
	if baud == 0 {
		baud = 38400
	}
	if window <= 0 {
		window = defaultSmoothingWindow
	}
	if pids == nil {
		pids = StandardPIDs
	}
	states := make([]pidState, len(pids))
	for i, p := range pids {
		states[i] = pidState{pid: p}
	}
	return &Reader{path: path, baud: baud, pids: states, window: window, method: method}
}

// Init opens the ELM327-style adapter.
func (r *Reader) Init(ctx context.Context) error {
	mode := &serial.Mode{BaudRate: r.baud}
	p, err := serial.Open(r.path, mode)
	if err != nil {
		return fmt.Errorf("%w: opening obd adapter %s: %v", handler.ErrDeviceAbsent, r.path, err)
	}
	if err := p.SetReadTimeout(500 * time.Millisecond); err != nil {
		p.Close()
		return fmt.Errorf("obd: setting read timeout: %w", err)
	}
	r.port = p
	r.reader = bufio.NewReader(p)
	return nil
}

// Read polls the next enabled PID in round-robin order, folds it into the
// running reading, and returns the full snapshot. A PID with 5
// consecutive failures is permanently skipped from the rotation (but a
// failure on one PID does not fail the Read call — only a genuinely
// unreachable adapter does).
func (r *Reader) Read(ctx context.Context) (models.OBDReading, error) {
	if allDisabled(r.pids) {
		return models.OBDReading{}, fmt.Errorf("obd: all PIDs disabled, adapter unresponsive")
	}

	for attempts := 0; attempts < len(r.pids); attempts++ {
		st := &r.pids[r.idx]
		r.idx = (r.idx + 1) % len(r.pids)
		if st.disabled {
			continue
		}

		val, err := r.pollOne(ctx, st.pid)
		if err != nil {
			if ctx.Err() != nil {
				return models.OBDReading{}, ctx.Err()
			}
			st.consecutiveFailures++
			if st.consecutiveFailures >= maxConsecutiveFailures {
				st.disabled = true
			}
			continue
		}
		st.consecutiveFailures = 0

		if st.pid.Smoothed {
			st.window = append(st.window, val)
			if len(st.window) > r.window {
				st.window = st.window[len(st.window)-r.window:]
			}
			if r.method == Median {
				val = median(st.window)
			} else {
				val = mean(st.window)
			}
		}
		r.apply(st.pid.Name, val)
		return r.latest, nil
	}
	return models.OBDReading{}, fmt.Errorf("obd: no enabled PID produced a reading this round")
}

func (r *Reader) apply(name string, val float64) {
	switch name {
	case "speed":
		r.latest.SpeedKMH = val
	case "rpm":
		r.latest.RPM = val
	case "throttle":
		r.latest.ThrottlePct = val
	case "coolant_c":
		r.latest.CoolantC = val
	case "map_kpa":
		r.latest.MAPKPa = val
	case "fuel_pct":
		r.latest.FuelPct = val
	case "gear":
		r.latest.Gear = int(val)
	}
}

func (r *Reader) pollOne(ctx context.Context, pid PID) (float64, error) {
	cmd := fmt.Sprintf("%02X%02X\r", pid.Mode, pid.Code)
	if _, err := r.port.Write([]byte(cmd)); err != nil {
		return 0, fmt.Errorf("writing pid request: %w", err)
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := r.reader.ReadString('\r')
		done <- result{line, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return 0, fmt.Errorf("reading pid response: %w", res.err)
		}
		data, err := parseHexResponse(res.line, pid.Mode, pid.Code)
		if err != nil {
			return 0, err
		}
		return pid.Decode(data), nil
	}
}

// parseHexResponse strips an ELM327-style echoed response
// ("41 0D 32\r") down to the payload bytes after the mode+PID echo.
func parseHexResponse(line string, mode byte, code uint16) ([]byte, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 3 {
		return nil, fmt.Errorf("obd: short response %q", line)
	}
	bytesOut := make([]byte, 0, len(fields))
	for _, f := range fields {
		b, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("obd: malformed response byte %q: %w", f, err)
		}
		bytesOut = append(bytesOut, byte(b))
	}
	if len(bytesOut) < 2 {
		return nil, fmt.Errorf("obd: response too short")
	}
	return bytesOut[2:], nil
}

func allDisabled(pids []pidState) bool {
	for _, p := range pids {
		if !p.disabled {
			return false
		}
	}
	return true
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// Close releases the serial handle.
func (r *Reader) Close() error {
	if r.port == nil {
		return nil
	}
	return r.port.Close()
}
