package serial

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port is a line-oriented reader over a serial device, used by the GPS
// handler to pull one NMEA sentence per Read call.
type Port struct {
	port   serial.Port
	reader *bufio.Reader
}

// OpenPort opens path at baud and returns a line reader over it. A short
// per-read timeout is set on the underlying port so a blocked Read always
// returns control to the caller's context deadline rather than hanging
// indefinitely on a wedged device.
func OpenPort(path string, baud int) (*Port, error) {
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: opening %s: %w", path, err)
	}
	if err := p.SetReadTimeout(200 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("serial: setting read timeout on %s: %w", path, err)
	}
	return &Port{port: p, reader: bufio.NewReader(p)}, nil
}

// ReadLine blocks (bounded by ctx and the port's own read timeout) for one
// newline-terminated NMEA sentence.
func (p *Port) ReadLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		done <- result{line, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("serial: reading line: %w", r.err)
		}
		return r.line, nil
	}
}

// Close releases the underlying port handle.
func (p *Port) Close() error {
	return p.port.Close()
}
