// Package gps implements the 10Hz NMEA GPS handler described in §4.2: it
// opens a serial port, decodes $GPRMC/$GPGGA sentences, and publishes a
// combined position/speed/heading/fix-quality snapshot.
package gps

import (
	"context"
	"fmt"

	"github.com/SamSkjord/opentpt/internal/models"
	"github.com/SamSkjord/opentpt/internal/serial"
	"github.com/SamSkjord/opentpt/pkg/handler"
)

// Reader implements handler.Reader[models.GPSFix].
type Reader struct {
	path string
	baud int
	port *serial.Port

	haveRMC bool
	rmc     serial.RMC
	gga     serial.GGA
}

// New constructs a GPS reader bound to the given serial device path.
func New(path string, baud int) *Reader {
	if baud == 0 {
		baud = 9600
	}
	return &Reader{path: path, baud: baud}
}

// Init opens the serial port. A missing device is a permanent failure.
func (r *Reader) Init(ctx context.Context) error {
	p, err := serial.OpenPort(r.path, r.baud)
	if err != nil {
		return fmt.Errorf("%w: opening gps port %s: %v", handler.ErrDeviceAbsent, r.path, err)
	}
	r.port = p
	return nil
}

// Read accumulates sentences until an RMC sentence has been followed by a
// GGA sentence, then returns the combined fix; the two sentences' UTC times
// are not compared. Malformed or out-of-sequence
// sentences are skipped rather than treated as read failures — only a
// serial I/O error or context cancellation aborts the call.
//
// YearInRange is not enforced here: whether to trust this fix's timestamp
// for a system clock sync is a decision for the caller wiring handlers
// together, not this handler's snapshot contract.
func (r *Reader) Read(ctx context.Context) (models.GPSFix, error) {
	for {
		select {
		case <-ctx.Done():
			return models.GPSFix{}, ctx.Err()
		default:
		}

		line, err := r.port.ReadLine(ctx)
		if err != nil {
			return models.GPSFix{}, fmt.Errorf("gps: %w", err)
		}

		if fix, ok := r.feedLine(line); ok {
			return fix, nil
		}
	}
}

// feedLine folds one raw NMEA line into the reader's in-progress epoch,
// returning a combined fix once an RMC has been followed by a GGA.
// Malformed or unrecognised lines are ignored (ok=false), never an error.
func (r *Reader) feedLine(line string) (models.GPSFix, bool) {
	switch {
	case matchesType(line, "RMC"):
		rmc, err := serial.ParseRMC(line)
		if err != nil {
			return models.GPSFix{}, false
		}
		r.rmc = rmc
		r.haveRMC = true
	case matchesType(line, "GGA"):
		gga, err := serial.ParseGGA(line)
		if err != nil {
			return models.GPSFix{}, false
		}
		r.gga = gga
		if r.haveRMC {
			fix := models.GPSFix{
				Lat:        r.rmc.Lat,
				Lon:        r.rmc.Lon,
				SpeedKMH:   r.rmc.SpeedKMH,
				HeadingDeg: r.rmc.HeadingDeg,
				FixQuality: r.gga.FixQuality,
				Satellites: r.gga.Satellites,
				TS:         r.rmc.TS,
			}
			r.haveRMC = false
			return fix, true
		}
	}
	return models.GPSFix{}, false
}

// Close releases the serial port.
func (r *Reader) Close() error {
	if r.port == nil {
		return nil
	}
	return r.port.Close()
}

// matchesType reports whether a "$GPxxx,..." / "$GNxxx,..." sentence's
// three-letter type code (characters 3-5, after the two-letter talker ID)
// equals kind.
func matchesType(line, kind string) bool {
	if len(line) < 6 {
		return false
	}
	return line[3:6] == kind
}
