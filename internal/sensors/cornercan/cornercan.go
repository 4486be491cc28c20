// Package cornercan implements the passive-RX corner-temperature handler
// described in §4.2: four corners' tread/brake thermal readings arrive on
// a shared CAN bus at 10Hz; a corner not heard from within the stale
// threshold keeps serving its last value with stale=true rather than
// disappearing.
package cornercan

import (
	"context"
	"fmt"
	"time"

	ican "github.com/SamSkjord/opentpt/internal/can"
	"github.com/SamSkjord/opentpt/internal/models"
	"github.com/SamSkjord/opentpt/pkg/handler"
)

// StaleAfter is the spec's 0.5s staleness threshold.
const StaleAfter = 500 * time.Millisecond

// CornerFrames names the two CAN IDs a corner's thermal data splits
// across: tread temperatures (left/centre/right + detected/confidence)
// and brake temperatures (inner/outer + status), since both don't fit in
// one 8-byte classic CAN frame.
type CornerFrames struct {
	Corner  models.WheelCorner
	TreadID uint32
	BrakeID uint32
}

// Reader implements handler.Reader[[]models.CornerTemps].
type Reader struct {
	iface  string
	frames []CornerFrames
	idSet  map[uint32]bool
	byID   map[uint32]frameRoute

	bus  *ican.Bus
	last [4]models.CornerTemps
	seen [4]time.Time
}

type frameRoute struct {
	corner models.WheelCorner
	tread  bool
}

// New constructs a corner-CAN reader listening on iface for each corner's
// tread and brake frame IDs.
func New(iface string, frames []CornerFrames) *Reader {
	idSet := make(map[uint32]bool, len(frames)*2)
	byID := make(map[uint32]frameRoute, len(frames)*2)
	for _, f := range frames {
		idSet[f.TreadID] = true
		idSet[f.BrakeID] = true
		byID[f.TreadID] = frameRoute{corner: f.Corner, tread: true}
		byID[f.BrakeID] = frameRoute{corner: f.Corner, tread: false}
	}
	return &Reader{iface: iface, frames: frames, idSet: idSet, byID: byID}
}

// Init opens the CAN interface.
func (r *Reader) Init(ctx context.Context) error {
	bus, err := ican.Open(r.iface)
	if err != nil {
		return fmt.Errorf("%w: opening corner-can %s: %v", handler.ErrDeviceAbsent, r.iface, err)
	}
	r.bus = bus
	return nil
}

// Read blocks for the next corner-temperature frame, updates that
// corner's slot, marks any corner not heard from within StaleAfter as
// stale, and returns the full four-corner table.
func (r *Reader) Read(ctx context.Context) ([]models.CornerTemps, error) {
	frame, err := r.bus.Recv(ctx, r.idSet)
	if err != nil {
		return nil, fmt.Errorf("cornercan: %w", err)
	}

	route, ok := r.byID[frame.ID]
	if !ok {
		return r.snapshot(), nil
	}

	now := time.Now()
	ct := r.last[route.corner]
	ct.Corner = route.corner
	if route.tread {
		decodeTread(&ct, frame)
	} else {
		decodeBrake(&ct, frame)
	}
	r.last[route.corner] = ct
	r.seen[route.corner] = now

	return r.snapshot(), nil
}

func (r *Reader) snapshot() []models.CornerTemps {
	now := time.Now()
	out := make([]models.CornerTemps, 4)
	for c := range r.last {
		ct := r.last[c]
		ct.Stale = r.seen[c].IsZero() || now.Sub(r.seen[c]) > StaleAfter
		out[c] = ct
	}
	return out
}

// Close releases the CAN bus handle.
func (r *Reader) Close() error {
	if r.bus == nil {
		return nil
	}
	return r.bus.Close()
}

// decodeTread fills the tread-temperature signals from a frame laid out
// as [left_c i16][centre_c i16][right_c i16][confidence u8][flags u8],
// deci-degrees little-endian.
func decodeTread(ct *models.CornerTemps, f ican.Frame) {
	ct.LeftC = float64(ican.I16LE(f, 0)) / 10
	ct.CentreC = float64(ican.I16LE(f, 2)) / 10
	ct.RightC = float64(ican.I16LE(f, 4)) / 10
	ct.Confidence = float64(f.Data[6]) / 255
	ct.Detected = f.Data[7]&0x01 != 0
}

// decodeBrake fills the brake-temperature signals from a frame laid out
// as [inner_c i16][outer_c i16][status u8], deci-degrees little-endian.
func decodeBrake(ct *models.CornerTemps, f ican.Frame) {
	ct.BrakeInnerC = float64(ican.I16LE(f, 0)) / 10
	ct.BrakeOuterC = float64(ican.I16LE(f, 2)) / 10
	ct.BrakeStatus = brakeStatus(f.Data[4])
}

func brakeStatus(flag byte) string {
	switch flag {
	case 0:
		return "ok"
	case 1:
		return "warn"
	case 2:
		return "fault"
	default:
		return "unknown"
	}
}
