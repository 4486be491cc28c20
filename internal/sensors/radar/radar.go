// Package radar implements the Toyota/Tesla radar handler from §4.2:
// passive track reception plus, for Toyota's Denso unit, a 100Hz
// keep-alive transmit the radar requires to keep streaming on a shared
// bus. Tracks within merge_radius_m are merged; tracks older than
// track_timeout_s are dropped.
package radar

import (
	"context"
	"fmt"
	"sort"
	"time"

	ican "github.com/SamSkjord/opentpt/internal/can"
	"github.com/SamSkjord/opentpt/internal/models"
	"github.com/SamSkjord/opentpt/pkg/handler"
)

// Vendor selects the radar's wire protocol.
type Vendor int

const (
	Toyota Vendor = iota
	Tesla
)

const (
	mergeRadiusM  = 1.0
	trackTimeoutS = 0.5
	keepAliveHz   = 100
)

// trackSlot holds the CAN ID of one per-track frame; Toyota/Tesla radars
// emit one frame per active track slot, and a slot's index in Reader.slots
// is the track ID it reports.
type trackSlot struct {
	id uint32
}

// Reader implements handler.Reader[[]models.RadarTrack].
type Reader struct {
	iface       string
	vendor      Vendor
	slots       []trackSlot
	keepAliveID uint32
	idSet       map[uint32]bool

	bus *ican.Bus
	raw map[int]rawTrack
}

type rawTrack struct {
	rangeM, lateralM, relSpeedMPS float64
	seenAt                        time.Time
}

// New constructs a radar reader. slotIDs lists the CAN IDs carrying
// per-slot track frames; for Toyota, emitsKeepAlive requests the 100Hz
// keep-alive transmit on keepAliveID.
func New(iface string, vendor Vendor, slotIDs []uint32, emitsKeepAlive bool, keepAliveID uint32) *Reader {
	slots := make([]trackSlot, len(slotIDs))
	idSet := make(map[uint32]bool, len(slotIDs))
	for i, id := range slotIDs {
		slots[i] = trackSlot{id: id}
		idSet[id] = true
	}
	r := &Reader{
		iface:  iface,
		vendor: vendor,
		slots:  slots,
		idSet:  idSet,
		raw:    make(map[int]rawTrack),
	}
	if emitsKeepAlive {
		r.keepAliveID = keepAliveID
	}
	return r
}

// Init opens the CAN bus and, if configured, starts the Denso keep-alive
// transmit goroutine.
func (r *Reader) Init(ctx context.Context) error {
	bus, err := ican.Open(r.iface)
	if err != nil {
		return fmt.Errorf("%w: opening radar can %s: %v", handler.ErrDeviceAbsent, r.iface, err)
	}
	r.bus = bus
	if r.keepAliveID != 0 {
		go r.keepAliveLoop(ctx)
	}
	return nil
}

// keepAliveLoop transmits the Denso keep-alive frame at keepAliveHz until
// ctx is cancelled; one radar handler drives it even when the bus is
// shared with corner-CAN, since the keep-alive frame ID never collides
// with thermal frame IDs.
func (r *Reader) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / keepAliveHz)
	defer ticker.Stop()
	frame := ican.Frame{ID: r.keepAliveID, Length: 8}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			txCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			_ = r.bus.Send(txCtx, frame)
			cancel()
		}
	}
}

// Read blocks for the next track frame, updates that slot, drops tracks
// older than track_timeout_s, merges tracks within merge_radius_m, and
// returns the current track list.
func (r *Reader) Read(ctx context.Context) ([]models.RadarTrack, error) {
	frame, err := r.bus.Recv(ctx, r.idSet)
	if err != nil {
		return nil, fmt.Errorf("radar: %w", err)
	}

	slot := slotIndex(r.slots, frame.ID)
	if slot >= 0 {
		rangeM, lateralM, relSpeed, active := decodeTrack(r.vendor, frame)
		if active {
			r.raw[slot] = rawTrack{rangeM: rangeM, lateralM: lateralM, relSpeedMPS: relSpeed, seenAt: time.Now()}
		} else {
			delete(r.raw, slot)
		}
	}

	return r.buildTracks(), nil
}

func (r *Reader) buildTracks() []models.RadarTrack {
	now := time.Now()
	live := make([]models.RadarTrack, 0, len(r.raw))
	for slot, rt := range r.raw {
		age := now.Sub(rt.seenAt).Seconds()
		if age > trackTimeoutS {
			delete(r.raw, slot)
			continue
		}
		live = append(live, models.RadarTrack{ID: slot, RangeM: rt.rangeM, LateralM: rt.lateralM, RelSpeedMPS: rt.relSpeedMPS, AgeS: age})
	}
	return mergeTracks(live)
}

// mergeTracks combines tracks whose range/lateral position differ by
// less than merge_radius_m into one, keeping the lower-ID track's
// identity and averaging the physical quantities.
func mergeTracks(tracks []models.RadarTrack) []models.RadarTrack {
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })
	merged := make([]models.RadarTrack, 0, len(tracks))
	used := make([]bool, len(tracks))
	for i := range tracks {
		if used[i] {
			continue
		}
		group := []models.RadarTrack{tracks[i]}
		used[i] = true
		for j := i + 1; j < len(tracks); j++ {
			if used[j] {
				continue
			}
			if closeEnough(tracks[i], tracks[j]) {
				group = append(group, tracks[j])
				used[j] = true
			}
		}
		merged = append(merged, averageGroup(group))
	}
	return merged
}

func closeEnough(a, b models.RadarTrack) bool {
	dr := a.RangeM - b.RangeM
	dl := a.LateralM - b.LateralM
	return dr*dr+dl*dl <= mergeRadiusM*mergeRadiusM
}

func averageGroup(group []models.RadarTrack) models.RadarTrack {
	if len(group) == 1 {
		return group[0]
	}
	out := models.RadarTrack{ID: group[0].ID}
	for _, t := range group {
		out.RangeM += t.RangeM
		out.LateralM += t.LateralM
		out.RelSpeedMPS += t.RelSpeedMPS
		if t.AgeS < out.AgeS || out.AgeS == 0 {
			out.AgeS = t.AgeS
		}
	}
	n := float64(len(group))
	out.RangeM /= n
	out.LateralM /= n
	out.RelSpeedMPS /= n
	return out
}

func slotIndex(slots []trackSlot, id uint32) int {
	for i, s := range slots {
		if s.id == id {
			return i
		}
	}
	return -1
}

// decodeTrack extracts range/lateral/relative-speed from a per-vendor
// frame layout. Both vendors use [range_cm u16][lateral_cm i16]
// [rel_speed_cms i16][flags u8], little-endian; a flags byte with bit 0
// clear means the slot carries no active track.
func decodeTrack(vendor Vendor, f ican.Frame) (rangeM, lateralM, relSpeedMPS float64, active bool) {
	active = f.Data[6]&0x01 != 0
	rangeM = float64(ican.U16LE(f, 0)) / 100
	lateralM = float64(ican.I16LE(f, 2)) / 100
	relSpeedMPS = float64(ican.I16LE(f, 4)) / 100
	return
}

// Close releases the CAN bus handle.
func (r *Reader) Close() error {
	if r.bus == nil {
		return nil
	}
	return r.bus.Close()
}
