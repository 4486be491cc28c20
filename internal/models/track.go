package models

import "time"

// TrackKind distinguishes a closed-loop circuit from a point-to-point
// stage.
type TrackKind int

const (
	Circuit TrackKind = iota
	PointToPoint
)

// CornerDirection is which way a corner turns.
type CornerDirection int

const (
	Left CornerDirection = iota
	Right
)

// Corner is a detected corner on a Track or CoPilot road polyline.
type Corner struct {
	ApexIdx    int // index into the owning polyline
	Severity   int // ASC 1 (flat-out) .. 6 (hairpin)
	Direction  CornerDirection
	EntryIdx   int
	ExitIdx    int
	MinRadiusM float64
}

// Track is an immutable, loaded circuit or stage.
type Track struct {
	Name       string
	Kind       TrackKind
	Origin     LatLon // projection origin used to build the ENU fields below
	StartLine  Segment
	FinishLine Segment
	Sectors    []Segment
	Waypoints  []ENU
	Corners    []Corner
	Centreline []ENU
}

// IsCircuitShaped reports whether StartLine and FinishLine coincide, the
// Track invariant for Kind==Circuit.
func (t Track) IsCircuitShaped() bool {
	return t.StartLine.A == t.FinishLine.A && t.StartLine.B == t.FinishLine.B
}

// Lap is one completed or in-progress lap.
type Lap struct {
	ID          string
	Number      uint32
	StartTS     time.Time
	EndTS       *time.Time
	Positions   []LapPosition
	SectorTimes []time.Duration
	TotalTime   *time.Duration
}

// LapPosition is one GPS sample attached to a lap.
type LapPosition struct {
	Point    ENU
	TS       time.Time
	SpeedKMH float64
}

// Sealed reports whether the lap has an end timestamp.
func (l Lap) Sealed() bool { return l.EndTS != nil }

// SumSectorTimes returns the sum of all recorded sector times.
func (l Lap) SumSectorTimes() time.Duration {
	var total time.Duration
	for _, d := range l.SectorTimes {
		total += d
	}
	return total
}
