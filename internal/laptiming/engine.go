// Package laptiming implements S/F and sector crossing detection,
// per-lap and per-sector timing, delta-to-reference computation, and
// track loading/persistence (§4.3).
package laptiming

import (
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/SamSkjord/opentpt/internal/models"
)

// GPSSample is one position update fed into the engine.
type GPSSample struct {
	Point    models.ENU
	TS       time.Time
	SpeedKMH float64
	HasFix   bool
}

// Engine drives lap detection for a single loaded Track. It is
// single-consumer: only the renderer feeds it samples.
type Engine struct {
	track *models.Track

	sf            *crossingDetector
	sectors       []*crossingDetector
	nextSectorIdx int

	current    *models.Lap
	lapNumber  uint32
	sealedLaps []models.Lap

	refLap          *models.Lap
	projector       models.Projector
	outOfOrderWarns uint32

	store *Store // nil if persistence unavailable
}

// NewEngine loads track and prepares crossing detectors. lineWidthM of
// 0 uses the spec default (15m).
func NewEngine(track *models.Track, lineWidthM float64, store *Store) *Engine {
	e := &Engine{track: track, store: store}
	e.sf = newCrossingDetector(track.StartLine, lineWidthM)
	for _, s := range track.Sectors {
		e.sectors = append(e.sectors, newCrossingDetector(s, lineWidthM))
	}

	if store != nil {
		if best, err := store.BestLap(track.Name); err == nil && best != nil {
			e.refLap = best
		}
	}
	return e
}

// Feed processes one GPS sample. No GPS fix means no crossings are
// attempted, per §4.3 Failure modes.
func (e *Engine) Feed(s GPSSample) {
	if !s.HasFix {
		return
	}

	sfCrossed := e.sf.Update(s.Point)

	if e.current != nil {
		e.current.Positions = append(e.current.Positions, models.LapPosition{Point: s.Point, TS: s.TS, SpeedKMH: s.SpeedKMH})
		e.feedSectors(s)
	}

	if sfCrossed {
		e.onStartFinishCross(s)
	}
}

func (e *Engine) feedSectors(s GPSSample) {
	for i, det := range e.sectors {
		if !det.Update(s.Point) {
			continue
		}
		if i != e.nextSectorIdx {
			e.outOfOrderWarns++
			continue
		}
		sectorTime := s.TS.Sub(e.lastSplitTS())
		e.current.SectorTimes = append(e.current.SectorTimes, sectorTime)
		e.nextSectorIdx++
	}
}

func (e *Engine) lastSplitTS() time.Time {
	if len(e.current.SectorTimes) == 0 {
		return e.current.StartTS
	}
	// Reconstruct the timestamp of the previous split from cumulative
	// sector durations so consecutive sector times are contiguous.
	ts := e.current.StartTS
	for _, d := range e.current.SectorTimes {
		ts = ts.Add(d)
	}
	return ts
}

func (e *Engine) onStartFinishCross(s GPSSample) {
	now := s.TS

	if e.current != nil {
		end := now
		e.current.EndTS = &end
		total := end.Sub(e.current.StartTS)
		e.current.TotalTime = &total
		e.sealedLaps = append(e.sealedLaps, *e.current)
		e.maybeUpdateReference(*e.current)
	}

	e.lapNumber++
	lapID, err := uuid.NewV4()
	if err != nil {
		lapID = uuid.Nil
	}
	e.current = &models.Lap{
		ID:      lapID.String(),
		Number:  e.lapNumber,
		StartTS: now,
	}
	e.nextSectorIdx = 0
	for _, det := range e.sectors {
		det.Reset()
	}
}

// maybeUpdateReference applies the §12 tie-break decision: a faster lap
// replaces the reference; on an exact tie the existing reference (which,
// on first load, is the persisted best) is kept.
func (e *Engine) maybeUpdateReference(lap models.Lap) {
	if lap.TotalTime == nil {
		return
	}
	if e.refLap == nil || *lap.TotalTime < *e.refLap.TotalTime {
		l := lap
		e.refLap = &l
	}
	if e.store != nil {
		_ = e.store.SaveLapIfBest(e.track.Name, lap)
	}
}

// CurrentLap returns the in-progress lap, if any.
func (e *Engine) CurrentLap() *models.Lap { return e.current }

// CompletedLaps returns all sealed laps this session, oldest first.
func (e *Engine) CompletedLaps() []models.Lap { return e.sealedLaps }

// OutOfOrderCrossings reports the count of sector crossings ignored
// because they arrived before the expected sector in lap order.
func (e *Engine) OutOfOrderCrossings() uint32 { return e.outOfOrderWarns }

// Delta computes the signed time delta between the in-progress lap's
// latest sample and the reference lap at the closest matching point, per
// §4.3. Returns ok=false if there is no in-progress lap, no reference
// lap, or the reference lap has zero length (delta undefined → "--").
func (e *Engine) Delta() (delta time.Duration, ok bool) {
	if e.current == nil || e.refLap == nil || len(e.current.Positions) == 0 || len(e.refLap.Positions) < 2 {
		return 0, false
	}
	cur := e.current.Positions[len(e.current.Positions)-1]
	matchTS, matched := closestPointTime(e.refLap.Positions, cur.Point)
	if !matched {
		return 0, false
	}
	elapsedCur := cur.TS.Sub(e.current.StartTS)
	elapsedRef := matchTS.Sub(e.refLap.StartTS)
	return elapsedCur - elapsedRef, true
}

// closestPointTime projects p onto the reference polyline (built from
// its recorded positions) and returns the interpolated timestamp at the
// matched point.
func closestPointTime(positions []models.LapPosition, p models.ENU) (time.Time, bool) {
	if len(positions) < 2 {
		return time.Time{}, false
	}
	bestDist := -1.0
	var bestTS time.Time
	found := false

	for i := 0; i < len(positions)-1; i++ {
		a, b := positions[i], positions[i+1]
		t, dist := projectOntoSegment(a.Point, b.Point, p)
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			span := b.TS.Sub(a.TS)
			bestTS = a.TS.Add(time.Duration(float64(span) * t))
			found = true
		}
	}
	return bestTS, found
}

// projectOntoSegment returns the parametric position t in [0,1] of p's
// projection onto segment a-b, clamped to the segment, and the distance
// from p to that projected point.
func projectOntoSegment(a, b, p models.ENU) (t float64, dist float64) {
	v := models.ENU{E: b.E - a.E, N: b.N - a.N}
	w := models.ENU{E: p.E - a.E, N: p.N - a.N}
	vv := v.E*v.E + v.N*v.N
	if vv == 0 {
		return 0, models.Dist(a, p)
	}
	t = (w.E*v.E + w.N*v.N) / vv
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	proj := models.ENU{E: a.E + t*v.E, N: a.N + t*v.N}
	return t, models.Dist(proj, p)
}
