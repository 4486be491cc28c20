package copilot

import (
	"fmt"
	"math"

	"github.com/SamSkjord/opentpt/internal/laptiming"
	"github.com/SamSkjord/opentpt/internal/models"
)

// Mode selects whether Locate follows a loaded Track or queries the
// roads DB freely.
type Mode int

const (
	JustDrive Mode = iota
	RouteFollow
)

const (
	defaultRoadSearchRadiusM   = 150.0
	defaultHeadingToleranceDeg = 45.0
	defaultNearestFallbackM    = 30.0
	defaultLookaheadM          = 1000.0
	defaultRefetchDistanceM    = 500.0
)

// Status is the pipeline's externally visible state.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusOK
	StatusNoPath
	StatusError
)

// Pipeline runs the locate/project/lookahead/detect/build/emit stages
// described in §4.6, once per update tick.
type Pipeline struct {
	mode     Mode
	track    *models.Track
	roadsDB  *RoadsDB
	cache    *TileCache
	detector laptiming.Detector

	lookaheadM       float64
	refetchDistanceM float64
	mergeDistanceM   float64
	brackets         []DistanceBracket

	status Status

	currentPath    models.RoadPath
	stations       []float64
	lastFetchPoint models.LatLon
	haveFetch      bool

	notes     []models.PaceNote
	announced map[string]bool
}

// NewPipeline builds a Pipeline. track may be nil (road-DB driven,
// JustDrive mode); roadsDB may be nil if CoPilot is operating purely
// against a loaded Track.
func NewPipeline(mode Mode, track *models.Track, roadsDB *RoadsDB, cache *TileCache, detector laptiming.Detector) *Pipeline {
	return &Pipeline{
		mode:             mode,
		track:            track,
		roadsDB:          roadsDB,
		cache:            cache,
		detector:         detector,
		lookaheadM:       defaultLookaheadM,
		refetchDistanceM: defaultRefetchDistanceM,
		brackets:         DefaultBrackets(),
		announced:        map[string]bool{},
		status:           StatusIdle,
	}
}

// Status returns the pipeline's current externally visible status.
func (p *Pipeline) Status() Status { return p.status }

// Tick runs one locate/project/lookahead/detect/build cycle for the
// current vehicle position and heading, and returns the pace-note due
// this tick, if any.
func (p *Pipeline) Tick(pos models.LatLon, headingDeg float64) (models.PaceNote, bool) {
	path, proj, err := p.locate(pos, headingDeg)
	if err != nil {
		p.status = StatusNoPath
		return models.PaceNote{}, false
	}
	p.status = StatusOK

	station := p.project(path, proj, pos)

	window, stations := lookaheadWindow(path, station, p.lookaheadM)
	window.Corners = p.detector.Detect(window.Points)
	p.currentPath = window
	p.stations = stations

	p.notes = BuildPaceNotes(window, stations, p.mergeDistanceM)

	note, due := DueNote(p.notes, station, p.announced, p.brackets)
	if due {
		p.announced[note.ID] = true
	}
	return note, due
}

func (p *Pipeline) locate(pos models.LatLon, headingDeg float64) (models.RoadPath, models.Projector, error) {
	if p.mode == RouteFollow && p.track != nil {
		proj := models.NewProjector(p.track.Origin)
		return models.RoadPath{Points: p.track.Centreline, Corners: p.track.Corners}, proj, nil
	}

	if p.roadsDB == nil {
		return models.RoadPath{}, models.Projector{}, fmt.Errorf("no roads database available")
	}

	p.evictStaleTile(pos)

	var roads []NearbyRoad
	if p.cache != nil {
		if cached, ok := p.cache.Get(pos); ok {
			roads = cached
		}
	}
	if roads == nil {
		fetched, err := p.roadsDB.QueryNear(pos, defaultRoadSearchRadiusM)
		if err != nil {
			return models.RoadPath{}, models.Projector{}, err
		}
		roads = fetched
		if p.cache != nil {
			p.cache.Put(pos, roads)
		}
		p.lastFetchPoint = pos
		p.haveFetch = true
	}

	best, ok := chooseRoad(roads, pos, headingDeg)
	if !ok {
		return models.RoadPath{}, models.Projector{}, fmt.Errorf("no road within search radius")
	}

	proj := models.NewProjector(best.Points[0])
	points := make([]models.ENU, len(best.Points))
	for i, ll := range best.Points {
		points[i] = proj.ToENU(ll)
	}
	return models.RoadPath{Points: points}, proj, nil
}

// chooseRoad picks the road whose tangent near the vehicle is within
// heading_tolerance_deg of headingDeg, falling back to the nearest road
// within 30m regardless of heading.
func chooseRoad(roads []NearbyRoad, pos models.LatLon, headingDeg float64) (NearbyRoad, bool) {
	var nearest NearbyRoad
	nearestDist := math.Inf(1)
	haveNearest := false

	for _, r := range roads {
		if len(r.Points) < 2 {
			continue
		}
		d := models.HaversineMeters(pos, r.Points[0])
		if d < nearestDist {
			nearestDist = d
			nearest = r
			haveNearest = true
		}

		tangent := models.BearingDegrees(r.Points[0], r.Points[1])
		diff := math.Abs(angleDiff(tangent, headingDeg))
		if diff <= defaultHeadingToleranceDeg {
			return r, true
		}
	}

	if haveNearest && nearestDist <= defaultNearestFallbackM {
		return nearest, true
	}
	return NearbyRoad{}, false
}

func angleDiff(a, b float64) float64 {
	d := math.Mod(b-a+540, 360) - 180
	return d
}

func (p *Pipeline) project(path models.RoadPath, proj models.Projector, pos models.LatLon) float64 {
	vehicle := proj.ToENU(pos)
	var best float64
	bestDist := math.Inf(1)
	station := 0.0
	for i := 0; i < len(path.Points)-1; i++ {
		a, b := path.Points[i], path.Points[i+1]
		t, dist := projectOntoSegment(a, b, vehicle)
		segLen := models.Dist(a, b)
		s := station + t*segLen
		if dist < bestDist {
			bestDist = dist
			best = s
		}
		station += segLen
	}
	return best
}

// evictStaleTile drops the cached tile around pos once the vehicle has
// moved more than refetch_distance_m since the last real roads-DB fetch
// (§4.6 step 3), forcing locate()'s cache lookup to miss and re-query
// even though the vehicle may still be inside the same ~1.1km grid tile.
func (p *Pipeline) evictStaleTile(pos models.LatLon) {
	if p.cache == nil || !p.haveFetch {
		return
	}
	if models.HaversineMeters(p.lastFetchPoint, pos) >= p.refetchDistanceM {
		p.cache.Evict(pos)
	}
}

// lookaheadWindow returns the slice of path.Points within
// [station, station+lookaheadM] and each point's station distance.
func lookaheadWindow(path models.RoadPath, station, lookaheadM float64) (models.RoadPath, []float64) {
	var points []models.ENU
	var stations []float64
	s := 0.0
	for i, p := range path.Points {
		if i > 0 {
			s += models.Dist(path.Points[i-1], p)
		}
		if s >= station && s <= station+lookaheadM {
			points = append(points, p)
			stations = append(stations, s)
		}
	}
	return models.RoadPath{Points: points}, stations
}

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
