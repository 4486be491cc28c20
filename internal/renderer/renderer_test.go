package renderer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamSkjord/opentpt/internal/copilot"
	"github.com/SamSkjord/opentpt/internal/fuel"
	"github.com/SamSkjord/opentpt/internal/laptiming"
	"github.com/SamSkjord/opentpt/internal/models"
	"github.com/SamSkjord/opentpt/internal/pit"
	"github.com/SamSkjord/opentpt/pkg/handler"
)

type fakeGPSReader struct {
	fixes chan models.GPSFix
}

func (f *fakeGPSReader) Init(ctx context.Context) error { return nil }
func (f *fakeGPSReader) Read(ctx context.Context) (models.GPSFix, error) {
	select {
	case v := <-f.fixes:
		return v, nil
	case <-ctx.Done():
		return models.GPSFix{}, ctx.Err()
	}
}
func (f *fakeGPSReader) Close() error { return nil }

type recordingDisplay struct {
	draws      int32
	failNTimes int32
	pages      chan Page
}

func (d *recordingDisplay) DrawPage(ctx context.Context, page Page, frame Frame) error {
	atomic.AddInt32(&d.draws, 1)
	if n := atomic.LoadInt32(&d.failNTimes); n > 0 {
		atomic.AddInt32(&d.failNTimes, -1)
		return errors.New("simulated display error")
	}
	if d.pages != nil {
		select {
		case d.pages <- page:
		default:
		}
	}
	return nil
}

func (d *recordingDisplay) Present(ctx context.Context) error { return nil }

func newTestTrack() *models.Track {
	origin := models.LatLon{Lat: 1, Lon: 1}
	proj := models.NewProjector(origin)
	a := proj.ToENU(models.LatLon{Lat: 1, Lon: 1})
	b := proj.ToENU(models.LatLon{Lat: 1.0001, Lon: 1})
	return &models.Track{
		Name:       "test-track",
		Origin:     origin,
		StartLine:  models.Segment{A: a, B: b},
		FinishLine: models.Segment{A: a, B: b},
	}
}

func TestRenderer_DrawsFramesAtTargetRate(t *testing.T) {
	track := newTestTrack()
	proj := models.NewProjector(track.Origin)
	engine := laptiming.NewEngine(track, 15, nil)

	reader := &fakeGPSReader{fixes: make(chan models.GPSFix, 1)}
	h := handler.New[models.GPSFix]("gps", reader)
	h.Start(context.Background())
	defer h.Stop(time.Second)

	display := &recordingDisplay{pages: make(chan Page, 8)}
	cfg := Config{TargetFPS: 100, StaleTimeout: time.Second, RenderBudget: 50 * time.Millisecond, CrashRetryLimit: 5}
	r := New(cfg, Handlers{GPS: h}, Engines{LapTiming: engine}, display, proj, nil)

	reader.fixes <- models.GPSFix{Lat: 1, Lon: 1, FixQuality: 1, SpeedKMH: 50}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&display.draws), int32(5))
}

func TestRenderer_StaleWhenNoHandlerPublished(t *testing.T) {
	track := newTestTrack()
	proj := models.NewProjector(track.Origin)
	r := New(DefaultConfig(), Handlers{}, Engines{}, &recordingDisplay{}, proj, nil)

	frame := r.pollAndDrive(time.Now())
	assert.True(t, frame.GPSStale)
	assert.True(t, frame.OBDStale)
}

func TestRenderer_StaleAfterTimeout(t *testing.T) {
	track := newTestTrack()
	proj := models.NewProjector(track.Origin)
	r := New(Config{StaleTimeout: 10 * time.Millisecond}, Handlers{}, Engines{}, &recordingDisplay{}, proj, nil)
	r.cache.gps = cached[models.GPSFix]{value: models.GPSFix{Lat: 1}, ts: time.Now().Add(-time.Second), have: true}

	fix, stale := fresh(r.cache.gps, time.Now(), r.cfg.StaleTimeout)
	assert.True(t, stale)
	assert.Equal(t, 1.0, fix.Lat)
}

func TestRenderer_CrashRecoveryExhaustsRetryBudget(t *testing.T) {
	track := newTestTrack()
	proj := models.NewProjector(track.Origin)
	display := &recordingDisplay{failNTimes: 10}
	cfg := Config{TargetFPS: 200, StaleTimeout: time.Second, RenderBudget: time.Second, CrashRetryLimit: 3}
	r := New(cfg, Handlers{}, Engines{}, display, proj, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := r.Run(ctx)
	require.Error(t, err)
}

func TestRenderer_CameraFreezesOnMissingFeed(t *testing.T) {
	track := newTestTrack()
	proj := models.NewProjector(track.Origin)
	r := New(DefaultConfig(), Handlers{}, Engines{}, &recordingDisplay{}, proj, nil)
	r.lastCameraFrame = []byte("last")

	var f Frame
	r.fillCamera(&f)
	assert.Equal(t, []byte("last"), f.CameraFrame)
	assert.True(t, f.CameraFrozen)
}

func TestRenderer_FuelCompletesLapOnLapCompletion(t *testing.T) {
	track := newTestTrack()
	proj := models.NewProjector(track.Origin)
	engine := laptiming.NewEngine(track, 15, nil)
	tracker := fuel.NewTracker(10, fuel.Median, 5, 20, 10)
	tracker.AddSample(90)

	r := New(DefaultConfig(), Handlers{}, Engines{LapTiming: engine, Fuel: tracker}, &recordingDisplay{}, proj, nil)

	now := time.Now()
	onLine := track.StartLine.A
	offLine := proj.ToENU(models.LatLon{Lat: 1.0005, Lon: 1.0005})

	r.driveGPS(models.GPSFix{Lat: 1.00005, Lon: 1.0001, FixQuality: 1, SpeedKMH: 40}, now)
	_ = onLine
	r.driveGPS(models.GPSFix{Lat: 1.00005, Lon: 0.9999, FixQuality: 1, SpeedKMH: 40}, now.Add(time.Second))
	_ = offLine

	assert.NotNil(t, engine.CurrentLap())
}

// TestRenderer_FillEngineOutputsPopulatesFuelEstimate mirrors the spec's
// end-to-end scenario 4: start 100%, 95% after lap 1, 89% after lap 2
// (avg 5.5%/lap), 12km cumulative distance. laps_remaining must reach
// the renderer's Frame, not just the tracker.
func TestRenderer_FillEngineOutputsPopulatesFuelEstimate(t *testing.T) {
	track := newTestTrack()
	proj := models.NewProjector(track.Origin)
	tracker := fuel.NewTracker(10, fuel.Median, 50, 20, 10)

	tracker.AddSample(100)
	tracker.CompleteLap()
	tracker.AddSample(95)
	tracker.CompleteLap()
	tracker.AddSample(89)
	tracker.CompleteLap()
	tracker.AddDistanceKM(12)

	r := New(DefaultConfig(), Handlers{}, Engines{Fuel: tracker}, &recordingDisplay{}, proj, nil)

	var f Frame
	r.fillEngineOutputs(&f, time.Now())

	require.True(t, f.HaveFuelLapsRemaining)
	assert.InDelta(t, 16.0, f.FuelLapsRemaining, 0.5)
}

// fireOnceCrossing satisfies pit.Crossing, firing true on its first call
// only — enough to drive the engine into InPitLane without exercising
// the line-crossing geometry, which internal/laptiming tests separately.
type fireOnceCrossing struct{ fired bool }

func (c *fireOnceCrossing) Update(models.ENU) bool {
	if c.fired {
		return false
	}
	c.fired = true
	return true
}

// TestRenderer_PitWarningAndCountdownReachFrame exercises the §4.4/§4.7
// wiring: a speed-limit warning from Feed and the Remaining() countdown
// must both surface on the Frame the display draws, not just live inside
// the pit engine.
func TestRenderer_PitWarningAndCountdownReachFrame(t *testing.T) {
	track := newTestTrack()
	proj := models.NewProjector(track.Origin)

	wp := models.PitWaypoint{
		TrackName:     track.Name,
		Mode:          models.StationaryOnly,
		SpeedLimitKMH: 60,
		MinStopS:      10,
	}
	pitEngine := pit.NewEngine(wp, &fireOnceCrossing{}, &fireOnceCrossing{}, 5, 0.5, 5)

	r := New(DefaultConfig(), Handlers{}, Engines{Pit: pitEngine}, &recordingDisplay{}, proj, nil)

	now := time.Now()
	r.driveGPS(models.GPSFix{Lat: 1, Lon: 1, FixQuality: 1, SpeedKMH: 58}, now)
	require.Equal(t, models.InPitLane, pitEngine.Current().State)

	var f Frame
	r.fillEngineOutputs(&f, now)
	assert.True(t, f.PitWarning, "58 km/h is within the warning margin of the 60 km/h limit")
	assert.False(t, f.PitGoFlag)
}

// TestRenderer_CoPilotStatusAndPaceNoteReachFrame exercises the §4.6 step
// 6 "Emit" wiring: the pipeline's due pace-note and status must land on
// the Frame the display/audio collaborators read, not just live inside
// Pipeline.Tick's return values.
func TestRenderer_CoPilotStatusAndPaceNoteReachFrame(t *testing.T) {
	detector := laptiming.NewDetector(laptiming.DetectorThreshold, laptiming.DefaultProfile())
	pipeline := copilot.NewPipeline(copilot.JustDrive, nil, nil, nil, detector)

	track := newTestTrack()
	proj := models.NewProjector(track.Origin)
	r := New(DefaultConfig(), Handlers{}, Engines{CoPilot: pipeline}, &recordingDisplay{}, proj, nil)

	now := time.Now()
	r.driveGPS(models.GPSFix{Lat: 51.5, Lon: -1.0, FixQuality: 1, HeadingDeg: 90}, now)

	var f Frame
	r.fillEngineOutputs(&f, now)
	assert.Equal(t, copilot.StatusNoPath, f.CoPilotStatus, "no roads DB and no track means no path")
	assert.False(t, f.HavePaceNote)
}
