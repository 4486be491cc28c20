// Package renderer implements the fixed-rate frame scheduler (§4.7):
// non-blocking snapshot fan-in from every sensor handler, stale-data
// caching, driving the stateful domain engines (lap timing, fuel, pit,
// CoPilot), frame-budget accounting, and crash recovery around the
// per-frame draw call. Pixel-level drawing itself is an external
// collaborator (§1 Out of scope) reached through the Display interface.
package renderer

import (
	"context"
	"time"

	"github.com/SamSkjord/opentpt/internal/copilot"
	"github.com/SamSkjord/opentpt/internal/fuel"
	"github.com/SamSkjord/opentpt/internal/laptiming"
	"github.com/SamSkjord/opentpt/internal/log"
	"github.com/SamSkjord/opentpt/internal/metrics"
	"github.com/SamSkjord/opentpt/internal/models"
	"github.com/SamSkjord/opentpt/internal/pit"
	"github.com/SamSkjord/opentpt/pkg/handler"
)

// Config controls the frame scheduler's timing.
type Config struct {
	TargetFPS       int
	StaleTimeout    time.Duration
	RenderBudget    time.Duration
	CrashRetryLimit int
}

// DefaultConfig mirrors the spec's defaults: 60 Hz, 1 s staleness, 12 ms
// render budget, 5 tolerated display errors.
func DefaultConfig() Config {
	return Config{
		TargetFPS:       60,
		StaleTimeout:    time.Second,
		RenderBudget:    12 * time.Millisecond,
		CrashRetryLimit: 5,
	}
}

// consecutiveOverrunWarnAt is the consecutive-overrun count at which the
// scheduler logs a budget warning, per §4.7.
const consecutiveOverrunWarnAt = 5

// Handlers bundles every sensor source the renderer polls each frame.
// Any field may be nil (source not configured for this build), which
// the fan-in treats identically to "never published".
type Handlers struct {
	GPS         *handler.Handler[models.GPSFix]
	OBD         *handler.Handler[models.OBDReading]
	TPMS        *handler.Handler[[]models.TPMSReading]
	Corner      *handler.Handler[[]models.CornerTemps]
	RadarFront  *handler.Handler[[]models.RadarTrack]
	RadarRear   *handler.Handler[[]models.RadarTrack]
	IMU         *handler.Handler[models.IMUReading]
	CameraFront *handler.Handler[[]byte]
	CameraRear  *handler.Handler[[]byte]
}

// Engines bundles the stateful domain engines the renderer drives on
// the pull model described in §2: each is fed new samples once per
// frame rather than running its own goroutine.
type Engines struct {
	LapTiming *laptiming.Engine
	Pit       *pit.Engine // nil if no waypoint loaded for the current track
	Fuel      *fuel.Tracker
	CoPilot   *copilot.Pipeline // nil if CoPilot disabled
}

// Display draws the active page and presents the frame. It is the named
// external collaborator for pixel-level drawing (§1 Out of scope); the
// renderer only decides what data to hand it and when.
type Display interface {
	DrawPage(ctx context.Context, page Page, frame Frame) error
	Present(ctx context.Context) error
}

// Page identifies which screen is currently active.
type Page int

const (
	PageTelemetry Page = iota
	PageGMeter
	PageLap
	PageFuel
	PageCoPilot
	PageCamera
)

// Renderer owns the frame loop. It is single-threaded by design (§5):
// no field here is touched from any goroutine but the one running Run.
type Renderer struct {
	cfg      Config
	handlers Handlers
	engines  Engines
	display  Display
	log      log.Logger

	projector models.Projector

	activePage   Page
	activeCamera string // "front" | "rear"

	cache            sourceCache
	lastCameraFrame  []byte
	lastGPSSeq       uint64
	lastOBDSeq       uint64
	lastLapCount     int
	lastOutOfOrder   uint32
	haveLastGPS      bool
	lastGPSTS        time.Time
	consecutiveOver  int
	consecutiveFails int
	pitWarning       bool
	lastPaceNote     models.PaceNote
	havePaceNote     bool

	lastFramesDropped map[string]uint64
}

// sourceCache holds the last snapshot seen for each source, so a frame
// with nothing new still has something to draw (dimmed, per §4.7 step 2).
type sourceCache struct {
	gps        cached[models.GPSFix]
	obd        cached[models.OBDReading]
	tpms       cached[[]models.TPMSReading]
	corner     cached[[]models.CornerTemps]
	radarFront cached[[]models.RadarTrack]
	radarRear  cached[[]models.RadarTrack]
	imu        cached[models.IMUReading]
}

type cached[T any] struct {
	value T
	ts    time.Time
	have  bool
}

// Frame is the aggregated, per-tick data handed to Display. Staleness
// flags let the collaborator dim an element rather than show garbage.
type Frame struct {
	GPS         models.GPSFix
	GPSStale    bool
	OBD         models.OBDReading
	OBDStale    bool
	TPMS        []models.TPMSReading
	TPMSStale   bool
	Corner      []models.CornerTemps
	CornerStale bool
	RadarFront  []models.RadarTrack
	RadarRear   []models.RadarTrack
	IMU         models.IMUReading
	IMUStale    bool

	Lap       *models.Lap
	Delta     time.Duration
	HaveDelta bool

	Pit          models.PitSession
	HavePit      bool
	PitWarning   bool
	PitRemaining time.Duration
	PitGoFlag    bool

	FuelLevelPct float64
	FuelStatus   models.FuelStatus

	FuelLapsRemaining     float64
	HaveFuelLapsRemaining bool
	FuelRangeKM           float64
	HaveFuelRangeKM       bool

	PaceNote      models.PaceNote
	HavePaceNote  bool
	CoPilotStatus copilot.Status

	CameraFrame  []byte
	CameraFrozen bool
}

// New builds a Renderer. projector converts incoming GPS fixes into the
// ENU frame the lap-timing and pit engines operate in; it is normally
// built from the loaded track's Origin.
func New(cfg Config, handlers Handlers, engines Engines, display Display, projector models.Projector, logger log.Logger) *Renderer {
	if logger == nil {
		logger = log.Root()
	}
	return &Renderer{
		cfg:               cfg,
		handlers:          handlers,
		engines:           engines,
		display:           display,
		log:               logger.WithField("component", "renderer"),
		projector:         projector,
		activePage:        PageTelemetry,
		activeCamera:      "front",
		lastFramesDropped: make(map[string]uint64),
	}
}

// SetEngines swaps the domain engines the renderer drives, e.g. after
// loading a new track. Only safe to call from the same goroutine that
// calls Run (the renderer's single-threaded, main-thread ownership
// model per §5).
func (r *Renderer) SetEngines(e Engines) { r.engines = e }

// SetDisplay swaps the Display collaborator, e.g. installing a real
// screen renderer once one becomes available after a no-op boot default.
func (r *Renderer) SetDisplay(d Display) { r.display = d }

// SetProjector updates the ENU projection origin used to convert
// incoming GPS fixes, typically rebuilt around a newly loaded track's
// origin.
func (r *Renderer) SetProjector(p models.Projector) { r.projector = p }

// SetActivePage changes which page is drawn each frame.
func (r *Renderer) SetActivePage(p Page) { r.activePage = p }

// ActivePage reports the currently selected page.
func (r *Renderer) ActivePage() Page { return r.activePage }

// SetActiveCamera switches the camera feed. The next frame reuses the
// last frame from the previous feed until the new one publishes its own
// first frame, per §4.7's "freezes the last frame during handover".
func (r *Renderer) SetActiveCamera(side string) {
	if side == r.activeCamera {
		return
	}
	r.activeCamera = side
}

// Run drives the fixed-rate loop until ctx is cancelled or the crash
// retry budget is exhausted, in which case it returns a non-nil error
// (the caller maps this to exit code 2, per §6).
func (r *Renderer) Run(ctx context.Context) error {
	period := time.Second / time.Duration(r.cfg.TargetFPS)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := r.tick(ctx, now); err != nil {
				return err
			}
		}
	}
}

// tick runs one frame: fan-in, engine drive, draw, present, budget
// check, all guarded by the crash-recovery boundary.
func (r *Renderer) tick(ctx context.Context, now time.Time) error {
	start := time.Now()

	if err := r.safeFrame(ctx, now); err != nil {
		r.consecutiveFails++
		metrics.RenderDisplayErrorsTotal.Inc()
		r.log.WithError(err).Warn("display error, continuing")
		if r.consecutiveFails > r.cfg.CrashRetryLimit {
			r.log.WithField("consecutive_failures", r.consecutiveFails).Error("render loop exhausted crash-retry budget")
			return err
		}
		return nil
	}
	r.consecutiveFails = 0
	r.recordHandlerMetrics()

	elapsed := time.Since(start)
	metrics.RenderFrameSeconds.Observe(elapsed.Seconds())
	if elapsed > r.cfg.RenderBudget {
		r.consecutiveOver++
		metrics.RenderBudgetExceededTotal.Inc()
		if r.consecutiveOver >= consecutiveOverrunWarnAt {
			r.log.WithField("frame_ms", elapsed.Milliseconds()).Warn("render budget exceeded for 5 consecutive frames")
			r.consecutiveOver = 0
		}
	} else {
		r.consecutiveOver = 0
	}
	return nil
}

// safeFrame recovers a panic from the fan-in/draw/present path and
// converts it into a counted display error, per §10.2: the renderer's
// inner retry loop is the one place a recovered panic becomes a
// display-error count instead of crossing a goroutine boundary.
func (r *Renderer) safeFrame(ctx context.Context, now time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicToErr(p)
		}
	}()

	frame := r.pollAndDrive(now)

	if err := r.display.DrawPage(ctx, r.activePage, frame); err != nil {
		return err
	}
	return r.display.Present(ctx)
}

// pollAndDrive runs §4.7 steps 1–3: non-blocking poll, stale fallback,
// and feeding the pull-driven domain engines.
func (r *Renderer) pollAndDrive(now time.Time) Frame {
	var f Frame

	if r.handlers.GPS != nil {
		if snap, ok := r.handlers.GPS.Latest(); ok {
			r.cache.gps = cached[models.GPSFix]{value: snap.Payload, ts: snap.PublishTS, have: true}
			if snap.Seq != r.lastGPSSeq {
				r.lastGPSSeq = snap.Seq
				r.driveGPS(snap.Payload, snap.PublishTS)
			}
		}
	}
	f.GPS, f.GPSStale = fresh(r.cache.gps, now, r.cfg.StaleTimeout)

	if r.handlers.OBD != nil {
		if snap, ok := r.handlers.OBD.Latest(); ok {
			r.cache.obd = cached[models.OBDReading]{value: snap.Payload, ts: snap.PublishTS, have: true}
			if snap.Seq != r.lastOBDSeq {
				r.lastOBDSeq = snap.Seq
				r.driveFuel(snap.Payload)
			}
		}
	}
	f.OBD, f.OBDStale = fresh(r.cache.obd, now, r.cfg.StaleTimeout)

	if r.handlers.TPMS != nil {
		if snap, ok := r.handlers.TPMS.Latest(); ok {
			r.cache.tpms = cached[[]models.TPMSReading]{value: snap.Payload, ts: snap.PublishTS, have: true}
		}
	}
	f.TPMS, f.TPMSStale = fresh(r.cache.tpms, now, r.cfg.StaleTimeout)

	if r.handlers.Corner != nil {
		if snap, ok := r.handlers.Corner.Latest(); ok {
			r.cache.corner = cached[[]models.CornerTemps]{value: snap.Payload, ts: snap.PublishTS, have: true}
		}
	}
	f.Corner, f.CornerStale = fresh(r.cache.corner, now, r.cfg.StaleTimeout)

	if r.handlers.RadarFront != nil {
		if snap, ok := r.handlers.RadarFront.Latest(); ok {
			r.cache.radarFront = cached[[]models.RadarTrack]{value: snap.Payload, ts: snap.PublishTS, have: true}
		}
	}
	f.RadarFront, _ = fresh(r.cache.radarFront, now, r.cfg.StaleTimeout)

	if r.handlers.RadarRear != nil {
		if snap, ok := r.handlers.RadarRear.Latest(); ok {
			r.cache.radarRear = cached[[]models.RadarTrack]{value: snap.Payload, ts: snap.PublishTS, have: true}
		}
	}
	f.RadarRear, _ = fresh(r.cache.radarRear, now, r.cfg.StaleTimeout)

	if r.handlers.IMU != nil {
		if snap, ok := r.handlers.IMU.Latest(); ok {
			r.cache.imu = cached[models.IMUReading]{value: snap.Payload, ts: snap.PublishTS, have: true}
		}
	}
	f.IMU, f.IMUStale = fresh(r.cache.imu, now, r.cfg.StaleTimeout)

	r.fillEngineOutputs(&f, now)
	r.fillCamera(&f)

	return f
}

// fresh returns the cached value and whether it is older than
// staleTimeout (or never published, which also counts as stale/absent).
// A free function rather than a method: Go methods cannot carry their
// own type parameters, so the generic element type has to live here.
func fresh[T any](c cached[T], now time.Time, staleTimeout time.Duration) (T, bool) {
	if !c.have {
		var zero T
		return zero, true
	}
	return c.value, now.Sub(c.ts) > staleTimeout
}

// driveGPS feeds a new GPS fix into lap timing, the pit engine, and
// CoPilot — the pull-model engines named in §4.7 step 3.
func (r *Renderer) driveGPS(fix models.GPSFix, ts time.Time) {
	hasFix := fix.FixQuality > 0
	point := r.projector.ToENU(models.LatLon{Lat: fix.Lat, Lon: fix.Lon})

	if r.engines.LapTiming != nil {
		r.engines.LapTiming.Feed(laptiming.GPSSample{Point: point, TS: ts, SpeedKMH: fix.SpeedKMH, HasFix: hasFix})
		if completed := len(r.engines.LapTiming.CompletedLaps()); completed != r.lastLapCount {
			r.lastLapCount = completed
			if r.engines.Fuel != nil {
				r.engines.Fuel.CompleteLap()
			}
		}
	}

	if r.engines.Pit != nil && hasFix {
		before := r.engines.Pit.Current().Violations
		r.pitWarning = r.engines.Pit.Feed(pit.Sample{Point: point, TS: ts, SpeedKMH: fix.SpeedKMH})
		if after := r.engines.Pit.Current().Violations; after > before {
			metrics.PitViolationsTotal.Add(float64(after - before))
		}
	}

	if r.engines.Fuel != nil && hasFix {
		r.integrateDistance(fix, ts)
	}

	if r.engines.CoPilot != nil && hasFix {
		r.lastPaceNote, r.havePaceNote = r.engines.CoPilot.Tick(models.LatLon{Lat: fix.Lat, Lon: fix.Lon}, fix.HeadingDeg)
	}
}

// integrateDistance accumulates travelled distance from consecutive GPS
// fixes' speed and elapsed time, feeding the fuel tracker's range
// estimate (§4.5).
func (r *Renderer) integrateDistance(fix models.GPSFix, ts time.Time) {
	if !r.haveLastGPS {
		r.haveLastGPS = true
		r.lastGPSTS = ts
		return
	}
	dt := ts.Sub(r.lastGPSTS).Seconds()
	r.lastGPSTS = ts
	if dt <= 0 || dt > 5 {
		return // clock jump or first-sample gap; skip rather than integrate garbage
	}
	km := fix.SpeedKMH * dt / 3600
	if km > 0 {
		r.engines.Fuel.AddDistanceKM(km)
	}
}

// driveFuel feeds a new OBD reading's fuel-level percent into the fuel
// tracker.
func (r *Renderer) driveFuel(reading models.OBDReading) {
	if r.engines.Fuel != nil {
		r.engines.Fuel.AddSample(reading.FuelPct)
	}
}

// fillEngineOutputs reads current engine state (no mutation, except for
// the pit engine's GO-flag edge consumption) into the frame for the
// collaborator to draw.
func (r *Renderer) fillEngineOutputs(f *Frame, now time.Time) {
	if r.engines.LapTiming != nil {
		f.Lap = r.engines.LapTiming.CurrentLap()
		f.Delta, f.HaveDelta = r.engines.LapTiming.Delta()
		if n := r.engines.LapTiming.OutOfOrderCrossings(); n != r.lastOutOfOrder {
			metrics.LapTimingOutOfOrderCrossingsTotal.Add(float64(n - r.lastOutOfOrder))
			r.lastOutOfOrder = n
		}
	}
	if r.engines.Pit != nil {
		f.Pit = r.engines.Pit.Current()
		f.HavePit = true
		f.PitWarning = r.pitWarning
		f.PitRemaining, f.PitGoFlag = r.engines.Pit.Remaining(now)
	}
	if r.engines.Fuel != nil {
		f.FuelLevelPct = r.engines.Fuel.SmoothedLevelPct()
		f.FuelStatus = r.engines.Fuel.Status()
		metrics.FuelStatus.Set(float64(f.FuelStatus))
		f.FuelLapsRemaining, f.HaveFuelLapsRemaining = r.engines.Fuel.LapsRemaining()
		f.FuelRangeKM, f.HaveFuelRangeKM = r.engines.Fuel.RangeKM()
	}
	if r.engines.CoPilot != nil {
		f.PaceNote = r.lastPaceNote
		f.HavePaceNote = r.havePaceNote
		f.CoPilotStatus = r.engines.CoPilot.Status()
	}
}

// fillCamera implements the freeze-on-switch handover: the active
// camera's latest frame is used once it has published at least one
// frame since becoming active; until then the previous frame stays on
// screen rather than showing garbage pixels.
func (r *Renderer) fillCamera(f *Frame) {
	var h *handler.Handler[[]byte]
	switch r.activeCamera {
	case "rear":
		h = r.handlers.CameraRear
	default:
		h = r.handlers.CameraFront
	}
	if h == nil {
		f.CameraFrame = r.lastCameraFrame
		f.CameraFrozen = true
		return
	}
	snap, ok := h.Latest()
	if !ok {
		f.CameraFrame = r.lastCameraFrame
		f.CameraFrozen = true
		return
	}
	r.lastCameraFrame = snap.Payload
	f.CameraFrame = snap.Payload
	f.CameraFrozen = false
}

// recordHandlerMetrics republishes each handler's diagnostics into the
// Prometheus registry so the local /metrics scrape and the UDS "status"
// command see the same numbers.
func (r *Renderer) recordHandlerMetrics() {
	for _, s := range r.Sources() {
		if delta := s.FramesDropped - r.lastFramesDropped[s.Name]; delta > 0 {
			metrics.HandlerFramesDropped.WithLabelValues(s.Name).Add(float64(delta))
		}
		r.lastFramesDropped[s.Name] = s.FramesDropped
		metrics.HandlerConsecutiveFailures.WithLabelValues(s.Name).Set(float64(s.ConsecutiveFailures))
		metrics.HandlerUpdateRateHz.WithLabelValues(s.Name).Set(float64(s.UpdateRateHz))
	}
}

// Sources returns per-handler diagnostics for the control plane's
// "status" command (§12).
func (r *Renderer) Sources() []SourceStatus {
	var out []SourceStatus
	add := func(h diagnostics) {
		if h == nil {
			return
		}
		out = append(out, SourceStatus{
			Name:                h.Name(),
			State:               h.State().String(),
			UpdateRateHz:        h.UpdateRateHz(),
			FramesDropped:       h.FramesDropped(),
			ConsecutiveFailures: h.ConsecutiveFailures(),
		})
	}
	add(asDiag(r.handlers.GPS))
	add(asDiag(r.handlers.OBD))
	add(asDiag(r.handlers.TPMS))
	add(asDiag(r.handlers.Corner))
	add(asDiag(r.handlers.RadarFront))
	add(asDiag(r.handlers.RadarRear))
	add(asDiag(r.handlers.IMU))
	add(asDiag(r.handlers.CameraFront))
	add(asDiag(r.handlers.CameraRear))
	return out
}

// SourceStatus is one handler's diagnostics snapshot.
type SourceStatus struct {
	Name                string
	State               string
	UpdateRateHz        float32
	FramesDropped       uint64
	ConsecutiveFailures uint64
}

// diagnostics is the subset of Handler[T] the status surface needs,
// independent of T.
type diagnostics interface {
	Name() string
	State() handler.State
	FramesDropped() uint64
	ConsecutiveFailures() uint64
	UpdateRateHz() float32
}

// asDiag upcasts a possibly-nil *Handler[T] to diagnostics, returning a
// true nil interface (not a non-nil interface wrapping a nil pointer)
// when h is nil.
func asDiag[T any](h *handler.Handler[T]) diagnostics {
	if h == nil {
		return nil
	}
	return h
}

func panicToErr(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return &panicError{p}
}

type panicError struct{ v any }

func (e *panicError) Error() string { return "renderer panic: " + formatAny(e.v) }

func formatAny(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic value"
}
