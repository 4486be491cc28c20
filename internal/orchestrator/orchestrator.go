// Package orchestrator wires every subsystem together into a single
// running instance: boot config and settings, storage resolution,
// sensor handlers, the domain engines, the renderer, the metrics
// server, and the UDS control plane (§9 "glue"). It is the concrete
// shape of the spec's unnamed top-level composition: menu/CLI actions
// become method calls here rather than events on a bus.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/SamSkjord/opentpt/internal/command"
	"github.com/SamSkjord/opentpt/internal/config"
	"github.com/SamSkjord/opentpt/internal/copilot"
	"github.com/SamSkjord/opentpt/internal/fuel"
	"github.com/SamSkjord/opentpt/internal/i2cbus"
	"github.com/SamSkjord/opentpt/internal/laptiming"
	"github.com/SamSkjord/opentpt/internal/log"
	"github.com/SamSkjord/opentpt/internal/metrics"
	"github.com/SamSkjord/opentpt/internal/models"
	"github.com/SamSkjord/opentpt/internal/pit"
	"github.com/SamSkjord/opentpt/internal/renderer"
	"github.com/SamSkjord/opentpt/internal/sensors/cornercan"
	"github.com/SamSkjord/opentpt/internal/sensors/gps"
	"github.com/SamSkjord/opentpt/internal/sensors/imu"
	"github.com/SamSkjord/opentpt/internal/sensors/obd"
	"github.com/SamSkjord/opentpt/internal/sensors/radar"
	"github.com/SamSkjord/opentpt/internal/sensors/tpms"
	"github.com/SamSkjord/opentpt/internal/storage"
	"github.com/SamSkjord/opentpt/pkg/handler"
)

// cornerCANFrames is the per-corner tread/brake CAN ID layout named in
// §6's external interfaces (0x10x tread, 0x11x brake).
var cornerCANFrames = []cornercan.CornerFrames{
	{Corner: models.FrontLeft, TreadID: 0x100, BrakeID: 0x110},
	{Corner: models.FrontRight, TreadID: 0x101, BrakeID: 0x111},
	{Corner: models.RearLeft, TreadID: 0x102, BrakeID: 0x112},
	{Corner: models.RearRight, TreadID: 0x103, BrakeID: 0x113},
}

// rearRadarSlots/frontRadarSlots are the per-track-slot CAN IDs the
// Toyota/Tesla radar emits on; bit-exact DBC decoding is out of scope
// (§1), this is only enough structure to exercise the handler.
var rearRadarSlots = []uint32{0x500, 0x501, 0x502, 0x503, 0x504, 0x505, 0x506, 0x507}
var frontRadarSlots = []uint32{0x520, 0x521, 0x522, 0x523, 0x524, 0x525, 0x526, 0x527}

const rearRadarKeepAliveID = 0x343

// Orchestrator owns every long-lived subsystem and exposes the glue
// operations the CLI/control-plane drive.
type Orchestrator struct {
	bootCfg *config.BootConfig
	log     log.Logger

	storageMgr     *storage.Manager
	settingsStore  *config.Store
	lapTimingStore *laptiming.Store
	pitStore       *pit.Store

	i2cBus *i2cbus.Bus

	handlers renderer.Handlers
	render   *renderer.Renderer

	metricsServer *metrics.Server
	udsServer     *command.UDSServer

	mu           sync.RWMutex
	track        *models.Track
	pitWP        *models.PitWaypoint
	copilotBG    *copilot.BackgroundLoader
	copilotCache *copilot.TileCache
	startTime    time.Time
}

// Boot loads configuration, resolves storage, and constructs every
// handler and engine, but does not start any goroutines; call Run for
// that. bootConfigPath points at the YAML file described in §10.3.
func Boot(ctx context.Context, bootConfigPath string) (*Orchestrator, error) {
	bootCfg, err := config.LoadBootConfig(bootConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading boot config: %w", err)
	}

	logger := log.New(log.Config{
		Level:       bootCfg.Log.Level,
		FileEnabled: bootCfg.Log.Dir != "",
		FileDir:     bootCfg.Log.Dir,
		MaxSizeMB:   bootCfg.Log.MaxSizeMB,
		MaxBackups:  bootCfg.Log.MaxBackups,
		MaxAgeDays:  bootCfg.Log.MaxAgeDays,
	})
	log.SetRoot(logger)

	o := &Orchestrator{
		bootCfg:   bootCfg,
		log:       logger.WithField("component", "orchestrator"),
		startTime: time.Now(),
	}

	storageMgr, err := storage.Resolve(bootCfg.Storage.USBMount, bootCfg.Storage.LocalHome, logger)
	if err != nil {
		return nil, fmt.Errorf("resolving storage: %w", err)
	}
	o.storageMgr = storageMgr
	layout := storageMgr.Layout()

	settingsStore, err := config.NewStore(layout.SettingsPath, storageMgr.OnUSB())
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	o.settingsStore = settingsStore

	lapTimingStore, err := laptiming.OpenStore(filepath.Join(layout.LapTimingDB))
	if err != nil {
		o.log.WithError(err).Warn("lap timing store unavailable, reference laps won't persist")
	} else {
		o.lapTimingStore = lapTimingStore
	}

	pitStore, err := pit.OpenStore(layout.PitDB)
	if err != nil {
		o.log.WithError(err).Warn("pit store unavailable, waypoints won't persist")
	} else {
		o.pitStore = pitStore
	}

	if err := o.buildHandlers(); err != nil {
		return nil, fmt.Errorf("building sensor handlers: %w", err)
	}

	if bootCfg.Metrics.Enabled {
		o.metricsServer = metrics.NewServer(bootCfg.Metrics.Listen, bootCfg.Metrics.Path)
	}

	rendererCfg := renderer.Config{
		TargetFPS:       bootCfg.Renderer.TargetFPS,
		StaleTimeout:    time.Duration(bootCfg.Renderer.StaleAfterMs) * time.Millisecond,
		RenderBudget:    12 * time.Millisecond,
		CrashRetryLimit: bootCfg.Renderer.CrashRetryLimit,
	}
	o.render = renderer.New(rendererCfg, o.handlers, renderer.Engines{}, noopDisplay{}, models.Projector{}, logger)

	o.udsServer = command.NewUDSServer(bootCfg.Control.Socket, command.NewCommandHandler(o, o))

	return o, nil
}

// buildHandlers constructs every sensor handler from boot config. A
// handler whose backing device is absent still gets constructed: its
// Reader.Init will return handler.ErrDeviceAbsent and the handler
// degrades gracefully (§4.1), which is how this system is meant to run
// on a bench without the full hardware harness attached. The IMU is the
// exception: when the I²C bus itself cannot be opened no IMU handler is
// built, and the renderer treats the nil handler as an absent source.
func (o *Orchestrator) buildHandlers() error {
	cfg := o.bootCfg
	lg := o.log
	hlg := handlerLogger{lg}

	o.handlers.GPS = handler.New[models.GPSFix]("gps",
		gps.New(cfg.Serial.GPSSerialPort, cfg.Serial.GPSBaud),
		handler.WithLogger(lg))

	pids := make([]obd.PID, 0, len(obd.StandardPIDs))
	pids = append(pids, obd.StandardPIDs...)
	o.handlers.OBD = handler.New[models.OBDReading]("obd",
		obd.New(cfg.Serial.OBDAdapterPort, cfg.Serial.OBDAdapterBaud, pids, 5, obd.Median),
		handler.WithLogger(lg))

	o.handlers.TPMS = handler.New[[]models.TPMSReading]("tpms",
		tpms.New(cfg.Serial.TPMSSerialPort, cfg.Serial.TPMSBaud, nil),
		handler.WithLogger(lg))

	o.handlers.Corner = handler.New[[]models.CornerTemps]("corner_can",
		cornercan.New(cfg.CANBus.CornerChannel, cornerCANFrames),
		handler.WithLogger(lg))

	radarCfg := o.settingsStore.Snapshot().Radar
	o.handlers.RadarRear = handler.New[[]models.RadarTrack]("radar_rear",
		radar.New(cfg.CANBus.RadarChannel, radar.Toyota, rearRadarSlots, radarCfg.Rear.EmitsKeepAlive, rearRadarKeepAliveID),
		handler.WithLogger(lg))

	o.handlers.RadarFront = handler.New[[]models.RadarTrack]("radar_front",
		radar.New(cfg.CANBus.FrontRadarChannel, radar.Toyota, frontRadarSlots, radarCfg.Front.EmitsKeepAlive, rearRadarKeepAliveID),
		handler.WithLogger(lg))

	bus, err := i2cbus.Open(cfg.I2C.BusPath)
	if err != nil {
		lg.WithError(err).Warn("i2c bus unavailable, IMU handler will stay degraded")
	} else {
		o.i2cBus = bus
		o.handlers.IMU = handler.New[models.IMUReading]("imu",
			imu.New(bus, cfg.I2C.IMUAddr, "imu"),
			handler.WithLogger(lg))
	}

	return nil
}

// LoadTrack loads a track file, rebuilds the lap-timing and pit engines
// around it, and swaps them into the running renderer. This is the
// concrete "load_track" menu action named in §4.3.
func (o *Orchestrator) LoadTrack(path string, detectorKind laptiming.DetectorKind) error {
	profile, err := laptiming.LoadProfile(detectorKind)
	if err != nil {
		return fmt.Errorf("loading detector profile: %w", err)
	}
	detector := laptiming.NewDetector(detectorKind, profile)

	track, err := laptiming.LoadTrackFile(path, detector)
	if err != nil {
		return fmt.Errorf("loading track %s: %w", path, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.track = track
	lapEngine := laptiming.NewEngine(track, 0, o.lapTimingStore)

	var pitEngine *pit.Engine
	if o.pitStore != nil {
		if wp, err := o.pitStore.LoadWaypoint(track.Name); err == nil && wp != nil {
			o.pitWP = wp
			entry := laptiming.NewCrossingDetector(wp.EntryLine, 15)
			exit := laptiming.NewCrossingDetector(wp.ExitLine, 15)
			const stationaryDetectSpeedKMH = 5.0
			const stationaryDetectDebounceS = 1.0
			const speedWarningMarginKMH = 5.0
			pitEngine = pit.NewEngine(*wp, entry, exit, stationaryDetectSpeedKMH, stationaryDetectDebounceS, speedWarningMarginKMH)
		}
	}

	projector := models.NewProjector(track.Origin)

	settings := o.settingsStore.Snapshot()
	var copilotPipeline *copilot.Pipeline
	if settings.CoPilot.Enabled {
		mode := copilot.JustDrive
		if settings.CoPilot.Mode == "route_follow" {
			mode = copilot.RouteFollow
		}
		var roadsDB *copilot.RoadsDB
		if o.copilotBG != nil {
			roadsDB, _ = o.copilotBG.Wait()
		}
		copilotPipeline = copilot.NewPipeline(mode, track, roadsDB, o.copilotCache, detector)
	}

	var fuelTracker *fuel.Tracker
	if err := config.ValidateFuel(settings); err == nil {
		method := fuel.Median
		if settings.Fuel.SmoothingMethod == "mean" {
			method = fuel.Mean
		}
		window := settings.Fuel.SmoothingWindow
		fuelTracker = fuel.NewTracker(window, method, settings.Fuel.RefuelThresholdPct,
			settings.Fuel.WarnAtPct, settings.Fuel.CriticalAtPct)
	} else {
		o.log.WithError(err).Warn("fuel tracker not started: refuel threshold unset")
	}

	o.render.SetProjector(projector)
	o.render.SetEngines(renderer.Engines{
		LapTiming: lapEngine,
		Pit:       pitEngine,
		Fuel:      fuelTracker,
		CoPilot:   copilotPipeline,
	})
	return nil
}

// EnableCoPilot starts the background roads-DB load for CoPilot's
// just-drive mode (§4.6), without blocking the renderer.
func (o *Orchestrator) EnableCoPilot(roadsDBPath string, cacheSize int) error {
	cache, err := copilot.NewTileCache(cacheSize)
	if err != nil {
		return fmt.Errorf("building tile cache: %w", err)
	}
	o.mu.Lock()
	o.copilotCache = cache
	o.copilotBG = copilot.NewBackgroundLoader(roadsDBPath)
	o.mu.Unlock()
	return nil
}

// Run starts every handler worker, the metrics server, the UDS control
// plane, and the render loop, blocking until ctx is cancelled or the
// renderer exits with an unrecovered error (§6 exit code 2).
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.handlers.GPS != nil {
		o.handlers.GPS.Start(ctx)
	}
	if o.handlers.OBD != nil {
		o.handlers.OBD.Start(ctx)
	}
	if o.handlers.TPMS != nil {
		o.handlers.TPMS.Start(ctx)
	}
	if o.handlers.Corner != nil {
		o.handlers.Corner.Start(ctx)
	}
	if o.handlers.RadarFront != nil {
		o.handlers.RadarFront.Start(ctx)
	}
	if o.handlers.RadarRear != nil {
		o.handlers.RadarRear.Start(ctx)
	}
	if o.handlers.IMU != nil {
		o.handlers.IMU.Start(ctx)
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
	}

	go func() {
		if err := o.udsServer.Start(ctx); err != nil {
			o.log.WithError(err).Error("uds control plane exited")
		}
	}()

	return o.render.Run(ctx)
}

// Shutdown stops every handler worker, then closes the I²C bus, the
// lap-timing and pit stores, the storage manager, and finally the
// metrics server.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	stopTimeout := 2 * time.Second

	if o.handlers.GPS != nil {
		o.handlers.GPS.Stop(stopTimeout)
	}
	if o.handlers.OBD != nil {
		o.handlers.OBD.Stop(stopTimeout)
	}
	if o.handlers.TPMS != nil {
		o.handlers.TPMS.Stop(stopTimeout)
	}
	if o.handlers.Corner != nil {
		o.handlers.Corner.Stop(stopTimeout)
	}
	if o.handlers.RadarFront != nil {
		o.handlers.RadarFront.Stop(stopTimeout)
	}
	if o.handlers.RadarRear != nil {
		o.handlers.RadarRear.Stop(stopTimeout)
	}
	if o.handlers.IMU != nil {
		o.handlers.IMU.Stop(stopTimeout)
	}

	if o.i2cBus != nil {
		_ = o.i2cBus.Close()
	}
	if o.lapTimingStore != nil {
		_ = o.lapTimingStore.Close()
	}
	if o.pitStore != nil {
		_ = o.pitStore.Close()
	}
	if o.storageMgr != nil {
		_ = o.storageMgr.Close()
	}
	if o.metricsServer != nil {
		_ = o.metricsServer.Stop(ctx)
	}
}

// Status implements command.StatusProvider.
func (o *Orchestrator) Status() command.StatusReport {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var handlers []command.HandlerStatus
	for _, s := range o.render.Sources() {
		handlers = append(handlers, command.HandlerStatus{
			Name:                s.Name,
			State:               s.State,
			UpdateRateHz:        s.UpdateRateHz,
			FramesDropped:       s.FramesDropped,
			ConsecutiveFailures: s.ConsecutiveFailures,
		})
	}

	return command.StatusReport{
		UptimeS:    time.Since(o.startTime).Seconds(),
		ActivePage: pageName(o.render.ActivePage()),
		Handlers:   handlers,
	}
}

// Reload implements command.Reloader: re-reads settings.json without
// restarting the render loop, per §12.
func (o *Orchestrator) Reload() error {
	store, err := config.NewStore(o.storageMgr.Layout().SettingsPath, o.storageMgr.OnUSB())
	if err != nil {
		return fmt.Errorf("reloading settings: %w", err)
	}
	o.mu.Lock()
	o.settingsStore = store
	o.mu.Unlock()
	return nil
}

func pageName(p renderer.Page) string {
	switch p {
	case renderer.PageTelemetry:
		return "telemetry"
	case renderer.PageGMeter:
		return "gmeter"
	case renderer.PageLap:
		return "lap"
	case renderer.PageFuel:
		return "fuel"
	case renderer.PageCoPilot:
		return "copilot"
	case renderer.PageCamera:
		return "camera"
	default:
		return "unknown"
	}
}

// noopDisplay is the default Display until the caller installs a real
// one (§1: pixel-level drawing is an external collaborator).
type noopDisplay struct{}

func (noopDisplay) DrawPage(ctx context.Context, page renderer.Page, frame renderer.Frame) error {
	return nil
}
func (noopDisplay) Present(ctx context.Context) error { return nil }

// SetDisplay installs the real Display collaborator, e.g. a windowed
// dev renderer or the production fullscreen one.
func (o *Orchestrator) SetDisplay(d renderer.Display) {
	o.render.SetDisplay(d)
}
