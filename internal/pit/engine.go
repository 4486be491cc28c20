// Package pit implements the pit-lane timer state machine (§4.4):
// entry/exit crossing detection, stationary-duration timing, the GO-flag
// countdown, and speed-violation monitoring.
package pit

import (
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/SamSkjord/opentpt/internal/models"
)

// Crossing is the minimal interface Engine needs from a line-crossing
// detector, satisfied by laptiming's crossingDetector shape.
type Crossing interface {
	Update(p models.ENU) bool
}

func newSessionID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil.String()
	}
	return id.String()
}

// Sample is one GPS+speed update fed to Engine.
type Sample struct {
	Point    models.ENU
	TS       time.Time
	SpeedKMH float64
}

// Engine drives one PitWaypoint's state machine for the current session.
type Engine struct {
	waypoint models.PitWaypoint
	entry    Crossing
	exit     Crossing

	warningMarginKMH float64

	session *models.PitSession
	history []models.PitSession

	belowSince *time.Time // when speed first dropped below stationary_speed_kmh
	aboveSince *time.Time // when speed first rose back above it, while Stationary

	stationarySpeedKMH  float64
	stationaryDurationS float64

	goFlagConsumed bool // whether the GO-flag edge has already been reported since entering Stationary
}

// NewEngine builds a pit-timer engine for one waypoint pair. entry/exit
// are typically laptiming crossing detectors built over the waypoint's
// EntryLine/ExitLine.
func NewEngine(wp models.PitWaypoint, entry, exit Crossing, stationarySpeedKMH, stationaryDurationS, warningMarginKMH float64) *Engine {
	return &Engine{
		waypoint:            wp,
		entry:               entry,
		exit:                exit,
		warningMarginKMH:    warningMarginKMH,
		stationarySpeedKMH:  stationarySpeedKMH,
		stationaryDurationS: stationaryDurationS,
		session:             &models.PitSession{ID: newSessionID(), State: models.OnTrack},
	}
}

// Feed advances the state machine with one sample and returns whether a
// speed-limit warning should be shown this tick.
func (e *Engine) Feed(s Sample) (warning bool) {
	switch e.session.State {
	case models.OnTrack:
		if e.entry.Update(s.Point) {
			e.enterPitLane(s.TS)
		}
		return false

	case models.InPitLane:
		return e.feedInPitLane(s)

	case models.Stationary:
		e.feedStationary(s)
		return false
	}
	return false
}

func (e *Engine) enterPitLane(ts time.Time) {
	e.session.State = models.InPitLane
	e.session.EntryTS = &ts
	e.belowSince = nil
	e.aboveSince = nil
	e.goFlagConsumed = false
}

func (e *Engine) feedInPitLane(s Sample) (warning bool) {
	e.session.Elapsed = s.TS.Sub(*e.session.EntryTS)
	if s.SpeedKMH > e.session.PeakSpeedKMH {
		e.session.PeakSpeedKMH = s.SpeedKMH
	}

	if s.SpeedKMH > e.waypoint.SpeedLimitKMH {
		e.session.Violations++
	} else if s.SpeedKMH > e.waypoint.SpeedLimitKMH-e.warningMarginKMH {
		warning = true
	}

	if e.waypoint.Mode == models.StationaryOnly {
		if s.SpeedKMH < e.stationarySpeedKMH {
			if e.belowSince == nil {
				t := s.TS
				e.belowSince = &t
			}
			if s.TS.Sub(*e.belowSince).Seconds() >= e.stationaryDurationS {
				e.enterStationary(s.TS)
			}
		} else {
			e.belowSince = nil
		}
		return warning
	}

	if e.exit.Update(s.Point) {
		e.exitPitLane(s.TS)
	}
	return warning
}

func (e *Engine) enterStationary(ts time.Time) {
	e.session.State = models.Stationary
	e.session.StationaryTS = &ts
	e.aboveSince = nil
	e.goFlagConsumed = false
}

// feedStationary accumulates Elapsed from StationaryTS for as long as the
// session remains in the Stationary state (§4.4: "stationary_only: elapsed
// runs only while in Stationary").
func (e *Engine) feedStationary(s Sample) {
	e.session.Elapsed = s.TS.Sub(*e.session.StationaryTS)
	if s.SpeedKMH > e.session.PeakSpeedKMH {
		e.session.PeakSpeedKMH = s.SpeedKMH
	}

	if s.SpeedKMH >= e.stationarySpeedKMH {
		if e.aboveSince == nil {
			t := s.TS
			e.aboveSince = &t
		}
		if s.TS.Sub(*e.aboveSince).Seconds() > 0.5 {
			e.session.State = models.InPitLane
			e.belowSince = nil
		}
	} else {
		e.aboveSince = nil
	}
}

func (e *Engine) exitPitLane(ts time.Time) {
	e.session.ExitTS = &ts
	e.history = append(e.history, *e.session)
	e.session = &models.PitSession{ID: newSessionID(), State: models.OnTrack}
}

// Remaining returns the GO-flag countdown as of now while in Stationary
// state (EntranceToExit mode reports 0, false since there is no
// stop-duration gate to count down). goFlag is true only on the call that
// first observes the countdown having reached zero since entering
// Stationary; subsequent calls report false until the session leaves and
// re-enters Stationary, so callers can fire the GO announcement exactly
// once per stop instead of on every poll.
func (e *Engine) Remaining(now time.Time) (remaining time.Duration, goFlag bool) {
	if e.session.State != models.Stationary || e.session.StationaryTS == nil {
		return 0, false
	}
	elapsed := now.Sub(*e.session.StationaryTS).Seconds()
	rem := e.waypoint.MinStopS - elapsed
	if rem < 0 {
		rem = 0
	}
	if rem == 0 {
		goFlag = !e.goFlagConsumed
		e.goFlagConsumed = true
	}
	return time.Duration(rem * float64(time.Second)), goFlag
}

// Current returns the in-progress session.
func (e *Engine) Current() models.PitSession { return *e.session }

// History returns completed pit-lane visits this session, oldest first.
func (e *Engine) History() []models.PitSession { return e.history }
