package pit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamSkjord/opentpt/internal/models"
)

// fakeCrossing fires true on the Nth call.
type fakeCrossing struct {
	fireOn int
	calls  int
}

func (f *fakeCrossing) Update(models.ENU) bool {
	f.calls++
	return f.calls == f.fireOn
}

func wpEntranceToExit() models.PitWaypoint {
	return models.PitWaypoint{
		TrackName:     "test",
		Mode:          models.EntranceToExit,
		SpeedLimitKMH: 60,
		MinStopS:      2,
	}
}

func TestEngine_EntranceToExit_FullCycle(t *testing.T) {
	entry := &fakeCrossing{fireOn: 1}
	exit := &fakeCrossing{fireOn: 1}
	e := NewEngine(wpEntranceToExit(), entry, exit, 5, 2, 5)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.Feed(Sample{TS: start, SpeedKMH: 40})
	assert.Equal(t, models.InPitLane, e.Current().State)

	e.Feed(Sample{TS: start.Add(5 * time.Second), SpeedKMH: 40})
	assert.Equal(t, models.OnTrack, e.Current().State, "exit line crossed closes the session")
	require.Len(t, e.History(), 1)
	assert.Equal(t, 5*time.Second, e.History()[0].Elapsed)
}

func TestEngine_SpeedViolationIncrementsCounter(t *testing.T) {
	entry := &fakeCrossing{fireOn: 1}
	exit := &fakeCrossing{} // never fires
	e := NewEngine(wpEntranceToExit(), entry, exit, 5, 2, 5)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.Feed(Sample{TS: start, SpeedKMH: 40})
	e.Feed(Sample{TS: start.Add(time.Second), SpeedKMH: 70})

	assert.EqualValues(t, 1, e.Current().Violations)
}

func TestEngine_WarningBelowLimitButWithinMargin(t *testing.T) {
	entry := &fakeCrossing{fireOn: 1}
	exit := &fakeCrossing{}
	e := NewEngine(wpEntranceToExit(), entry, exit, 5, 2, 5)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.Feed(Sample{TS: start, SpeedKMH: 40})
	warning := e.Feed(Sample{TS: start.Add(time.Second), SpeedKMH: 58})

	assert.True(t, warning)
	assert.EqualValues(t, 0, e.Current().Violations)
}

func TestEngine_StationaryOnly_GoFlagAfterMinStop(t *testing.T) {
	entry := &fakeCrossing{fireOn: 1}
	exit := &fakeCrossing{}
	wp := wpEntranceToExit()
	wp.Mode = models.StationaryOnly
	e := NewEngine(wp, entry, exit, 5, 1, 5)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.Feed(Sample{TS: start, SpeedKMH: 40})
	assert.Equal(t, models.InPitLane, e.Current().State)

	// Speed drops below stationary threshold and stays there for
	// stationary_duration_s (1s here).
	e.Feed(Sample{TS: start.Add(1 * time.Second), SpeedKMH: 2})
	e.Feed(Sample{TS: start.Add(2 * time.Second), SpeedKMH: 2})
	require.Equal(t, models.Stationary, e.Current().State)

	remaining, goFlag := e.Remaining(start.Add(2 * time.Second))
	assert.Equal(t, 2*time.Second, remaining)
	assert.False(t, goFlag)

	remaining, goFlag = e.Remaining(start.Add(4 * time.Second))
	assert.Equal(t, time.Duration(0), remaining)
	assert.True(t, goFlag)
}

// TestEngine_StationaryOnly_ElapsedAccumulatesAndGoFlagFiresOnce mirrors
// the spec's end-to-end scenario 3: stationary for 25s with a 20s
// mandatory stop. Elapsed must keep accumulating throughout the
// Stationary stay (reaching 25s exactly when the vehicle leaves) and the
// GO flag must fire exactly once, on the poll that first observes the
// countdown hitting zero.
func TestEngine_StationaryOnly_ElapsedAccumulatesAndGoFlagFiresOnce(t *testing.T) {
	entry := &fakeCrossing{fireOn: 1}
	exit := &fakeCrossing{}
	wp := wpEntranceToExit()
	wp.Mode = models.StationaryOnly
	wp.MinStopS = 20
	e := NewEngine(wp, entry, exit, 5, 1, 5)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.Feed(Sample{TS: start, SpeedKMH: 40})
	e.Feed(Sample{TS: start.Add(1 * time.Second), SpeedKMH: 2})
	e.Feed(Sample{TS: start.Add(2 * time.Second), SpeedKMH: 2})
	require.Equal(t, models.Stationary, e.Current().State)
	stationaryStart := start.Add(2 * time.Second)

	// Elapsed tracks the Stationary stay, not the overall pit-lane visit.
	e.Feed(Sample{TS: stationaryStart.Add(10 * time.Second), SpeedKMH: 0})
	assert.Equal(t, 10*time.Second, e.Current().Elapsed)

	// Countdown reaches zero at stationaryStart+20s; GO fires exactly once.
	remaining, goFlag := e.Remaining(stationaryStart.Add(20 * time.Second))
	assert.Equal(t, time.Duration(0), remaining)
	assert.True(t, goFlag, "GO flag must fire the first time remaining reaches zero")

	remaining, goFlag = e.Remaining(stationaryStart.Add(23 * time.Second))
	assert.Equal(t, time.Duration(0), remaining)
	assert.False(t, goFlag, "GO flag must not re-fire on subsequent polls")

	// Vehicle pulls away after a 25s stationary stay.
	e.Feed(Sample{TS: stationaryStart.Add(24400 * time.Millisecond), SpeedKMH: 10})
	require.Equal(t, models.Stationary, e.Current().State, "debounce window not yet elapsed")
	e.Feed(Sample{TS: stationaryStart.Add(25 * time.Second), SpeedKMH: 10})

	assert.Equal(t, models.InPitLane, e.Current().State)
	assert.Equal(t, 25*time.Second, e.Current().Elapsed, "elapsed when leaving Stationary must equal the 25s stay")
}

func TestEngine_StationaryExitsBackToInPitLaneOnMovement(t *testing.T) {
	entry := &fakeCrossing{fireOn: 1}
	exit := &fakeCrossing{}
	wp := wpEntranceToExit()
	wp.Mode = models.StationaryOnly
	e := NewEngine(wp, entry, exit, 5, 1, 5)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.Feed(Sample{TS: start, SpeedKMH: 40})
	e.Feed(Sample{TS: start.Add(1 * time.Second), SpeedKMH: 2})
	e.Feed(Sample{TS: start.Add(2 * time.Second), SpeedKMH: 2})
	require.Equal(t, models.Stationary, e.Current().State)

	e.Feed(Sample{TS: start.Add(3 * time.Second), SpeedKMH: 10})
	e.Feed(Sample{TS: start.Add(3600 * time.Millisecond), SpeedKMH: 10})
	assert.Equal(t, models.InPitLane, e.Current().State)
}
