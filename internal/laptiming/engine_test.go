package laptiming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamSkjord/opentpt/internal/models"
)

func straightTrack() *models.Track {
	sf := models.Segment{A: models.ENU{E: -10, N: 0}, B: models.ENU{E: 10, N: 0}}
	sector := models.Segment{A: models.ENU{E: -10, N: 500}, B: models.ENU{E: 10, N: 500}}
	return &models.Track{
		Name:       "test-oval",
		Kind:       models.Circuit,
		StartLine:  sf,
		FinishLine: sf,
		Sectors:    []models.Segment{sector},
	}
}

func feedLap(t *testing.T, e *Engine, start time.Time, speedKMH float64) time.Time {
	t.Helper()
	ts := start
	for n := -20.0; n <= 1020; n += 20 {
		e.Feed(GPSSample{Point: models.ENU{E: 0, N: n}, TS: ts, SpeedKMH: speedKMH, HasFix: true})
		ts = ts.Add(time.Second)
	}
	return ts
}

func TestEngine_SealsLapOnSecondStartFinishCrossing(t *testing.T) {
	e := NewEngine(straightTrack(), 15, nil)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	feedLap(t, e, start, 120)
	assert.Empty(t, e.CompletedLaps(), "first crossing only opens the first lap")

	feedLap(t, e, start.Add(time.Hour), 120)
	require.Len(t, e.CompletedLaps(), 1)
	assert.NotNil(t, e.CompletedLaps()[0].TotalTime)
}

func TestEngine_RecordsSectorSplit(t *testing.T) {
	e := NewEngine(straightTrack(), 15, nil)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	feedLap(t, e, start, 120)
	feedLap(t, e, start.Add(time.Hour), 120)

	require.Len(t, e.CompletedLaps(), 1)
	assert.Len(t, e.CompletedLaps()[0].SectorTimes, 1)
}

func TestEngine_DeltaUnavailableWithoutReferenceLap(t *testing.T) {
	e := NewEngine(straightTrack(), 15, nil)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	feedLap(t, e, start, 120)

	_, ok := e.Delta()
	assert.False(t, ok)
}

func TestEngine_DeltaAvailableOnSecondLap(t *testing.T) {
	e := NewEngine(straightTrack(), 15, nil)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	feedLap(t, e, start, 120)
	feedLap(t, e, start.Add(time.Hour), 120)
	feedLap(t, e, start.Add(2*time.Hour), 120)

	_, ok := e.Delta()
	assert.True(t, ok)
}

func TestProjectOntoSegment_ClampsToEndpoints(t *testing.T) {
	a := models.ENU{E: 0, N: 0}
	b := models.ENU{E: 0, N: 10}

	tBefore, _ := projectOntoSegment(a, b, models.ENU{E: 0, N: -5})
	assert.Equal(t, 0.0, tBefore)

	tAfter, _ := projectOntoSegment(a, b, models.ENU{E: 0, N: 15})
	assert.Equal(t, 1.0, tAfter)
}
