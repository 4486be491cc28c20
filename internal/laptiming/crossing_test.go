package laptiming

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SamSkjord/opentpt/internal/models"
)

func eastWestLine() models.Segment {
	return models.Segment{A: models.ENU{E: -10, N: 0}, B: models.ENU{E: 10, N: 0}}
}

func TestCrossingDetector_DetectsSingleCrossing(t *testing.T) {
	d := newCrossingDetector(eastWestLine(), 15)

	assert.False(t, d.Update(models.ENU{E: 0, N: -20}))
	assert.True(t, d.Update(models.ENU{E: 0, N: 20}))
}

func TestCrossingDetector_IgnoresOppositeDirection(t *testing.T) {
	d := newCrossingDetector(eastWestLine(), 15)

	assert.False(t, d.Update(models.ENU{E: 0, N: 20}))
	assert.False(t, d.Update(models.ENU{E: 0, N: -20}))
}

func TestCrossingDetector_SuppressesJitterUntilClear(t *testing.T) {
	d := newCrossingDetector(eastWestLine(), 15)

	d.Update(models.ENU{E: 0, N: -20})
	assert.True(t, d.Update(models.ENU{E: 0, N: 1}))

	// Jitter back and forth across the line within the suppression
	// radius must not re-trigger.
	assert.False(t, d.Update(models.ENU{E: 0, N: -1}))
	assert.False(t, d.Update(models.ENU{E: 0, N: 2}))

	// Move clear of the line, then come back around: re-arms.
	assert.False(t, d.Update(models.ENU{E: 0, N: 20}))
	assert.False(t, d.Update(models.ENU{E: 0, N: -20}))
	assert.True(t, d.Update(models.ENU{E: 0, N: 1}))
}

func TestCrossingDetector_IgnoresPointsFarFromLine(t *testing.T) {
	d := newCrossingDetector(eastWestLine(), 15)

	assert.False(t, d.Update(models.ENU{E: 500, N: -20}))
	assert.False(t, d.Update(models.ENU{E: 500, N: 20}))
}

func TestCrossingDetector_Reset(t *testing.T) {
	d := newCrossingDetector(eastWestLine(), 15)
	d.Update(models.ENU{E: 0, N: -20})
	d.Reset()
	assert.False(t, d.havePrev)
}
