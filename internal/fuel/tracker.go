// Package fuel implements the fuel tracker (§4.5): smoothing, per-lap
// consumption, refuel detection, and laps-remaining/range estimates.
package fuel

import (
	"sort"

	"github.com/SamSkjord/opentpt/internal/models"
)

// SmoothingMethod selects how the ring buffer is reduced to one value.
type SmoothingMethod int

const (
	Median SmoothingMethod = iota
	Mean
)

const minDistanceForEstimateKM = 5.0

// Tracker consumes raw OBD fuel-level percent samples, lap-completion
// events, and GPS-integrated distance to produce a smoothed level,
// per-lap consumption, and remaining estimates.
type Tracker struct {
	window []float64
	cap    int
	method SmoothingMethod

	refuelThresholdPct float64

	smoothedAtLapStart float64
	haveLapStart       bool

	lapConsumptions []float64
	lapsCompleted   int

	cumulativeDistanceKM float64
	lastSmoothed         float64
	haveSample           bool

	warningThresholdPct  float64
	criticalThresholdPct float64
}

// NewTracker builds a Tracker. windowSize defaults to 30 if <= 0.
func NewTracker(windowSize int, method SmoothingMethod, refuelThresholdPct, warningPct, criticalPct float64) *Tracker {
	if windowSize <= 0 {
		windowSize = 30
	}
	return &Tracker{
		cap:                  windowSize,
		method:               method,
		refuelThresholdPct:   refuelThresholdPct,
		warningThresholdPct:  warningPct,
		criticalThresholdPct: criticalPct,
	}
}

// AddSample pushes one raw fuel-level percent reading. If the raw
// reading is more than refuelThresholdPct above the previous smoothed
// value, the refuel path resets session counters and restarts the
// smoothing window from this reading, per §4.5.
func (t *Tracker) AddSample(levelPct float64) {
	// Compare the raw incoming sample against the smoothed baseline
	// *before* it joins the window: a median over the window would
	// otherwise dilute a genuine refuel spike into looking like noise.
	prevSmoothed := t.lastSmoothed
	hadSample := t.haveSample

	if hadSample && levelPct-prevSmoothed > t.refuelThresholdPct {
		t.onRefuel(levelPct)
		return
	}

	t.push(levelPct)
	t.lastSmoothed = t.smoothed()
	t.haveSample = true
}

func (t *Tracker) push(v float64) {
	t.window = append(t.window, v)
	if len(t.window) > t.cap {
		t.window = t.window[len(t.window)-t.cap:]
	}
}

func (t *Tracker) onRefuel(newLevel float64) {
	t.window = []float64{newLevel}
	t.lapConsumptions = nil
	t.lapsCompleted = 0
	t.cumulativeDistanceKM = 0
	t.haveLapStart = false
	t.lastSmoothed = newLevel
	t.haveSample = true
}

func (t *Tracker) smoothed() float64 {
	if len(t.window) == 0 {
		return 0
	}
	switch t.method {
	case Mean:
		var sum float64
		for _, v := range t.window {
			sum += v
		}
		return sum / float64(len(t.window))
	default:
		sorted := append([]float64(nil), t.window...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2
		}
		return sorted[mid]
	}
}

// AddDistanceKM accumulates GPS-integrated distance traveled.
func (t *Tracker) AddDistanceKM(km float64) {
	t.cumulativeDistanceKM += km
}

// CompleteLap records the fuel used this lap (clamped to >= 0) and
// resets the lap-start marker for the next lap.
func (t *Tracker) CompleteLap() {
	smoothed := t.smoothed()
	if t.haveLapStart {
		used := t.smoothedAtLapStart - smoothed
		if used < 0 {
			used = 0
		}
		t.lapConsumptions = append(t.lapConsumptions, used)
		t.lapsCompleted++
	}
	t.smoothedAtLapStart = smoothed
	t.haveLapStart = true
}

// SmoothedLevelPct returns the current smoothed fuel level.
func (t *Tracker) SmoothedLevelPct() float64 { return t.smoothed() }

// AvgConsumptionPctPerLap returns the rolling average consumption across
// completed laps this session, and whether any laps have been completed.
func (t *Tracker) AvgConsumptionPctPerLap() (avg float64, ok bool) {
	if len(t.lapConsumptions) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range t.lapConsumptions {
		sum += v
	}
	return sum / float64(len(t.lapConsumptions)), true
}

// LapsRemaining estimates laps remaining at the current consumption
// rate. Valid only once at least one lap is complete and cumulative
// distance is >= min_distance_for_estimate_km (5 km).
func (t *Tracker) LapsRemaining() (laps float64, ok bool) {
	avg, haveAvg := t.AvgConsumptionPctPerLap()
	if !haveAvg || avg <= 0 || t.cumulativeDistanceKM < minDistanceForEstimateKM {
		return 0, false
	}
	return t.smoothed() / avg, true
}

// RangeKM estimates remaining range when no track/lap context is
// available, extrapolating consumption-per-km from cumulative distance
// and fuel used so far.
func (t *Tracker) RangeKM() (km float64, ok bool) {
	if t.cumulativeDistanceKM < minDistanceForEstimateKM || !t.haveLapStart {
		return 0, false
	}
	usedSoFar := t.initialLevelOrFirstSample() - t.smoothed()
	if usedSoFar <= 0 {
		return 0, false
	}
	pctPerKM := usedSoFar / t.cumulativeDistanceKM
	if pctPerKM <= 0 {
		return 0, false
	}
	return t.smoothed() / pctPerKM, true
}

func (t *Tracker) initialLevelOrFirstSample() float64 {
	if len(t.window) == 0 {
		return 0
	}
	return t.window[0]
}

// Status returns the tri-state fuel warning level.
func (t *Tracker) Status() models.FuelStatus {
	level := t.smoothed()
	switch {
	case level <= t.criticalThresholdPct:
		return models.FuelCritical
	case level <= t.warningThresholdPct:
		return models.FuelWarning
	default:
		return models.FuelOK
	}
}
