package laptiming

import "github.com/SamSkjord/opentpt/internal/models"

// defaultLineWidthM is the default re-crossing suppression distance from §4.3.
const defaultLineWidthM = 15.0

// crossingDetector watches one line (S/F or a sector line) across a
// stream of vehicle positions and reports a crossing exactly once per
// physical pass, suppressing GPS-jitter re-triggers until the vehicle
// has moved more than lineWidthM away from the line.
type crossingDetector struct {
	line      models.Segment
	bounds    models.BoundingBox
	lineWidth float64

	prev     models.ENU
	havePrev bool
	armed    bool // false while within lineWidth of the line since the last crossing
}

// NewCrossingDetector builds a line-crossing detector usable outside this
// package — the pit-timer engine shares this exact geometry for its entry
// and exit lines rather than re-implementing it (§4.4).
func NewCrossingDetector(line models.Segment, lineWidthM float64) *crossingDetector {
	return newCrossingDetector(line, lineWidthM)
}

func newCrossingDetector(line models.Segment, lineWidthM float64) *crossingDetector {
	if lineWidthM <= 0 {
		lineWidthM = defaultLineWidthM
	}
	return &crossingDetector{
		line:      line,
		bounds:    models.SegmentBounds(line, lineWidthM),
		lineWidth: lineWidthM,
		armed:     true,
	}
}

// Update feeds one new vehicle position and reports whether a crossing
// just occurred.
func (c *crossingDetector) Update(p models.ENU) bool {
	defer func() { c.prev, c.havePrev = p, true }()

	if !c.armed {
		if c.line.DistanceTo(p) > c.lineWidth {
			c.armed = true
		}
	}

	if !c.havePrev || !c.armed {
		return false
	}
	signPrev := models.Cross(c.line.A, c.line.B, c.prev)
	signCur := models.Cross(c.line.A, c.line.B, p)
	crossed := signPrev < 0 && signCur >= 0
	if crossed {
		// The step counts only if the point where it meets the line lies
		// inside the line's padded bounding box; a long step whose two
		// endpoints both sit outside the box still registers.
		f := signPrev / (signPrev - signCur)
		hit := models.ENU{E: c.prev.E + f*(p.E-c.prev.E), N: c.prev.N + f*(p.N-c.prev.N)}
		crossed = c.bounds.Contains(hit)
	}

	if crossed {
		c.armed = false
	}
	return crossed
}

// Reset clears the "previous position" memory without disturbing the
// armed/disarmed suppression state — used when switching laps so a
// stray first sample of the new lap doesn't read as a phantom crossing
// against a position from a different part of the lap.
func (c *crossingDetector) Reset() {
	c.havePrev = false
}
