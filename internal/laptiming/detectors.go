package laptiming

import (
	"math"

	"github.com/SamSkjord/opentpt/internal/models"
)

// DetectorKind selects which corner-detection algorithm load_track uses,
// per §4.3's "choice of threshold, ASC, curvefinder, hybrid (selectable)".
type DetectorKind string

const (
	DetectorThreshold   DetectorKind = "threshold"
	DetectorASC         DetectorKind = "asc"
	DetectorCurvefinder DetectorKind = "curvefinder"
	DetectorHybrid      DetectorKind = "hybrid"
)

// Detector turns an ordered polyline into a list of corners.
type Detector interface {
	Detect(polyline []models.ENU) []models.Corner
}

// Profile holds the tunable constants a Detector uses, normally loaded
// from internal/laptiming/detectors/*.yaml.
type Profile struct {
	MinBearingChangeDeg float64 `yaml:"min_bearing_change_deg"`
	MinRadiusM          float64 `yaml:"min_radius_m"`
	MinAngleDeg         float64 `yaml:"min_angle_deg"`
	SampleStrideM       float64 `yaml:"sample_stride_m"`
}

// DefaultProfile returns reasonable constants when no YAML profile is
// supplied.
func DefaultProfile() Profile {
	return Profile{
		MinBearingChangeDeg: 8,
		MinRadiusM:          120,
		MinAngleDeg:         12,
		SampleStrideM:       5,
	}
}

// NewDetector builds the Detector named by kind.
func NewDetector(kind DetectorKind, profile Profile) Detector {
	switch kind {
	case DetectorASC:
		return ascDetector{profile}
	case DetectorCurvefinder:
		return curvefinderDetector{profile}
	case DetectorHybrid:
		return hybridDetector{profile}
	default:
		return thresholdDetector{profile}
	}
}

// bearingAt returns the heading in degrees of the segment from points[i]
// to points[i+1], treating the local ENU frame as already flat (no
// further geodesy needed at this scale).
func bearingAt(points []models.ENU, i int) float64 {
	a, b := points[i], points[i+1]
	return math.Mod(math.Atan2(b.E-a.E, b.N-a.N)*180/math.Pi+360, 360)
}

func angleDelta(a, b float64) float64 {
	d := math.Mod(b-a+540, 360) - 180
	return d
}

// thresholdDetector flags a corner wherever the cumulative bearing
// change across a short window exceeds MinBearingChangeDeg, picking the
// point of maximum curvature in each contiguous run as the apex.
type thresholdDetector struct{ p Profile }

func (d thresholdDetector) Detect(points []models.ENU) []models.Corner {
	if len(points) < 3 {
		return nil
	}
	var corners []models.Corner
	inRun := false
	runStart := 0
	maxDelta := 0.0
	apexIdx := 0

	for i := 0; i < len(points)-2; i++ {
		b1 := bearingAt(points, i)
		b2 := bearingAt(points, i+1)
		delta := angleDelta(b1, b2)

		if math.Abs(delta) >= d.p.MinBearingChangeDeg {
			if !inRun {
				inRun = true
				runStart = i
				maxDelta = 0
			}
			if math.Abs(delta) > math.Abs(maxDelta) {
				maxDelta = delta
				apexIdx = i + 1
			}
		} else if inRun {
			corners = append(corners, buildCorner(runStart, apexIdx, i+1, maxDelta))
			inRun = false
		}
	}
	if inRun {
		corners = append(corners, buildCorner(runStart, apexIdx, len(points)-1, maxDelta))
	}
	return corners
}

func buildCorner(entry, apex, exit int, deltaDeg float64) models.Corner {
	dir := models.Right
	if deltaDeg < 0 {
		dir = models.Left
	}
	return models.Corner{
		EntryIdx:  entry,
		ApexIdx:   apex,
		ExitIdx:   exit,
		Direction: dir,
		Severity:  severityFromAngle(math.Abs(deltaDeg)),
	}
}

func severityFromAngle(deg float64) int {
	switch {
	case deg >= 90:
		return 6
	case deg >= 70:
		return 5
	case deg >= 50:
		return 4
	case deg >= 30:
		return 3
	case deg >= 15:
		return 2
	default:
		return 1
	}
}

// ascDetector is thresholdDetector's run-finding logic but grades
// severity from the corner's minimum turning radius rather than raw
// bearing delta, giving an ASC scale that matches real corner speed
// potential rather than just how sharply the polyline bends.
type ascDetector struct{ p Profile }

func (d ascDetector) Detect(points []models.ENU) []models.Corner {
	base := thresholdDetector(d).Detect(points)
	for i := range base {
		r := estimateRadius(points, base[i].EntryIdx, base[i].ApexIdx, base[i].ExitIdx)
		base[i].MinRadiusM = r
		base[i].Severity = severityFromRadius(r)
	}
	return base
}

func severityFromRadius(r float64) int {
	switch {
	case r <= 0 || r >= 300:
		return 1
	case r >= 180:
		return 2
	case r >= 100:
		return 3
	case r >= 50:
		return 4
	case r >= 20:
		return 5
	default:
		return 6
	}
}

// estimateRadius fits a circumradius through the entry, apex, and exit
// points as a coarse curvature estimate.
func estimateRadius(points []models.ENU, entry, apex, exit int) float64 {
	if entry < 0 || apex >= len(points) || exit >= len(points) || entry == apex || apex == exit {
		return 0
	}
	a, b, c := points[entry], points[apex], points[exit]
	ab := models.Dist(a, b)
	bc := models.Dist(b, c)
	ca := models.Dist(c, a)
	area := math.Abs((b.E-a.E)*(c.N-a.N)-(c.E-a.E)*(b.N-a.N)) / 2
	if area == 0 {
		return math.Inf(1)
	}
	return (ab * bc * ca) / (4 * area)
}

// curvefinderDetector scans for local minima of estimated turning radius
// directly, independent of a bearing-delta threshold, so it can find
// corners a blunt threshold would merge or miss.
type curvefinderDetector struct{ p Profile }

func (d curvefinderDetector) Detect(points []models.ENU) []models.Corner {
	if len(points) < 5 {
		return nil
	}
	var corners []models.Corner
	window := 2
	for i := window; i < len(points)-window; i++ {
		r := estimateRadius(points, i-window, i, i+window)
		if r <= 0 || r > d.p.MinRadiusM {
			continue
		}
		if len(corners) > 0 && i-corners[len(corners)-1].ApexIdx < window*2 {
			// Same corner as the previous apex candidate; keep the
			// tighter radius.
			if r < corners[len(corners)-1].MinRadiusM {
				corners[len(corners)-1].MinRadiusM = r
				corners[len(corners)-1].Severity = severityFromRadius(r)
				corners[len(corners)-1].ApexIdx = i
			}
			continue
		}
		b1 := bearingAt(points, max0(i-window-1))
		b2 := bearingAt(points, min(i+window, len(points)-2))
		dir := models.Right
		if angleDelta(b1, b2) < 0 {
			dir = models.Left
		}
		corners = append(corners, models.Corner{
			EntryIdx:   i - window,
			ApexIdx:    i,
			ExitIdx:    i + window,
			Direction:  dir,
			MinRadiusM: r,
			Severity:   severityFromRadius(r),
		})
	}
	return corners
}

func max0(i int) int {
	if i < 0 {
		return 0
	}
	return i
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// hybridDetector takes curvefinderDetector's apex (precise, radius-based)
// and thresholdDetector's entry/exit bounds (wider, bearing-based),
// matching pairs by nearest apex index.
type hybridDetector struct{ p Profile }

func (d hybridDetector) Detect(points []models.ENU) []models.Corner {
	byRadius := curvefinderDetector(d).Detect(points)
	byBearing := thresholdDetector(d).Detect(points)
	if len(byBearing) == 0 {
		return byRadius
	}

	out := make([]models.Corner, 0, len(byRadius))
	for _, rc := range byRadius {
		best := byBearing[0]
		bestDist := math.MaxInt64
		for _, bc := range byBearing {
			dist := abs(bc.ApexIdx - rc.ApexIdx)
			if dist < bestDist {
				bestDist = dist
				best = bc
			}
		}
		out = append(out, models.Corner{
			EntryIdx:   best.EntryIdx,
			ApexIdx:    rc.ApexIdx,
			ExitIdx:    best.ExitIdx,
			Direction:  rc.Direction,
			MinRadiusM: rc.MinRadiusM,
			Severity:   rc.Severity,
		})
	}
	return out
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
