package models

import "math"

const earthRadiusM = 6371000.0

// Projector converts WGS-84 points to the local ENU frame centered on an
// origin, using an equirectangular approximation — accurate enough over
// the few-kilometer spans a track or CoPilot lookahead window covers.
type Projector struct {
	origin    LatLon
	cosLatRad float64
}

// NewProjector builds a Projector centered on origin.
func NewProjector(origin LatLon) Projector {
	return Projector{origin: origin, cosLatRad: math.Cos(origin.Lat * math.Pi / 180)}
}

// ToENU projects p into the local frame.
func (pr Projector) ToENU(p LatLon) ENU {
	dLat := (p.Lat - pr.origin.Lat) * math.Pi / 180
	dLon := (p.Lon - pr.origin.Lon) * math.Pi / 180
	return ENU{
		E: dLon * pr.cosLatRad * earthRadiusM,
		N: dLat * earthRadiusM,
	}
}

// ToLatLon is the inverse of ToENU.
func (pr Projector) ToLatLon(p ENU) LatLon {
	dLat := p.N / earthRadiusM
	dLon := p.E / (pr.cosLatRad * earthRadiusM)
	return LatLon{
		Lat: pr.origin.Lat + dLat*180/math.Pi,
		Lon: pr.origin.Lon + dLon*180/math.Pi,
	}
}

// HaversineMeters returns the great-circle distance between two WGS-84
// points, used where spans are large enough (OSM road search radius)
// that the flat-frame approximation would drift.
func HaversineMeters(a, b LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// BearingDegrees returns the initial compass bearing from a to b, in
// [0, 360).
func BearingDegrees(a, b LatLon) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	theta := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(theta+360, 360)
}
