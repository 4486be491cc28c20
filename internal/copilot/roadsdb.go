// Package copilot implements the CoPilot pace-note pipeline (§4.6):
// locating the driven road, projecting the vehicle onto it, detecting
// upcoming corners, and emitting merged pace-notes.
package copilot

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tidwall/buntdb"

	"github.com/SamSkjord/opentpt/internal/models"
)

// RoadsDB wraps an on-disk buntdb roads database with an R-tree spatial
// index over each road's bounding box, used to answer "what roads are
// near this point" queries in Locate.
type RoadsDB struct {
	db *buntdb.DB
}

type roadRecord struct {
	ID     string          `json:"id"`
	Points []models.LatLon `json:"points"`
}

const roadsIndexName = "roads_bbox"

// OpenRoadsDB opens (creating if absent) the buntdb file at path and
// ensures the spatial index exists.
func OpenRoadsDB(path string) (*RoadsDB, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roads db: %w", err)
	}

	err = db.CreateSpatialIndex(roadsIndexName, "road:*", func(item string) (min, max []float64) {
		var rec roadRecord
		if jsonErr := json.Unmarshal([]byte(item), &rec); jsonErr != nil {
			return []float64{0, 0}, []float64{0, 0}
		}
		return boundsOf(rec.Points)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating roads spatial index: %w", err)
	}

	return &RoadsDB{db: db}, nil
}

// Close releases the underlying database handle.
func (r *RoadsDB) Close() error { return r.db.Close() }

func boundsOf(points []models.LatLon) (min, max []float64) {
	if len(points) == 0 {
		return []float64{0, 0}, []float64{0, 0}
	}
	minLat, maxLat := points[0].Lat, points[0].Lat
	minLon, maxLon := points[0].Lon, points[0].Lon
	for _, p := range points[1:] {
		minLat = math.Min(minLat, p.Lat)
		maxLat = math.Max(maxLat, p.Lat)
		minLon = math.Min(minLon, p.Lon)
		maxLon = math.Max(maxLon, p.Lon)
	}
	return []float64{minLat, minLon}, []float64{maxLat, maxLon}
}

// SaveRoad inserts or replaces one road polyline.
func (r *RoadsDB) SaveRoad(id string, points []models.LatLon) error {
	data, err := json.Marshal(roadRecord{ID: id, Points: points})
	if err != nil {
		return fmt.Errorf("encoding road %s: %w", id, err)
	}
	return r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("road:"+id, string(data), nil)
		return err
	})
}

// NearbyRoad is one candidate road returned by a proximity query.
type NearbyRoad struct {
	ID     string
	Points []models.LatLon
}

// QueryNear returns every road whose bounding box intersects a square of
// side 2*radiusM centered on center.
func (r *RoadsDB) QueryNear(center models.LatLon, radiusM float64) ([]NearbyRoad, error) {
	degPerM := 1.0 / 111000.0 // coarse constant-latitude approximation, fine at road-search scale
	delta := radiusM * degPerM

	var out []NearbyRoad
	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.Intersects(roadsIndexName,
			fmt.Sprintf("[%f %f],[%f %f]", center.Lat-delta, center.Lon-delta, center.Lat+delta, center.Lon+delta),
			func(key, value string) bool {
				var rec roadRecord
				if err := json.Unmarshal([]byte(value), &rec); err != nil {
					return true
				}
				out = append(out, NearbyRoad{ID: rec.ID, Points: rec.Points})
				return true
			},
		)
	})
	if err != nil {
		return nil, fmt.Errorf("querying roads near %+v: %w", center, err)
	}
	return out, nil
}
