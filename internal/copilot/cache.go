package copilot

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/SamSkjord/opentpt/internal/models"
)

// tileKey buckets a roads-DB query by a coarse grid cell so repeated
// Locate calls in the same neighborhood hit the cache instead of
// re-querying buntdb every update_interval_s tick.
type tileKey struct {
	latCell int64
	lonCell int64
}

const tileSizeDeg = 0.01 // roughly 1.1km at the equator

func tileFor(p models.LatLon) tileKey {
	return tileKey{
		latCell: int64(p.Lat / tileSizeDeg),
		lonCell: int64(p.Lon / tileSizeDeg),
	}
}

// TileCache caches QueryNear results per grid cell.
type TileCache struct {
	lru *lru.Cache[tileKey, []NearbyRoad]
}

// NewTileCache builds a cache holding up to size tiles.
func NewTileCache(size int) (*TileCache, error) {
	c, err := lru.New[tileKey, []NearbyRoad](size)
	if err != nil {
		return nil, err
	}
	return &TileCache{lru: c}, nil
}

// Get returns the cached roads for the tile containing p, if present.
func (c *TileCache) Get(p models.LatLon) ([]NearbyRoad, bool) {
	return c.lru.Get(tileFor(p))
}

// Put caches roads for the tile containing p.
func (c *TileCache) Put(p models.LatLon, roads []NearbyRoad) {
	c.lru.Add(tileFor(p), roads)
}

// Evict drops the cached tile containing p, forcing the next Get for any
// point in that tile to miss and fall through to a fresh roads-DB query.
func (c *TileCache) Evict(p models.LatLon) {
	c.lru.Remove(tileFor(p))
}
