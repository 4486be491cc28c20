package copilot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamSkjord/opentpt/internal/models"
)

func TestRoadsDB_SaveAndQueryNear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.db")
	db, err := OpenRoadsDB(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.SaveRoad("a1", []models.LatLon{
		{Lat: 51.5, Lon: -1.0},
		{Lat: 51.51, Lon: -1.0},
	}))
	require.NoError(t, db.SaveRoad("far-away", []models.LatLon{
		{Lat: 10.0, Lon: 10.0},
		{Lat: 10.01, Lon: 10.01},
	}))

	results, err := db.QueryNear(models.LatLon{Lat: 51.5, Lon: -1.0}, 200)
	require.NoError(t, err)

	found := false
	for _, r := range results {
		if r.ID == "a1" {
			found = true
		}
		assert.NotEqual(t, "far-away", r.ID)
	}
	assert.True(t, found)
}

func TestTileCache_GetPutRoundTrip(t *testing.T) {
	c, err := NewTileCache(8)
	require.NoError(t, err)

	p := models.LatLon{Lat: 51.5, Lon: -1.0}
	_, ok := c.Get(p)
	assert.False(t, ok)

	roads := []NearbyRoad{{ID: "a1"}}
	c.Put(p, roads)

	got, ok := c.Get(p)
	assert.True(t, ok)
	assert.Equal(t, roads, got)
}
