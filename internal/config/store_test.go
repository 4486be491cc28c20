package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_SeedsDefaultsWhenFileAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := NewStore(path, true)
	require.NoError(t, err)

	assert.Equal(t, DefaultSettings(), s.Snapshot())
}

func TestStore_PatchUpdatesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := NewStore(path, true)
	require.NoError(t, err)

	err = s.Patch(map[string]any{"display.brightness": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.Snapshot().Display.Brightness)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)

	reloaded, err := NewStore(path, true)
	require.NoError(t, err)
	assert.Equal(t, 0.5, reloaded.Snapshot().Display.Brightness)
}

func TestStore_PatchWithoutPersistenceReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := NewStore(path, false)
	require.NoError(t, err)

	err = s.Patch(map[string]any{"units.temp": "F"})
	assert.Error(t, err)
	// The in-memory value still applied even though persistence failed.
	assert.Equal(t, "F", s.Snapshot().Units.Temp)
}

func TestStore_PatchNestedBooleanField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := NewStore(path, true)
	require.NoError(t, err)

	err = s.Patch(map[string]any{"tyre_temps.flip.FL": true})
	require.NoError(t, err)
	assert.True(t, s.Snapshot().TyreTemps.Flip.FL)
}

func TestValidateFuel_RejectsUnsetThreshold(t *testing.T) {
	assert.Error(t, ValidateFuel(DefaultSettings()))
}

func TestValidateFuel_AcceptsSetThreshold(t *testing.T) {
	settings := DefaultSettings()
	settings.Fuel.RefuelThresholdPct = 20
	assert.NoError(t, ValidateFuel(settings))
}

func TestFlattenUnflatten_RoundTrips(t *testing.T) {
	flat := flattenSettings(DefaultSettings())
	nested := unflatten(flat)
	reflat := map[string]any{}
	flattenInto("", nested, reflat)

	assert.Equal(t, len(flat), len(reflat))
}
