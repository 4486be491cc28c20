package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGPX = `<?xml version="1.0"?>
<gpx>
  <wpt lat="51.0" lon="-1.0"><name>sf_a</name></wpt>
  <wpt lat="51.0001" lon="-1.0"><name>sf_b</name></wpt>
  <trk><trkseg>
    <trkpt lat="51.0" lon="-1.0"/>
    <trkpt lat="51.001" lon="-1.001"/>
    <trkpt lat="51.002" lon="-1.003"/>
    <trkpt lat="51.003" lon="-1.0028"/>
  </trkseg></trk>
</gpx>`

func writeTempGPX(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "track.gpx")
	require.NoError(t, os.WriteFile(path, []byte(sampleGPX), 0o644))
	return path
}

func TestRunValidateTrack_Valid(t *testing.T) {
	path := writeTempGPX(t)

	var buf bytes.Buffer
	err := runValidateTrack(path, "threshold", &buf)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "VALID: track")
}

func TestRunValidateTrack_MissingFile(t *testing.T) {
	var buf bytes.Buffer
	err := runValidateTrack("/nonexistent/track.gpx", "threshold", &buf)

	assert.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestRunValidateTrack_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a track"), 0o644))

	var buf bytes.Buffer
	err := runValidateTrack(path, "threshold", &buf)

	assert.Error(t, err)
}
