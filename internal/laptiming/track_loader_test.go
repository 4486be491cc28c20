package laptiming

import (
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
  <wpt lat="51.0005" lon="-1.0005"><name>sector1_a</name></wpt>
  <wpt lat="51.0005" lon="-1.0006"><name>sector1_b</name></wpt>
  <trk><trkseg>
    <trkpt lat="51.0" lon="-1.0"/>
    <trkpt lat="51.001" lon="-1.001"/>
    <trkpt lat="51.002" lon="-1.003"/>
    <trkpt lat="51.003" lon="-1.0028"/>
  </trkseg></trk>
</gpx>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTrackFile_GPX(t *testing.T) {
	path := writeFile(t, "track.gpx", sampleGPX)

	track, err := LoadTrackFile(path, NewDetector(DetectorThreshold, DefaultProfile()))
	require.NoError(t, err)

	assert.Len(t, track.Centreline, 4)
	assert.Len(t, track.Sectors, 1)
	assert.NotEqual(t, track.StartLine.A, track.StartLine.B)
}

func TestLoadTrackFile_GPXMissingStartFinish(t *testing.T) {
	const noSF = `<?xml version="1.0"?>
<gpx>
  <trk><trkseg>
    <trkpt lat="51.0" lon="-1.0"/>
    <trkpt lat="51.001" lon="-1.001"/>
  </trkseg></trk>
</gpx>`
	path := writeFile(t, "nosf.gpx", noSF)

	_, err := LoadTrackFile(path, nil)
	assert.Error(t, err)
}

func TestLoadTrackFile_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "track.txt", "not a track")

	_, err := LoadTrackFile(path, nil)
	assert.Error(t, err)
}

func TestLoadTrackFile_TooFewTrackPoints(t *testing.T) {
	const oneTrkpt = `<?xml version="1.0"?>
<gpx>
  <wpt lat="51.0" lon="-1.0"><name>sf_a</name></wpt>
  <wpt lat="51.0001" lon="-1.0"><name>sf_b</name></wpt>
  <trk><trkseg>
    <trkpt lat="51.0" lon="-1.0"/>
  </trkseg></trk>
</gpx>`
	path := writeFile(t, "short.gpx", oneTrkpt)

	_, err := LoadTrackFile(path, nil)
	assert.Error(t, err)
}
