package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sampleRMC = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	sampleGGA = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
)

func TestVerifyChecksum_AcceptsValidSentence(t *testing.T) {
	assert.NoError(t, VerifyChecksum(sampleRMC))
	assert.NoError(t, VerifyChecksum(sampleGGA))
}

func TestVerifyChecksum_RejectsCorruptedSentence(t *testing.T) {
	corrupted := "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*00"
	assert.ErrorIs(t, VerifyChecksum(corrupted), ErrChecksum)
}

func TestVerifyChecksum_RejectsMissingDollar(t *testing.T) {
	assert.Error(t, VerifyChecksum("GPRMC,123519*6A"))
}

func TestParseRMC_DecodesFixAndTimestamp(t *testing.T) {
	rmc, err := ParseRMC(sampleRMC)
	require.NoError(t, err)

	assert.True(t, rmc.Valid)
	assert.InDelta(t, 48.1173, rmc.Lat, 1e-3)
	assert.InDelta(t, 11.5167, rmc.Lon, 1e-3)
	assert.InDelta(t, 41.4848, rmc.SpeedKMH, 1e-3)
	assert.InDelta(t, 84.4, rmc.HeadingDeg, 1e-6)
	assert.Equal(t, time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC), rmc.TS)
}

func TestParseRMC_VoidFixReportsInvalid(t *testing.T) {
	body := "GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"
	line := "$" + body + "*" + computeChecksum(body)
	rmc, err := ParseRMC(line)
	require.NoError(t, err)
	assert.False(t, rmc.Valid)
}

func TestParseRMC_RejectsWrongSentenceType(t *testing.T) {
	_, err := ParseRMC(sampleGGA)
	assert.ErrorIs(t, err, ErrNotRMC)
}

func TestParseGGA_DecodesFixQualityAndSatellites(t *testing.T) {
	gga, err := ParseGGA(sampleGGA)
	require.NoError(t, err)
	assert.Equal(t, 1, gga.FixQuality)
	assert.Equal(t, 8, gga.Satellites)
}

func TestYearInRange(t *testing.T) {
	assert.False(t, YearInRange(time.Date(1994, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, YearInRange(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, YearInRange(time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func computeChecksum(body string) string {
	var c byte
	for i := 0; i < len(body); i++ {
		c ^= body[i]
	}
	return toHex2(c)
}

func toHex2(b byte) string {
	const hexDigits = "0123456789ABCDEF"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0F]})
}
