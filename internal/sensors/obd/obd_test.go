package obd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexResponse_StripsModeAndPIDEcho(t *testing.T) {
	data, err := parseHexResponse("41 0D 32\r", 0x01, 0x0D)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x32}, data)
}

func TestParseHexResponse_RejectsShortLine(t *testing.T) {
	_, err := parseHexResponse("41\r", 0x01, 0x0D)
	assert.Error(t, err)
}

func TestParseHexResponse_RejectsMalformedByte(t *testing.T) {
	_, err := parseHexResponse("41 ZZ 32\r", 0x01, 0x0D)
	assert.Error(t, err)
}

func TestStandardPIDs_SpeedDecode(t *testing.T) {
	pid := findPID(t, "speed")
	assert.Equal(t, 50.0, pid.Decode([]byte{0x32}))
}

func TestStandardPIDs_RPMDecode(t *testing.T) {
	pid := findPID(t, "rpm")
	// (0x0F*256 + 0xA0) / 4 = (3840+160)/4 = 1000
	assert.Equal(t, 1000.0, pid.Decode([]byte{0x0F, 0xA0}))
}

func TestStandardPIDs_CoolantDecode(t *testing.T) {
	pid := findPID(t, "coolant_c")
	assert.Equal(t, 50.0, pid.Decode([]byte{0x5A})) // 90 - 40
}

func TestMedian_OddAndEvenLengths(t *testing.T) {
	assert.Equal(t, 3.0, median([]float64{5, 1, 3, 2, 4}))
	assert.Equal(t, 2.5, median([]float64{1, 2, 3, 4}))
}

func TestMean(t *testing.T) {
	assert.Equal(t, 2.5, mean([]float64{1, 2, 3, 4}))
	assert.Equal(t, 0.0, mean(nil))
}

func TestAllDisabled(t *testing.T) {
	states := []pidState{{disabled: true}, {disabled: false}}
	assert.False(t, allDisabled(states))
	states[1].disabled = true
	assert.True(t, allDisabled(states))
}

func TestReader_PIDAutoDisablesAfterFiveFailures(t *testing.T) {
	r := New("/dev/ttyUSB0", 0, []PID{{Mode: 0x01, Code: 0x0D, Name: "speed"}}, 0, Mean)
	for i := 0; i < maxConsecutiveFailures; i++ {
		r.pids[0].consecutiveFailures++
		if r.pids[0].consecutiveFailures >= maxConsecutiveFailures {
			r.pids[0].disabled = true
		}
	}
	assert.True(t, r.pids[0].disabled)
	assert.True(t, allDisabled(r.pids))
}

func findPID(t *testing.T, name string) PID {
	t.Helper()
	for _, p := range StandardPIDs {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("pid %q not found", name)
	return PID{}
}
