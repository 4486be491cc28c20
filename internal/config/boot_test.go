package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBootConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadBootConfig_AppliesDefaults(t *testing.T) {
	path := writeBootConfig(t, `
opentpt:
  control:
    socket: /tmp/custom.sock
`)
	cfg, err := LoadBootConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.sock", cfg.Control.Socket)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 60, cfg.Renderer.TargetFPS)
	assert.Equal(t, 0.1, cfg.OBD.PollIntervalS)
}

func TestLoadBootConfig_RejectsInvalidPollInterval(t *testing.T) {
	path := writeBootConfig(t, `
opentpt:
  obd:
    poll_interval_s: 0
`)
	_, err := LoadBootConfig(path)
	assert.Error(t, err)
}

func TestLoadBootConfig_MissingFileErrors(t *testing.T) {
	_, err := LoadBootConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
