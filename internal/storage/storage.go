// Package storage resolves the on-vehicle persisted-state layout (§6):
// a USB-mounted root with a local-home fallback, the fixed directory
// tree underneath it, and the "storage missing" banner state surfaced
// when only the fallback is available.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/SamSkjord/opentpt/internal/log"
)

// Layout is the resolved set of paths under whichever root is active.
type Layout struct {
	Root             string
	SettingsPath     string
	LapTimingDB      string
	TracksDir        string
	RoutesDir        string
	PitDB            string
	CoPilotMapsDir   string
	CoPilotRoutesDir string
	LogDir           string
}

func layoutFor(root string) Layout {
	return Layout{
		Root:             root,
		SettingsPath:     filepath.Join(root, "settings.json"),
		LapTimingDB:      filepath.Join(root, "lap_timing", "lap_timing.db"),
		TracksDir:        filepath.Join(root, "lap_timing", "tracks"),
		RoutesDir:        filepath.Join(root, "routes"),
		PitDB:            filepath.Join(root, "pit_timer", "pit_waypoints.db"),
		CoPilotMapsDir:   filepath.Join(root, "copilot", "maps"),
		CoPilotRoutesDir: filepath.Join(root, "copilot", "routes"),
		LogDir:           filepath.Join(root, "logs"),
	}
}

// Manager resolves USB-vs-local storage at boot and watches the USB
// mount point so the UI's "not saved" banner can clear once a drive
// appears, without polling.
type Manager struct {
	usbMount  string
	localHome string

	layout  Layout
	onUSB   bool
	watcher *fsnotify.Watcher
	log     log.Logger
}

// Resolve picks usbMount if it exists and is writable, otherwise falls
// back to localHome, creating the directory tree either way. The
// returned Manager's OnUSB() reports which root is active; callers feed
// that into config.Store's persists flag and the boot-time warning
// banner (§7).
func Resolve(usbMount, localHome string, logger log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Root()
	}
	m := &Manager{usbMount: usbMount, localHome: localHome, log: logger}

	root, onUSB := m.pickRoot()
	if err := ensureTree(root); err != nil {
		return nil, fmt.Errorf("storage: preparing %s: %w", root, err)
	}
	m.layout = layoutFor(root)
	m.onUSB = onUSB

	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.log.Warn("storage: fsnotify unavailable, USB hotplug banner will not auto-clear: ", err)
		return m, nil
	}
	m.watcher = w
	watchDir := filepath.Dir(usbMount)
	if err := w.Add(watchDir); err != nil {
		m.log.Warn("storage: could not watch ", watchDir, ": ", err)
	}

	return m, nil
}

// pickRoot returns usbMount if writable, else localHome expanded; the
// local root is returned without checking that it is writable.
func (m *Manager) pickRoot() (string, bool) {
	if writable(m.usbMount) {
		return m.usbMount, true
	}
	home := expandHome(m.localHome)
	return home, false
}

func writable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".opentpt-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func ensureTree(root string) error {
	dirs := []string{
		root,
		filepath.Join(root, "lap_timing", "tracks"),
		filepath.Join(root, "routes"),
		filepath.Join(root, "pit_timer"),
		filepath.Join(root, "copilot", "maps"),
		filepath.Join(root, "copilot", "routes"),
		filepath.Join(root, "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Layout returns the active resolved paths.
func (m *Manager) Layout() Layout { return m.layout }

// OnUSB reports whether the active root is the USB mount (vs. the local
// fallback). The orchestrator wires this into the "not saved" banner and
// config.Store's persists flag — both layouts persist, but only USB
// matches the vehicle's intended on-disk location.
func (m *Manager) OnUSB() bool { return m.onUSB }

// Events exposes raw fsnotify events on the watched mount-point parent
// directory so the orchestrator can re-run Resolve when a drive arrives
// or disappears. Returns nil if the watcher failed to start.
func (m *Manager) Events() <-chan fsnotify.Event {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Events
}

// Close releases the fsnotify watcher.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}
