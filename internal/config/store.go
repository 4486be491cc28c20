package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Store holds the in-memory Settings and persists changes to
// settings.json with an atomic temp-file-then-rename replace, so a crash
// mid-write never leaves a half-written file behind.
type Store struct {
	mu       sync.RWMutex
	path     string
	current  Settings
	persists bool // false when storage is absent; writes are RAM-only
}

// NewStore loads settings.json from path if present, otherwise seeds the
// store with DefaultSettings. persists controls whether Save actually
// writes to disk (false when USB storage is unavailable, per the
// "not saved" banner behavior).
func NewStore(path string, persists bool) (*Store, error) {
	s := &Store{path: path, current: DefaultSettings(), persists: persists}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	s.current = loaded
	return s, nil
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Patch applies a dotted-key partial update (e.g. "display.brightness")
// and persists the result. Unknown keys are rejected rather than
// silently ignored.
func (s *Store) Patch(updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := flattenSettings(s.current)
	for k, v := range updates {
		merged[k] = v
	}

	nested := unflatten(merged)

	var next Settings
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &next,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("building settings decoder: %w", err)
	}
	if err := dec.Decode(nested); err != nil {
		return fmt.Errorf("applying settings patch: %w", err)
	}

	s.current = next
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if !s.persists {
		return fmt.Errorf("storage unavailable: settings applied in memory only, not saved")
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp settings file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp settings file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

// ValidateFuel checks the fuel settings' required field per the
// refuel-threshold Open Question decision: there is no built-in
// default, so a tracker must not start until this is set.
func ValidateFuel(s Settings) error {
	if s.Fuel.RefuelThresholdPct <= 0 {
		return fmt.Errorf("fuel.refuel_threshold_pct must be set before the fuel tracker can run")
	}
	return nil
}

// flattenSettings converts Settings to a dotted-key map by round
// tripping through JSON, whose tags already match the spec's dotted
// key schema.
func flattenSettings(s Settings) map[string]any {
	data, _ := json.Marshal(s)
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)

	out := map[string]any{}
	flattenInto("", raw, out)
	return out
}

func flattenInto(prefix string, raw map[string]any, out map[string]any) {
	for k, v := range raw {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// unflatten is flattenInto's inverse: dotted keys become nested maps
// suitable for mapstructure decoding.
func unflatten(flat map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range flat {
		parts := splitDotted(k)
		cur := out
		for i, p := range parts {
			if i == len(parts)-1 {
				cur[p] = v
				break
			}
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[p] = next
			}
			cur = next
		}
	}
	return out
}

func splitDotted(k string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(k); i++ {
		if k[i] == '.' {
			parts = append(parts, k[start:i])
			start = i + 1
		}
	}
	parts = append(parts, k[start:])
	return parts
}
