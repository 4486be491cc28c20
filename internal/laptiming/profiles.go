package laptiming

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed detectors/*.yaml
var bundledProfiles embed.FS

// LoadProfile reads the bundled YAML profile for kind, falling back to
// DefaultProfile if no file is bundled for it.
func LoadProfile(kind DetectorKind) (Profile, error) {
	data, err := bundledProfiles.ReadFile(fmt.Sprintf("detectors/%s.yaml", kind))
	if err != nil {
		return DefaultProfile(), nil
	}

	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parsing detector profile %s: %w", kind, err)
	}
	return p, nil
}
