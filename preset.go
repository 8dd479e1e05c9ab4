package metronome

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseSettings reads a YAML practice preset. Fields missing from the
// document keep their DefaultSettings values, so a preset only needs to
// spell out what it changes. The whole document is validated before it is
// returned; a preset is never partially applied.
func ParseSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("could not parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// YAML serializes the settings as a practice preset document.
func (s *Settings) YAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("could not serialize settings: %w", err)
	}
	return data, nil
}

// LoadSettings reads and validates a preset file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("could not read preset %v: %w", path, err)
	}
	return ParseSettings(data)
}

// SaveSettings writes a preset file.
func SaveSettings(path string, s Settings) error {
	data, err := s.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not write preset %v: %w", path, err)
	}
	return nil
}
