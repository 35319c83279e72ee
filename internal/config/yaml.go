package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// parseYAML overlays the fields present in the file; absent keys keep their
// current value.
func parseYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}
