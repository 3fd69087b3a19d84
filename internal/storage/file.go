package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFleetFile reads a fleet from a YAML (or JSON) document with "used" and
// "total" lists. The file name, without extension, is used when the document
// carries no name.
func LoadFleetFile(path string, maxDrives int) (Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fleet{}, fmt.Errorf("read file: %w", err)
	}

	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return Fleet{}, fmt.Errorf("parse fleet file: %w", err)
	}
	if strings.TrimSpace(fleet.Name) == "" {
		base := filepath.Base(path)
		fleet.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return NormalizeFleet(fleet, maxDrives)
}
