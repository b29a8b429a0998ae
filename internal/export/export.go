// Package export writes computation results as tab-indented JSON files.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lawnchairsociety/dropefficiency/internal/efficiency"
	"github.com/lawnchairsociety/dropefficiency/internal/logger"
)

// File names written by WriteAll, before the prefix is applied.
const (
	BestAPDFile             = "apd.json"
	LocationsFile           = "locations.json"
	EfficiencyFile          = "efficiency.json"
	BestLocationsFile       = "best_locations.json"
	LocationsEfficiencyFile = "locations_efficiency.json"
)

// WriteAll writes the five result files into dir, each name prefixed with
// prefix, and returns the paths written. dir is created if needed.
func WriteAll(dir, prefix string, res *efficiency.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	files := []struct {
		name  string
		value any
	}{
		{BestAPDFile, res.BestAPD},
		{LocationsFile, res.Locations},
		{EfficiencyFile, res.Efficiency},
		{BestLocationsFile, res.BestLocation},
		{LocationsEfficiencyFile, res.RankedLocations},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, prefix+f.name)
		if err := WriteJSON(path, f.value); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	logger.Debug("Results exported", "dir", dir, "files", len(paths))
	return paths, nil
}

// WriteJSON writes v to path as JSON indented with tabs. Map keys come out
// sorted.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
