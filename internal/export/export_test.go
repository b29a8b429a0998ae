package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lawnchairsociety/dropefficiency/internal/drops"
	"github.com/lawnchairsociety/dropefficiency/internal/efficiency"
)

func exampleResult(t *testing.T) *efficiency.Result {
	t.Helper()
	ds := &drops.Dataset{Sections: []drops.Section{
		{Name: "S1", Quests: []drops.Quest{{Name: "Q1", AP: 10, Drops: drops.DropTable{"Ore": 0.5, "Gem": 0.2}}}},
	}}
	res, err := efficiency.Compute(ds, efficiency.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	res := exampleResult(t)

	paths, err := WriteAll(dir, "jp_", res)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(paths) != 5 {
		t.Fatalf("expected 5 files, got %v", paths)
	}

	for _, name := range []string{BestAPDFile, LocationsFile, EfficiencyFile, BestLocationsFile, LocationsEfficiencyFile} {
		if _, err := os.Stat(filepath.Join(dir, "jp_"+name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestWriteAllFormats(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteAll(dir, "", exampleResult(t)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, BestAPDFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n\t\"Gem\": [\n\t\t50,\n\t\t\"S1 — Q1\"\n\t]") {
		t.Errorf("apd.json not in [apd, node] tab-indented form:\n%s", data)
	}

	var best map[string][]any
	data, err = os.ReadFile(filepath.Join(dir, BestLocationsFile))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &best); err != nil {
		t.Fatal(err)
	}
	ore := best["Ore"]
	if len(ore) != 3 || ore[0] != "S1 — Q1" || ore[1] != 2.0 || ore[2] != 20.0 {
		t.Errorf("best_locations Ore = %v, want [node, eff, apd]", ore)
	}

	var ranked map[string][]efficiency.LocationEfficiency
	data, err = os.ReadFile(filepath.Join(dir, LocationsEfficiencyFile))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &ranked); err != nil {
		t.Fatal(err)
	}
	if len(ranked["Gem"]) != 1 || ranked["Gem"][0].APD != 50 {
		t.Errorf("locations_efficiency Gem = %+v", ranked["Gem"])
	}
}

func TestWriteJSONBadPath(t *testing.T) {
	dir := t.TempDir()
	// A file where a directory is expected.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteAll(filepath.Join(blocker, "out"), "", exampleResult(t)); err == nil {
		t.Error("expected error when the output directory cannot be created")
	}
}
