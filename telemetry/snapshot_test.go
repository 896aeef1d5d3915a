package telemetry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	snapshot := &Snapshot{
		Version: SnapshotVersion,
		Seed:    42,
		Step:    1000,
		SimTime: 1.0,
		Species: []SpeciesState{
			{Name: "A", Diffusion: 1, Positions: [][3]float64{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}},
			{Name: "B", Diffusion: 0.5},
		},
		Compartments: []CompartmentState{{Name: "A", Counts: []int{1, 2, 3, 4}}},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if filepath.Base(path) != "snapshot_1000.json" {
		t.Errorf("unexpected filename: %s", filepath.Base(path))
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if loaded.Seed != 42 || loaded.Step != 1000 {
		t.Errorf("header = seed %d step %d", loaded.Seed, loaded.Step)
	}
	if len(loaded.Species) != 2 || len(loaded.Species[0].Positions) != 2 {
		t.Fatalf("species not restored: %+v", loaded.Species)
	}
	if loaded.Species[0].Positions[1] != [3]float64{0.4, 0.5, 0.6} {
		t.Errorf("position = %v", loaded.Species[0].Positions[1])
	}
	if got := loaded.Compartments[0].Counts; len(got) != 4 || got[3] != 4 {
		t.Errorf("compartment counts = %v", got)
	}
}

func TestLoadSnapshotRejectsOtherVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Error("expected version error")
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
