package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the molecule state of a run at one step.
type Snapshot struct {
	Version int     `json:"version"`
	Seed    uint64  `json:"seed"`
	Step    int     `json:"step"`
	SimTime float64 `json:"sim_time"`

	Species      []SpeciesState     `json:"species"`
	Compartments []CompartmentState `json:"compartments,omitempty"`
}

// SpeciesState holds the molecules of one particle species.
type SpeciesState struct {
	Name      string       `json:"name"`
	Diffusion float64      `json:"diffusion"`
	Positions [][3]float64 `json:"positions"`
}

// CompartmentState holds the per-compartment counts of one compartment species.
type CompartmentState struct {
	Name   string `json:"name"`
	Counts []int  `json:"counts"`
}

// SaveSnapshot writes a snapshot to dir.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", snapshot.Step))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}
	return &snapshot, nil
}
