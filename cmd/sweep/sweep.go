package main

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/rdboundary/config"
	"github.com/pthm-cable/rdboundary/sim"
)

// Outcome is the end state of one species after one run.
type Outcome struct {
	Molecules   int
	Compartment int
	Absorbed    int
}

// Row aggregates one (dt, species) cell of the sweep over seeds.
type Row struct {
	DT              float64 `csv:"dt"`
	Steps           int     `csv:"steps"`
	Species         string  `csv:"species"`
	Seeds           int     `csv:"seeds"`
	MoleculesMean   float64 `csv:"molecules_mean"`
	MoleculesStderr float64 `csv:"molecules_stderr"`
	CompartmentMean float64 `csv:"compartment_mean"`
	AbsorbedMean    float64 `csv:"absorbed_mean"`
	AbsorbedStderr  float64 `csv:"absorbed_stderr"`
}

// runOnce runs the configuration at path to simulated time horizon with step dt.
func runOnce(ctx context.Context, path string, dt, horizon float64, seed uint64) (map[string]Outcome, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Simulation.DT = dt
	cfg.Simulation.Steps = stepsFor(dt, horizon)
	cfg.Simulation.OutputDir = ""
	cfg.Telemetry.Metrics = false
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ComputeDerived()

	s, err := sim.New(cfg, sim.Options{Seed: seed})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.Run(ctx, 0); err != nil {
		return nil, err
	}

	out := make(map[string]Outcome, len(cfg.Species))
	for _, sc := range cfg.Species {
		sp, _ := s.Species(sc.Name)
		o := Outcome{Molecules: sp.Len(), Absorbed: s.Absorbed(sc.Name)}
		if g := s.Grid(); g != nil {
			if id, ok := g.SpeciesID(sc.Name); ok {
				o.Compartment = g.Total(id)
			}
		}
		out[sc.Name] = o
	}
	return out, nil
}

func stepsFor(dt, horizon float64) int {
	return max(1, int(math.Round(horizon/dt)))
}

// aggregate builds one row per species from per-seed outcomes.
func aggregate(dt float64, steps int, species []string, runs []map[string]Outcome) []Row {
	rows := make([]Row, 0, len(species))
	for _, name := range species {
		mol := make([]float64, 0, len(runs))
		comp := make([]float64, 0, len(runs))
		abs := make([]float64, 0, len(runs))
		for _, r := range runs {
			o := r[name]
			mol = append(mol, float64(o.Molecules))
			comp = append(comp, float64(o.Compartment))
			abs = append(abs, float64(o.Absorbed))
		}
		molMean, molStd := stat.MeanStdDev(mol, nil)
		absMean, absStd := stat.MeanStdDev(abs, nil)
		rows = append(rows, Row{
			DT:              dt,
			Steps:           steps,
			Species:         name,
			Seeds:           len(runs),
			MoleculesMean:   molMean,
			MoleculesStderr: stderr(molStd, len(runs)),
			CompartmentMean: stat.Mean(comp, nil),
			AbsorbedMean:    absMean,
			AbsorbedStderr:  stderr(absStd, len(runs)),
		})
	}
	return rows
}

func stderr(std float64, n int) float64 {
	if n < 2 || math.IsNaN(std) {
		return 0
	}
	return std / math.Sqrt(float64(n))
}

// parseDTs parses a comma separated list of positive step sizes.
func parseDTs(list []string) ([]float64, error) {
	out := make([]float64, 0, len(list))
	for _, s := range list {
		var dt float64
		if _, err := fmt.Sscan(s, &dt); err != nil {
			return nil, fmt.Errorf("dt %q: %w", s, err)
		}
		if dt <= 0 {
			return nil, fmt.Errorf("dt %q must be positive", s)
		}
		out = append(out, dt)
	}
	return out, nil
}
