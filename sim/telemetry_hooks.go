package sim

import (
	"errors"
	"log/slog"

	"github.com/pthm-cable/rdboundary/telemetry"
)

// flushTelemetry flushes the stats window and perf summary when due.
func (s *Simulation) flushTelemetry() {
	if pw := s.cfg.Telemetry.PerfWindow; pw > 0 && s.step%pw == 0 {
		perfStats := s.perfCollector.Stats()
		if s.logStats {
			perfStats.LogStats()
		}
		if err := s.outputManager.WritePerf(perfStats, s.step); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	if !s.collector.ShouldFlush(s.step) {
		return
	}

	samples := s.samples()
	stats := s.collector.Flush(s.step, samples)

	if s.metrics != nil {
		for _, sm := range samples {
			s.metrics.SetCounts(sm.Species, len(sm.Positions), sm.Compartment)
		}
	}

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		for _, st := range stats {
			st.LogStats()
		}
	}

	if err := s.outputManager.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
}

// samples captures the end-of-window state of every particle species.
func (s *Simulation) samples() []telemetry.Sample {
	out := make([]telemetry.Sample, 0, len(s.species))
	for _, sp := range s.species {
		out = append(out, telemetry.Sample{
			Species:     sp.Name,
			Positions:   sp.Positions(),
			Compartment: s.compartmentTotal(sp.Name),
		})
	}
	return out
}

func (s *Simulation) compartmentTotal(name string) int {
	if s.grid == nil {
		return 0
	}
	id, ok := s.grid.SpeciesID(name)
	if !ok {
		return 0
	}
	return s.grid.Total(id)
}

// Snapshot captures the current molecule and compartment state.
func (s *Simulation) Snapshot() *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		Seed:    s.seed,
		Step:    s.step,
		SimTime: s.Time(),
	}
	for _, sp := range s.species {
		state := telemetry.SpeciesState{Name: sp.Name, Diffusion: sp.D}
		for _, r := range sp.Positions() {
			state.Positions = append(state.Positions, [3]float64{r.X, r.Y, r.Z})
		}
		snap.Species = append(snap.Species, state)
	}
	if s.grid != nil {
		for _, sc := range s.cfg.Compartments.Species {
			id, ok := s.grid.SpeciesID(sc.Name)
			if !ok {
				continue
			}
			snap.Compartments = append(snap.Compartments, telemetry.CompartmentState{
				Name:   sc.Name,
				Counts: s.grid.Counts(id),
			})
		}
	}
	return snap
}

// writeFinalOutputs saves the end-of-run snapshot and metrics.
func (s *Simulation) writeFinalOutputs() error {
	var errs []error
	if path, err := s.outputManager.WriteSnapshot(s.Snapshot()); err != nil {
		errs = append(errs, err)
	} else if path != "" {
		slog.Info("snapshot saved", "path", path)
	}
	if s.metrics != nil {
		if err := s.outputManager.WriteMetrics(s.metrics.Registry()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
