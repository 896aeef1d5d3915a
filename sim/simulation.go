// Package sim drives a reaction-diffusion boundary simulation built from config.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/boundary"
	"github.com/pthm-cable/rdboundary/compartment"
	"github.com/pthm-cable/rdboundary/config"
	"github.com/pthm-cable/rdboundary/diffusion"
	"github.com/pthm-cable/rdboundary/particles"
	"github.com/pthm-cable/rdboundary/rng"
	"github.com/pthm-cable/rdboundary/telemetry"
)

// Options holds run settings that do not belong in the config file.
type Options struct {
	Seed          uint64 // 0 = use config
	LogStats      bool   // Emit window and perf stats via slog
	OutputDir     string // Empty = use config; both empty disables file output
	StatsCallback func([]telemetry.WindowStats)
}

// Simulation owns the molecules, the compartment layer and the boundaries.
type Simulation struct {
	cfg  *config.Config
	seed uint64
	dt   float64

	store      *particles.Store
	species    []*particles.Species
	integrator *diffusion.Integrator
	grid       *compartment.Grid
	boundaries []boundary.Boundary
	steppers   []boundary.Stepper
	absorbers  []*boundary.RemoveCorrected
	absorbed   map[string]int

	observer      boundary.Observer
	collector     *telemetry.Collector
	perfCollector *telemetry.PerfCollector
	metrics       *telemetry.Metrics
	outputManager *telemetry.OutputManager
	logStats      bool
	statsCallback func([]telemetry.WindowStats)

	step int
}

// New builds a simulation from cfg.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	seed := cfg.Simulation.Seed
	if opts.Seed != 0 {
		seed = opts.Seed
	}

	s := &Simulation{
		cfg:           cfg,
		seed:          seed,
		dt:            cfg.Simulation.DT,
		store:         particles.NewStore(),
		integrator:    diffusion.NewIntegrator(rng.New(seed, streamIntegrator)),
		absorbed:      make(map[string]int),
		collector:     telemetry.NewCollector(cfg.Derived.StatsWindowSteps, cfg.Simulation.DT),
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
	}

	obs := telemetry.Tee{s.collector}
	if cfg.Telemetry.Metrics {
		s.metrics = telemetry.NewMetrics()
		obs = append(obs, s.metrics)
	}
	s.observer = obs

	placement := rng.New(seed, streamPlacement)
	for _, sc := range cfg.Species {
		sp, err := s.store.NewSpecies(sc.Name, sc.Diffusion)
		if err != nil {
			return nil, err
		}
		lo, hi := sc.Region.Min.R3(), sc.Region.Max.R3()
		for i := 0; i < sc.InitialCount; i++ {
			sp.Add(r3.Vec{
				X: lo.X + placement.UniformBound(hi.X-lo.X),
				Y: lo.Y + placement.UniformBound(hi.Y-lo.Y),
				Z: lo.Z + placement.UniformBound(hi.Z-lo.Z),
			})
		}
		s.species = append(s.species, sp)
		s.integrator.AddSpecies(sp)
	}

	if cfg.Compartments.Enabled {
		if err := s.buildCompartments(cfg.Compartments); err != nil {
			return nil, fmt.Errorf("compartments: %w", err)
		}
	}

	for i, bc := range cfg.Boundaries {
		b, err := s.buildBoundary(i, bc)
		if err != nil {
			return nil, fmt.Errorf("boundaries[%d] (%s): %w", i, bc.Kind, err)
		}
		s.boundaries = append(s.boundaries, b)
		if st, ok := b.(boundary.Stepper); ok {
			s.steppers = append(s.steppers, st)
		}
		slog.Debug("boundary added", "index", i, "boundary", b.String())
	}

	outputDir := cfg.Simulation.OutputDir
	if opts.OutputDir != "" {
		outputDir = opts.OutputDir
	}
	om, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return nil, err
	}
	s.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		om.Close()
		return nil, err
	}

	return s, nil
}

// Step advances the simulation by one timestep.
//
// Order: initialise every stepper, diffuse, apply every boundary in config
// order, finalise every stepper, then drain removed-molecule buffers.
// Arrivals that miss the compartment layer are logged and the step goes on;
// any other boundary error is returned after the step has been finalised.
func (s *Simulation) Step() error {
	s.perfCollector.StartStep()

	s.perfCollector.StartPhase(telemetry.PhaseInitialise)
	for _, st := range s.steppers {
		st.TimestepInitialise(s.dt)
	}

	s.perfCollector.StartPhase(telemetry.PhaseIntegrate)
	s.integrator.Step(s.dt)

	s.perfCollector.StartPhase(telemetry.PhaseBoundaries)
	var errs []error
	for _, b := range s.boundaries {
		if err := b.Apply(s.dt); err != nil {
			if errors.Is(err, compartment.ErrOutsideGrid) && !hasOtherCause(err) {
				slog.Warn("arrivals outside compartment layer reflected", "boundary", b.String(), "error", err)
				continue
			}
			errs = append(errs, fmt.Errorf("%s: %w", b, err))
		}
	}

	s.perfCollector.StartPhase(telemetry.PhaseFinalise)
	for _, st := range s.steppers {
		st.TimestepFinalise()
	}
	s.drainAbsorbed()
	s.step++

	s.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	if s.metrics != nil {
		s.metrics.ObserveStep()
	}
	s.flushTelemetry()
	s.perfCollector.EndStep()

	if len(errs) > 0 {
		return fmt.Errorf("step %d: %w", s.step, errors.Join(errs...))
	}
	return nil
}

// hasOtherCause reports whether a joined error holds anything but ErrOutsideGrid.
func hasOtherCause(err error) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return false
	}
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, compartment.ErrOutsideGrid) {
			return true
		}
	}
	return false
}

// Run advances the simulation steps times, checking ctx between steps.
// steps <= 0 uses the configured step count. Final outputs are written
// even when the run is cancelled.
func (s *Simulation) Run(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = s.cfg.Simulation.Steps
	}

	slog.Info("starting simulation",
		"seed", s.seed,
		"dt", s.dt,
		"steps", steps,
		"species", len(s.species),
		"boundaries", len(s.boundaries),
	)

	var runErr error
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := s.Step(); err != nil {
			runErr = err
			break
		}
	}

	if err := s.writeFinalOutputs(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	slog.Info("simulation finished", "step", s.step, "sim_time", s.Time())
	return runErr
}

// drainAbsorbed empties every remove-with-correction buffer.
func (s *Simulation) drainAbsorbed() {
	for _, b := range s.absorbers {
		for si := 0; si < b.NumSpecies(); si++ {
			if rs := b.DrainRemoved(si); len(rs) > 0 {
				s.absorbed[b.Species(si).Name] += len(rs)
			}
		}
	}
}

func (s *Simulation) lookupSpecies(names []string) ([]*particles.Species, error) {
	out := make([]*particles.Species, 0, len(names))
	for _, name := range names {
		sp, ok := s.store.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown species %q", name)
		}
		out = append(out, sp)
	}
	return out, nil
}

func (s *Simulation) compartmentSpecies(name string) (int, error) {
	id, ok := s.grid.SpeciesID(name)
	if !ok {
		return 0, fmt.Errorf("species %q: %w", name, compartment.ErrUnknownSpecies)
	}
	return id, nil
}

// Close flushes and closes output files.
func (s *Simulation) Close() error {
	return s.outputManager.Close()
}

// StepCount returns the number of completed steps.
func (s *Simulation) StepCount() int {
	return s.step
}

// Time returns the simulated time.
func (s *Simulation) Time() float64 {
	return float64(s.step) * s.dt
}

// Seed returns the run seed.
func (s *Simulation) Seed() uint64 {
	return s.seed
}

// Species returns a particle species by name.
func (s *Simulation) Species(name string) (*particles.Species, bool) {
	return s.store.Lookup(name)
}

// Boundaries returns the boundaries in application order.
func (s *Simulation) Boundaries() []boundary.Boundary {
	return s.boundaries
}

// Grid returns the compartment layer, or nil when disabled.
func (s *Simulation) Grid() *compartment.Grid {
	return s.grid
}

// Absorbed returns how many molecules of species were drained from
// remove-with-correction buffers so far.
func (s *Simulation) Absorbed(species string) int {
	return s.absorbed[species]
}

// Metrics returns the metrics collectors, or nil when disabled.
func (s *Simulation) Metrics() *telemetry.Metrics {
	return s.metrics
}
