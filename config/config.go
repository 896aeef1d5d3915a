// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/caarlos0/env/v11"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/rdboundary/boundary"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every error Validate reports.
var ErrInvalid = errors.New("invalid config")

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation   SimulationConfig   `yaml:"simulation"`
	Species      []SpeciesConfig    `yaml:"species"`
	Boundaries   []BoundaryConfig   `yaml:"boundaries"`
	Compartments CompartmentsConfig `yaml:"compartments"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds run parameters. Each field may be overridden from the environment.
type SimulationConfig struct {
	DT        float64 `yaml:"dt"         env:"RDB_DT"`
	Steps     int     `yaml:"steps"      env:"RDB_STEPS"`
	Seed      uint64  `yaml:"seed"       env:"RDB_SEED"`
	OutputDir string  `yaml:"output_dir" env:"RDB_OUTPUT_DIR"`
}

// Vec3 is a point or direction written as a three element sequence.
type Vec3 [3]float64

// R3 converts to a gonum vector.
func (v Vec3) R3() r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// RegionConfig is an axis-aligned box.
type RegionConfig struct {
	Min Vec3 `yaml:"min"`
	Max Vec3 `yaml:"max"`
}

// SpeciesConfig describes one particle species.
type SpeciesConfig struct {
	Name         string       `yaml:"name"`
	Diffusion    float64      `yaml:"diffusion"`
	InitialCount int          `yaml:"initial_count"`
	Region       RegionConfig `yaml:"region"` // Initial molecules are placed uniformly in here
}

// GeometryConfig describes a boundary surface. Type selects which fields apply:
// plane (point, normal), box (min, max), sphere (center, radius, inverted).
type GeometryConfig struct {
	Type     string  `yaml:"type"`
	Point    Vec3    `yaml:"point"`
	Normal   Vec3    `yaml:"normal"`
	Min      Vec3    `yaml:"min"`
	Max      Vec3    `yaml:"max"`
	Center   Vec3    `yaml:"center"`
	Radius   float64 `yaml:"radius"`
	Inverted bool    `yaml:"inverted"` // Sphere domain is the outside
}

// PatchConfig describes a rectangular flux element.
type PatchConfig struct {
	Origin Vec3 `yaml:"origin"`
	T1     Vec3 `yaml:"t1"`
	T2     Vec3 `yaml:"t2"`
}

// BoundaryConfig describes one boundary. Boundaries are applied in the order listed.
type BoundaryConfig struct {
	Kind     string         `yaml:"kind"`
	Species  []string       `yaml:"species"`
	Geometry GeometryConfig `yaml:"geometry"`
	JumpBy   Vec3           `yaml:"jump_by"`  // jump, jump_corrected
	Patch    PatchConfig    `yaml:"patch"`    // flux
	Rate     float64        `yaml:"rate"`     // flux, molecules per unit time
	CatchUp  bool           `yaml:"catch_up"` // coupling_c_to_m
}

// CompartmentSpeciesConfig describes a species held as counts in the compartment layer.
// Name must match a particle species for coupling.
type CompartmentSpeciesConfig struct {
	Name         string  `yaml:"name"`
	Diffusion    float64 `yaml:"diffusion"`
	Supply       float64 `yaml:"supply"`        // Bulk resupply per compartment per unit time
	InitialCount int     `yaml:"initial_count"` // Per compartment
}

// CompartmentsConfig holds the compartment layer next to a plane interface.
type CompartmentsConfig struct {
	Enabled  bool                       `yaml:"enabled"`
	Origin   Vec3                       `yaml:"origin"`
	U        Vec3                       `yaml:"u"`
	V        Vec3                       `yaml:"v"`
	CellSize float64                    `yaml:"cell_size"`
	NU       int                        `yaml:"nu"`
	NV       int                        `yaml:"nv"`
	Species  []CompartmentSpeciesConfig `yaml:"species"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Simulated time per stats window
	PerfWindow  int     `yaml:"perf_window"`  // Steps per perf summary
	Metrics     bool    `yaml:"metrics"`      // Count boundary events in a prometheus registry
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	SpeciesIndex     map[string]int // name -> position in Species
	StatsWindowSteps int            // Telemetry.StatsWindow / Simulation.DT, at least 1
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults,
// then applies environment overrides and validates the result.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := ParseEnv(&cfg.Simulation); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ComputeDerived()
	return cfg, nil
}

// ParseEnv loads overrides from environment variables. Unset variables leave fields untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports every configuration problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalid))
	}

	if c.Simulation.DT <= 0 || math.IsNaN(c.Simulation.DT) {
		bad("simulation.dt must be positive, got %v", c.Simulation.DT)
	}
	if c.Simulation.Steps < 0 {
		bad("simulation.steps must not be negative, got %d", c.Simulation.Steps)
	}

	names := make(map[string]bool, len(c.Species))
	for i, s := range c.Species {
		switch {
		case s.Name == "":
			bad("species[%d]: missing name", i)
		case names[s.Name]:
			bad("species[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if s.Diffusion < 0 {
			bad("species %q: negative diffusion %v", s.Name, s.Diffusion)
		}
		if s.InitialCount < 0 {
			bad("species %q: negative initial_count", s.Name)
		}
	}

	compartmentNames := make(map[string]bool, len(c.Compartments.Species))
	for _, s := range c.Compartments.Species {
		compartmentNames[s.Name] = true
	}

	for i, b := range c.Boundaries {
		kind, err := boundary.ParseKind(b.Kind)
		if err != nil {
			bad("boundaries[%d]: %v", i, err)
			continue
		}
		if len(b.Species) == 0 {
			bad("boundaries[%d] (%s): no species", i, kind)
		}
		for _, name := range b.Species {
			if !names[name] {
				bad("boundaries[%d] (%s): unknown species %q", i, kind, name)
			}
			if (kind == boundary.KindCouplingMtoC || kind == boundary.KindCouplingCtoM) && !compartmentNames[name] {
				bad("boundaries[%d] (%s): species %q has no compartment counterpart", i, kind, name)
			}
		}
		switch kind {
		case boundary.KindFlux:
			if b.Rate < 0 {
				bad("boundaries[%d] (flux): negative rate %v", i, b.Rate)
			}
		case boundary.KindCouplingMtoC, boundary.KindCouplingCtoM:
			if !c.Compartments.Enabled {
				bad("boundaries[%d] (%s): compartments are disabled", i, kind)
			}
			fallthrough
		default:
			if err := validateGeometry(b.Geometry); err != nil {
				bad("boundaries[%d] (%s): %v", i, kind, err)
			}
		}
	}

	if c.Compartments.Enabled {
		if c.Compartments.CellSize <= 0 || c.Compartments.NU <= 0 || c.Compartments.NV <= 0 {
			bad("compartments: cell_size, nu and nv must be positive")
		}
	}

	if c.Telemetry.PerfWindow < 0 {
		bad("telemetry.perf_window must not be negative")
	}

	return errors.Join(errs...)
}

func validateGeometry(g GeometryConfig) error {
	switch g.Type {
	case "plane":
		if g.Normal.R3() == (r3.Vec{}) {
			return errors.New("plane normal is zero")
		}
	case "box":
		for i := range 3 {
			if g.Min[i] >= g.Max[i] {
				return errors.New("box min must be below max on every axis")
			}
		}
	case "sphere":
		if g.Radius <= 0 {
			return errors.New("sphere radius must be positive")
		}
	case "":
		return errors.New("missing geometry")
	default:
		return fmt.Errorf("unknown geometry type %q", g.Type)
	}
	return nil
}

// ComputeDerived recalculates values derived from the loaded config. Call it
// again after changing simulation or telemetry fields in code.
func (c *Config) ComputeDerived() {
	c.Derived.SpeciesIndex = make(map[string]int, len(c.Species))
	for i, s := range c.Species {
		c.Derived.SpeciesIndex[s.Name] = i
	}

	steps := 1
	if c.Simulation.DT > 0 && c.Telemetry.StatsWindow > 0 {
		steps = max(1, int(math.Round(c.Telemetry.StatsWindow/c.Simulation.DT)))
	}
	c.Derived.StatsWindowSteps = steps
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
