// Package compartment is a compartment-based stochastic solver restricted to
// the single layer of cubic compartments that touches a particle domain.
//
// Molecules inside a compartment are counts, not positions. Each molecule
// leaves through the interface face at rate D/h^2 and each species may be
// resupplied from the bulk at a constant rate per compartment. Events are
// simulated with the Gillespie direct method.
package compartment

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/boundary"
	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/rng"
)

var (
	// ErrUnknownSpecies is returned for a species id that was never added.
	ErrUnknownSpecies = errors.New("unknown compartment species")
	// ErrOutsideGrid is returned for an arrival that does not fall on any face.
	ErrOutsideGrid = errors.New("arrival outside compartment grid")
	// ErrBadGrid is returned for non-positive cell sizes or extents.
	ErrBadGrid = errors.New("invalid compartment grid")
)

// Layout places the grid. Faces tile the rectangle origin + [0,NU*H)*U +
// [0,NV*H)*V; compartments sit on the side opposite U x V.
type Layout struct {
	Origin r3.Vec
	U, V   r3.Vec
	H      float64
	NU, NV int
}

type speciesState struct {
	name   string
	d      float64
	supply float64
	counts []int
}

// Grid is the compartment layer. Not safe for concurrent use.
type Grid struct {
	origin r3.Vec
	u, v   r3.Vec
	h      float64
	nu, nv int

	species []*speciesState
	rng     *rng.Stream
	time    float64
	events  []boundary.OutfluxEvent
}

// NewGrid validates the layout and creates an empty grid.
func NewGrid(l Layout, stream *rng.Stream) (*Grid, error) {
	if l.H <= 0 || l.NU <= 0 || l.NV <= 0 {
		return nil, fmt.Errorf("h=%v nu=%d nv=%d: %w", l.H, l.NU, l.NV, ErrBadGrid)
	}
	if r3.Norm(l.U) == 0 || r3.Norm(l.V) == 0 || math.Abs(r3.Dot(r3.Unit(l.U), r3.Unit(l.V))) > 1e-9 {
		return nil, fmt.Errorf("axes must be non-zero and orthogonal: %w", ErrBadGrid)
	}
	return &Grid{
		origin: l.Origin,
		u:      r3.Unit(l.U),
		v:      r3.Unit(l.V),
		h:      l.H,
		nu:     l.NU,
		nv:     l.NV,
		rng:    stream,
	}, nil
}

// AddSpecies registers a species with diffusion coefficient d and bulk supply
// rate per compartment. Returns the solver species id.
func (g *Grid) AddSpecies(name string, d, supply float64) int {
	g.species = append(g.species, &speciesState{
		name:   name,
		d:      d,
		supply: supply,
		counts: make([]int, g.nu*g.nv),
	})
	return len(g.species) - 1
}

// SpeciesID looks up a species by name.
func (g *Grid) SpeciesID(name string) (int, bool) {
	for i, s := range g.species {
		if s.name == name {
			return i, true
		}
	}
	return 0, false
}

// Time returns the solver clock.
func (g *Grid) Time() float64 {
	return g.time
}

// Size returns the number of faces along U and V.
func (g *Grid) Size() (int, int) {
	return g.nu, g.nv
}

// Face returns the interface face of compartment (iu, iv).
func (g *Grid) Face(iu, iv int) geometry.Patch {
	o := r3.Add(g.origin, r3.Add(r3.Scale(float64(iu)*g.h, g.u), r3.Scale(float64(iv)*g.h, g.v)))
	return geometry.Patch{Origin: o, T1: r3.Scale(g.h, g.u), T2: r3.Scale(g.h, g.v)}
}

// SetCount sets the number of molecules of species in compartment (iu, iv).
func (g *Grid) SetCount(species, iu, iv, n int) error {
	s, err := g.lookup(species)
	if err != nil {
		return err
	}
	s.counts[g.index(iu, iv)] = n
	return nil
}

// Fill sets every compartment of species to n molecules.
func (g *Grid) Fill(species, n int) error {
	s, err := g.lookup(species)
	if err != nil {
		return err
	}
	for i := range s.counts {
		s.counts[i] = n
	}
	return nil
}

// Counts returns a copy of the per-compartment counts of species, row-major in U.
func (g *Grid) Counts(species int) []int {
	s, err := g.lookup(species)
	if err != nil {
		return nil
	}
	out := make([]int, len(s.counts))
	copy(out, s.counts)
	return out
}

// Total returns the number of molecules of species held in the grid.
func (g *Grid) Total(species int) int {
	total := 0
	for _, n := range g.Counts(species) {
		total += n
	}
	return total
}

// AddArrival implements boundary.CompartmentSolver.
func (g *Grid) AddArrival(species int, r r3.Vec) error {
	s, err := g.lookup(species)
	if err != nil {
		return err
	}
	iu, iv, ok := g.locate(r)
	if !ok {
		return fmt.Errorf("%v: %w", r, ErrOutsideGrid)
	}
	s.counts[g.index(iu, iv)]++
	return nil
}

// Outflux implements boundary.CompartmentSolver. The solver is advanced to
// until if needed; events at or before since are discarded.
func (g *Grid) Outflux(since, until float64) []boundary.OutfluxEvent {
	if until > g.time {
		g.Advance(until)
	}

	kept := g.events[:0]
	var out []boundary.OutfluxEvent
	for _, ev := range g.events {
		if ev.Time <= since {
			continue
		}
		kept = append(kept, ev)
		if ev.Time <= until {
			out = append(out, ev)
		}
	}
	g.events = kept
	return out
}

// Advance simulates outflux and supply events up to time until.
func (g *Grid) Advance(until float64) {
	for g.time < until {
		total := g.totalRate()
		if total <= 0 {
			g.time = until
			return
		}
		tau := g.rng.Exponential(total)
		if g.time+tau > until {
			g.time = until
			return
		}
		g.time += tau
		g.fire(g.rng.UniformBound(total))
	}
}

func (g *Grid) hopRate(s *speciesState) float64 {
	return s.d / (g.h * g.h)
}

func (g *Grid) totalRate() float64 {
	total := 0.0
	n := float64(g.nu * g.nv)
	for _, s := range g.species {
		total += float64(sum(s.counts))*g.hopRate(s) + s.supply*n
	}
	return total
}

// fire executes the event selected by x in [0, totalRate).
func (g *Grid) fire(x float64) {
	cells := g.nu * g.nv
	for si, s := range g.species {
		hop := g.hopRate(s)
		for i, c := range s.counts {
			w := float64(c) * hop
			if x < w {
				s.counts[i]--
				iu, iv := i%g.nu, i/g.nu
				g.events = append(g.events, boundary.OutfluxEvent{
					Species: si,
					Time:    g.time,
					Face:    g.Face(iu, iv),
				})
				return
			}
			x -= w
		}
		supply := s.supply * float64(cells)
		if x < supply {
			s.counts[int(x/s.supply)%cells]++
			return
		}
		x -= supply
	}
}

func (g *Grid) locate(r r3.Vec) (int, int, bool) {
	rel := r3.Sub(r, g.origin)
	a := r3.Dot(rel, g.u) / g.h
	b := r3.Dot(rel, g.v) / g.h
	if a < 0 || b < 0 || a > float64(g.nu) || b > float64(g.nv) {
		return 0, 0, false
	}
	return min(int(a), g.nu-1), min(int(b), g.nv-1), true
}

func (g *Grid) index(iu, iv int) int {
	if iu < 0 || iu >= g.nu || iv < 0 || iv >= g.nv {
		panic(fmt.Sprintf("compartment: face (%d, %d) outside %dx%d grid", iu, iv, g.nu, g.nv))
	}
	return iv*g.nu + iu
}

func (g *Grid) lookup(species int) (*speciesState, error) {
	if species < 0 || species >= len(g.species) {
		return nil, fmt.Errorf("species %d: %w", species, ErrUnknownSpecies)
	}
	return g.species[species], nil
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
