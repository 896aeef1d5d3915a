package boundary

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/particles"
	"github.com/pthm-cable/rdboundary/rng"
)

// ErrNonPositiveStep is returned when a coupling boundary is applied with dt <= 0.
var ErrNonPositiveStep = errors.New("non-positive timestep")

// OutfluxEvent is a molecule leaving the compartment solver through an
// interface face into the particle domain.
type OutfluxEvent struct {
	Species int
	Time    float64
	Face    geometry.Patch
}

// CompartmentSolver is the compartment-based stochastic solver the coupling
// boundaries exchange molecules with.
type CompartmentSolver interface {
	// AddArrival puts one molecule of species into the compartment adjacent to r.
	AddArrival(species int, r r3.Vec) error
	// Outflux returns the events with since < Time <= until.
	Outflux(since, until float64) []OutfluxEvent
}

// CouplingMtoC converts molecules the corrector reports as crossed into
// compartment arrivals. Molecules are moved, never lost: a molecule whose
// arrival the solver rejects is reflected back into the particle domain.
type CouplingMtoC struct {
	base
	*Corrector
	solver        CompartmentSolver
	solverSpecies []int
}

// NewCouplingMtoC creates a molecules-to-compartments coupling boundary on g.
func NewCouplingMtoC(g geometry.Geometry, solver CompartmentSolver, stream *rng.Stream, opts ...Option) *CouplingMtoC {
	return &CouplingMtoC{
		base:      newBase(g, opts),
		Corrector: NewCorrector(g, stream),
		solver:    solver,
	}
}

// AddSpecies registers s, mapped to solverSpecies in the compartment solver.
func (b *CouplingMtoC) AddSpecies(s *particles.Species, solverSpecies int) int {
	si := b.Corrector.AddSpecies(s)
	b.solverSpecies = append(b.solverSpecies, solverSpecies)
	return si
}

func (b *CouplingMtoC) Kind() Kind { return KindCouplingMtoC }

func (b *CouplingMtoC) Apply(dt float64) error {
	b.mustBeOpen()
	var errs []error
	for si, target := range b.solverSpecies {
		s := b.Corrector.Species(si)

		// Where the solver rejects an arrival the interface acts as a
		// reflecting wall and the molecule stays in the particle domain.
		var doomed []particles.Handle
		for p := 0; p < b.Len(si); p++ {
			if !b.ParticleCrossedBoundary(p, si) {
				continue
			}
			h := b.Handle(p, si)
			r := s.Position(h)
			site := geometry.NearestBoundaryPoint(b.base.geometry, r)
			if err := b.solver.AddArrival(target, site); err != nil {
				errs = append(errs, fmt.Errorf("species %q arrival at %v: %w", s.Name, site, err))
				if !geometry.IsInterior(b.base.geometry, r) {
					s.SetPosition(h, Reflect(b.base.geometry, r))
					b.markMoved(p, si)
				}
				continue
			}
			doomed = append(doomed, h)
		}
		s.Remove(doomed...)
		b.report(KindCouplingMtoC, s, ActionConverted, len(doomed))
	}
	return errors.Join(errs...)
}

func (b *CouplingMtoC) String() string {
	return fmt.Sprintf("Coupling Boundary from Molecules to Compartments at %s", b.base.geometry)
}

// CouplingCtoM turns compartment outflux events into molecules placed on the
// interface face the event left through.
type CouplingCtoM struct {
	base
	solver   CompartmentSolver
	rng      *rng.Stream
	species  []*particles.Species
	bySolver map[int]int
	catchUp  bool

	oldDt  float64
	clock  float64
	scales []float64
}

// CouplingOption configures a compartments-to-molecules boundary.
type CouplingOption func(*CouplingCtoM)

// WithCatchUp displaces each released molecule into the particle domain by
// the diffusion it would have done between its event time and the end of the step.
func WithCatchUp(enabled bool) CouplingOption {
	return func(b *CouplingCtoM) {
		b.catchUp = enabled
	}
}

// WithBoundaryOptions applies common boundary options.
func WithBoundaryOptions(opts ...Option) CouplingOption {
	return func(b *CouplingCtoM) {
		for _, opt := range opts {
			opt(&b.base)
		}
	}
}

// NewCouplingCtoM creates a compartments-to-molecules coupling boundary. g is
// the interface geometry; its positive side is the particle domain.
func NewCouplingCtoM(g geometry.Geometry, solver CompartmentSolver, stream *rng.Stream, opts ...CouplingOption) *CouplingCtoM {
	b := &CouplingCtoM{
		base:     newBase(g, nil),
		solver:   solver,
		rng:      stream,
		bySolver: make(map[int]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddSpecies maps solver species solverSpecies onto s.
func (b *CouplingCtoM) AddSpecies(s *particles.Species, solverSpecies int) int {
	if _, ok := b.bySolver[solverSpecies]; ok {
		panic(fmt.Sprintf("boundary: solver species %d mapped twice", solverSpecies))
	}
	b.species = append(b.species, s)
	b.scales = append(b.scales, math.Sqrt(2*s.D*b.oldDt))
	si := len(b.species) - 1
	b.bySolver[solverSpecies] = si
	return si
}

// Clock returns the particle-side time covered by previous Apply calls.
func (b *CouplingCtoM) Clock() float64 {
	return b.clock
}

// CatchUpScale returns sqrt(2*D*dt) for species si at the last step size.
func (b *CouplingCtoM) CatchUpScale(si int) float64 {
	return b.scales[si]
}

func (b *CouplingCtoM) Kind() Kind { return KindCouplingCtoM }

func (b *CouplingCtoM) Apply(dt float64) error {
	if dt <= 0 || math.IsNaN(dt) {
		return fmt.Errorf("coupling c->m dt=%v: %w", dt, ErrNonPositiveStep)
	}
	if dt != b.oldDt {
		if b.oldDt != 0 {
			slog.Debug("coupling step size changed", "old_dt", b.oldDt, "dt", dt)
		}
		for si, s := range b.species {
			b.scales[si] = math.Sqrt(2 * s.D * dt)
		}
		b.oldDt = dt
	}

	since, until := b.clock, b.clock+dt
	released := make([]int, len(b.species))
	dropped := 0
	for _, ev := range b.solver.Outflux(since, until) {
		si, ok := b.bySolver[ev.Species]
		if !ok {
			dropped++
			continue
		}
		b.species[si].Add(b.release(ev, si, until, dt))
		released[si]++
	}
	b.clock = until

	for si, s := range b.species {
		b.report(KindCouplingCtoM, s, ActionReleased, released[si])
	}
	if dropped > 0 {
		slog.Warn("outflux events for unmapped species dropped", "count", dropped)
		if b.observer != nil {
			b.observer.BoundaryEvent(KindCouplingCtoM, "", ActionDropped, dropped)
		}
	}
	return nil
}

func (b *CouplingCtoM) release(ev OutfluxEvent, si int, until, dt float64) r3.Vec {
	l1, l2 := ev.Face.Lengths()
	r := ev.Face.At(b.rng.UniformBound(l1), b.rng.UniformBound(l2))
	if !b.catchUp {
		return r
	}
	frac := math.Min(math.Max((until-ev.Time)/dt, 0), 1)
	step := math.Abs(b.rng.Normal()) * b.scales[si] * math.Sqrt(frac)
	return r3.Add(r, r3.Scale(step, b.inward(ev.Face)))
}

// inward orients the face normal toward the particle domain.
func (b *CouplingCtoM) inward(face geometry.Patch) r3.Vec {
	n := face.Normal()
	if b.geometry == nil {
		return n
	}
	c := face.Center()
	l1, l2 := face.Lengths()
	eps := 1e-6 * math.Max(l1, l2)
	if b.geometry.DistanceToBoundary(r3.Add(c, r3.Scale(eps, n))) < b.geometry.DistanceToBoundary(c) {
		return r3.Scale(-1, n)
	}
	return n
}

func (b *CouplingCtoM) String() string {
	return fmt.Sprintf("Coupling Boundary from Compartments to Molecules at %s", b.geometry)
}
