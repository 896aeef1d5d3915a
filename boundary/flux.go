package boundary

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/particles"
	"github.com/pthm-cable/rdboundary/rng"
)

// ErrNegativeRate is returned for a flux boundary with a negative or NaN rate.
var ErrNegativeRate = errors.New("negative flux rate")

// FluxBoundary injects new molecules uniformly over a planar patch at a fixed
// mean rate. It has no geometry of its own.
type FluxBoundary struct {
	base
	species speciesList
	patch   geometry.Patch
	rate    float64
	rng     *rng.Stream
	l1, l2  float64
}

// NewFluxBoundary creates a source over the parallelogram p + u*t1 + v*t2
// emitting rate molecules per unit time into every registered species.
func NewFluxBoundary(patch geometry.Patch, rate float64, stream *rng.Stream, opts ...Option) (*FluxBoundary, error) {
	if _, err := geometry.NewPatch(patch.Origin, patch.T1, patch.T2); err != nil {
		return nil, fmt.Errorf("flux boundary: %w", err)
	}
	if rate < 0 || math.IsNaN(rate) {
		return nil, fmt.Errorf("flux boundary rate %v: %w", rate, ErrNegativeRate)
	}
	l1, l2 := patch.Lengths()
	return &FluxBoundary{
		base:  newBase(nil, opts),
		patch: patch,
		rate:  rate,
		rng:   stream,
		l1:    l1,
		l2:    l2,
	}, nil
}

// AddSpecies registers s and returns its index.
func (b *FluxBoundary) AddSpecies(s *particles.Species) int {
	return b.species.add(s)
}

// Rate returns the mean number of molecules injected per unit time.
func (b *FluxBoundary) Rate() float64 {
	return b.rate
}

// Patch returns the injection patch.
func (b *FluxBoundary) Patch() geometry.Patch {
	return b.patch
}

func (b *FluxBoundary) Kind() Kind { return KindFlux }

func (b *FluxBoundary) Apply(dt float64) error {
	for _, s := range b.species {
		n := b.rng.Poisson(b.rate * dt)
		for i := 0; i < n; i++ {
			s.Add(b.patch.At(b.rng.UniformBound(b.l1), b.rng.UniformBound(b.l2)))
		}
		b.report(KindFlux, s, ActionInjected, n)
	}
	return nil
}

func (b *FluxBoundary) String() string {
	return fmt.Sprintf("Flux Boundary at %s with rate %g", b.patch, b.rate)
}
