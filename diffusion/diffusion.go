// Package diffusion moves molecules by free Brownian motion.
package diffusion

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/particles"
	"github.com/pthm-cable/rdboundary/rng"
)

// Integrator applies r += sqrt(2*D*dt) * N(0,1) per axis.
type Integrator struct {
	rng     *rng.Stream
	species []*particles.Species
}

// NewIntegrator creates an integrator drawing from stream.
func NewIntegrator(stream *rng.Stream) *Integrator {
	return &Integrator{rng: stream}
}

// AddSpecies schedules s for integration.
func (in *Integrator) AddSpecies(s *particles.Species) {
	in.species = append(in.species, s)
}

// Step displaces every scheduled molecule. Returns the number of molecules moved.
func (in *Integrator) Step(dt float64) int {
	if dt <= 0 {
		return 0
	}
	moved := 0
	for _, s := range in.species {
		if s.D == 0 {
			continue
		}
		sigma := math.Sqrt(2 * s.D * dt)
		s.Each(func(h particles.Handle, _ r3.Vec) {
			s.Translate(h, in.Displacement(sigma))
			moved++
		})
	}
	return moved
}

// Displacement draws one isotropic Gaussian step with standard deviation sigma per axis.
func (in *Integrator) Displacement(sigma float64) r3.Vec {
	return r3.Vec{
		X: sigma * in.rng.Normal(),
		Y: sigma * in.rng.Normal(),
		Z: sigma * in.rng.Normal(),
	}
}
