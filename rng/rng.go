// Package rng provides explicitly owned random variate streams.
//
// Every consumer (boundary, integrator, compartment solver) holds its own
// Stream. Streams are derived from a single run seed so a run is reproducible.
package rng

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Stream is a seeded random source. Not safe for concurrent use.
type Stream struct {
	src  rand.Source
	rand *rand.Rand
}

// New creates a stream from a seed and a stream id. Equal (seed, id) pairs
// produce identical sequences.
func New(seed, id uint64) *Stream {
	src := rand.NewPCG(seed, id)
	return &Stream{
		src:  src,
		rand: rand.New(src),
	}
}

// Derive returns an independent child stream.
func (s *Stream) Derive(id uint64) *Stream {
	return New(s.rand.Uint64(), id)
}

// Uniform returns a draw from [0, 1).
func (s *Stream) Uniform() float64 {
	return s.rand.Float64()
}

// UniformBound returns a draw from [0, bound).
func (s *Stream) UniformBound(bound float64) float64 {
	return s.rand.Float64() * bound
}

// Normal returns a standard normal draw.
func (s *Stream) Normal() float64 {
	return s.rand.NormFloat64()
}

// Poisson returns a Poisson distributed count with the given mean.
// Non-positive means yield zero.
func (s *Stream) Poisson(mean float64) int {
	if mean <= 0 {
		return 0
	}
	d := distuv.Poisson{Lambda: mean, Src: s.src}
	return int(d.Rand())
}

// Exponential returns a waiting time for an event process with the given rate.
func (s *Stream) Exponential(rate float64) float64 {
	d := distuv.Exponential{Rate: rate, Src: s.src}
	return d.Rand()
}
