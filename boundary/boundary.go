// Package boundary implements what happens to molecules at the edge of the
// simulated domain after each Brownian step.
//
// A boundary is one of a closed set of kinds. Corrected kinds share a
// Corrector that compensates for crossings a fixed-timestep walk cannot see.
// The per-step protocol is:
//
//	TimestepInitialise(dt)   // every Stepper, before molecules are displaced
//	... integrator moves molecules ...
//	Apply(dt)                // every boundary, in a fixed order
//	TimestepFinalise()       // every Stepper
package boundary

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/particles"
)

// Kind tags the boundary variant.
type Kind uint8

const (
	KindDestroy Kind = iota
	KindJump
	KindReflect
	KindRemoveCorrected
	KindJumpCorrected
	KindFlux
	KindCouplingMtoC
	KindCouplingCtoM
)

var kindNames = [...]string{
	KindDestroy:         "destroy",
	KindJump:            "jump",
	KindReflect:         "reflect",
	KindRemoveCorrected: "remove_corrected",
	KindJumpCorrected:   "jump_corrected",
	KindFlux:            "flux",
	KindCouplingMtoC:    "coupling_m_to_c",
	KindCouplingCtoM:    "coupling_c_to_m",
}

// ErrUnknownKind is returned by ParseKind for unrecognised names.
var ErrUnknownKind = errors.New("unknown boundary kind")

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind converts a configuration name into a Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownKind)
}

// Corrected reports whether the kind uses the diffusion-crossing corrector.
func (k Kind) Corrected() bool {
	return k == KindRemoveCorrected || k == KindJumpCorrected || k == KindCouplingMtoC
}

// Boundary is implemented only by the types in this package.
type Boundary interface {
	Kind() Kind
	// Apply acts on the molecules of every registered species.
	Apply(dt float64) error
	String() string

	sealed()
}

// Stepper is implemented by boundaries that track molecules across a step.
type Stepper interface {
	TimestepInitialise(dt float64)
	TimestepFinalise()
}

// Action names what a boundary did to molecules.
type Action string

const (
	ActionRemoved   Action = "removed"
	ActionReflected Action = "reflected"
	ActionJumped    Action = "jumped"
	ActionInjected  Action = "injected"
	ActionConverted Action = "converted"
	ActionReleased  Action = "released"
	ActionDropped   Action = "dropped"
)

// Observer receives per-application event counts.
type Observer interface {
	BoundaryEvent(kind Kind, species string, action Action, n int)
}

// Option configures a boundary.
type Option func(*base)

// WithObserver attaches an event observer.
func WithObserver(o Observer) Option {
	return func(b *base) {
		b.observer = o
	}
}

// base carries what every variant shares.
type base struct {
	geometry geometry.Geometry
	observer Observer
}

func newBase(g geometry.Geometry, opts []Option) base {
	b := base{geometry: g}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) report(kind Kind, s *particles.Species, action Action, n int) {
	if n == 0 || b.observer == nil {
		return
	}
	b.observer.BoundaryEvent(kind, s.Name, action, n)
}

func (b *base) sealed() {}

// Geometry returns the geometry the boundary tests against.
func (b *base) Geometry() geometry.Geometry {
	return b.geometry
}

// speciesList is the registration set of uncorrected boundaries.
type speciesList []*particles.Species

func (l *speciesList) add(s *particles.Species) int {
	for _, have := range *l {
		if have == s {
			panic(fmt.Sprintf("boundary: species %q registered twice", s.Name))
		}
	}
	*l = append(*l, s)
	return len(*l) - 1
}
