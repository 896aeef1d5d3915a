package boundary

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/particles"
)

// DestroyBoundary removes every molecule found outside the geometry.
type DestroyBoundary struct {
	base
	species speciesList
}

// NewDestroyBoundary creates a destroy boundary on g.
func NewDestroyBoundary(g geometry.Geometry, opts ...Option) *DestroyBoundary {
	return &DestroyBoundary{base: newBase(g, opts)}
}

// AddSpecies registers s and returns its index.
func (b *DestroyBoundary) AddSpecies(s *particles.Species) int {
	return b.species.add(s)
}

func (b *DestroyBoundary) Kind() Kind { return KindDestroy }

func (b *DestroyBoundary) Apply(dt float64) error {
	for _, s := range b.species {
		n := s.RemoveIf(func(r r3.Vec) bool {
			return !geometry.IsInterior(b.geometry, r)
		})
		b.report(KindDestroy, s, ActionRemoved, n)
	}
	return nil
}

func (b *DestroyBoundary) String() string {
	return fmt.Sprintf("Destroy Boundary at %s", b.geometry)
}

// ReflectiveBoundary mirrors molecules found outside the geometry back across
// the nearest boundary point. No crossing correction is applied: a reflected
// molecule never leaves the domain.
type ReflectiveBoundary struct {
	base
	species speciesList
}

// NewReflectiveBoundary creates a reflective boundary on g.
func NewReflectiveBoundary(g geometry.Geometry, opts ...Option) *ReflectiveBoundary {
	return &ReflectiveBoundary{base: newBase(g, opts)}
}

// AddSpecies registers s and returns its index.
func (b *ReflectiveBoundary) AddSpecies(s *particles.Species) int {
	return b.species.add(s)
}

func (b *ReflectiveBoundary) Kind() Kind { return KindReflect }

func (b *ReflectiveBoundary) Apply(dt float64) error {
	for _, s := range b.species {
		n := 0
		for i := 0; i < s.Len(); i++ {
			h := s.Handle(i)
			r := s.Position(h)
			if geometry.IsInterior(b.geometry, r) {
				continue
			}
			s.SetPosition(h, Reflect(b.geometry, r))
			n++
		}
		b.report(KindReflect, s, ActionReflected, n)
	}
	return nil
}

func (b *ReflectiveBoundary) String() string {
	return fmt.Sprintf("Reflective Boundary at %s", b.geometry)
}

// Reflect mirrors r across the boundary point of g nearest to it.
func Reflect(g geometry.Geometry, r r3.Vec) r3.Vec {
	return r3.Add(r, r3.Scale(2, g.ShortestVectorToBoundary(r)))
}

// JumpBoundary translates molecules found outside the geometry by a fixed
// vector, giving periodic wrap-around. jumpBy must bring any escaped molecule
// back inside in one application.
type JumpBoundary struct {
	base
	species speciesList
	jumpBy  r3.Vec
}

// NewJumpBoundary creates a periodic boundary on g.
func NewJumpBoundary(g geometry.Geometry, jumpBy r3.Vec, opts ...Option) *JumpBoundary {
	return &JumpBoundary{base: newBase(g, opts), jumpBy: jumpBy}
}

// AddSpecies registers s and returns its index.
func (b *JumpBoundary) AddSpecies(s *particles.Species) int {
	return b.species.add(s)
}

// JumpBy returns the translation applied to escaped molecules.
func (b *JumpBoundary) JumpBy() r3.Vec {
	return b.jumpBy
}

func (b *JumpBoundary) Kind() Kind { return KindJump }

func (b *JumpBoundary) Apply(dt float64) error {
	for _, s := range b.species {
		n := 0
		for i := 0; i < s.Len(); i++ {
			h := s.Handle(i)
			if geometry.IsInterior(b.geometry, s.Position(h)) {
				continue
			}
			s.Translate(h, b.jumpBy)
			n++
		}
		b.report(KindJump, s, ActionJumped, n)
	}
	return nil
}

func (b *JumpBoundary) String() string {
	return fmt.Sprintf("Jump Boundary at %s", b.geometry)
}
