package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Patch is a planar parallelogram spanned by two tangent vectors from an
// anchor point. Flux sources and compartment interface faces are patches.
type Patch struct {
	Origin r3.Vec
	T1, T2 r3.Vec
}

// NewPatch validates that both tangents are non-zero and not parallel.
func NewPatch(origin, t1, t2 r3.Vec) (Patch, error) {
	if r3.Norm(t1) == 0 || r3.Norm(t2) == 0 {
		return Patch{}, fmt.Errorf("patch tangent has zero length: %w", ErrDegenerate)
	}
	if r3.Norm(r3.Cross(t1, t2)) == 0 {
		return Patch{}, fmt.Errorf("patch tangents are parallel: %w", ErrDegenerate)
	}
	return Patch{Origin: origin, T1: t1, T2: t2}, nil
}

// Lengths returns |t1| and |t2|.
func (p Patch) Lengths() (float64, float64) {
	return r3.Norm(p.T1), r3.Norm(p.T2)
}

// At maps offsets u in [0, |t1|) and v in [0, |t2|) onto the patch.
func (p Patch) At(u, v float64) r3.Vec {
	r := r3.Add(p.Origin, r3.Scale(u, r3.Unit(p.T1)))
	return r3.Add(r, r3.Scale(v, r3.Unit(p.T2)))
}

// Center returns the centroid of the patch.
func (p Patch) Center() r3.Vec {
	return r3.Add(p.Origin, r3.Scale(0.5, r3.Add(p.T1, p.T2)))
}

// Normal returns the unit normal t1 x t2.
func (p Patch) Normal() r3.Vec {
	return r3.Unit(r3.Cross(p.T1, p.T2))
}

// Area returns the area of the parallelogram.
func (p Patch) Area() float64 {
	return r3.Norm(r3.Cross(p.T1, p.T2))
}

// Contains reports whether r lies on the patch within tol.
func (p Patch) Contains(r r3.Vec, tol float64) bool {
	rel := r3.Sub(r, p.Origin)
	if math.Abs(r3.Dot(rel, p.Normal())) > tol {
		return false
	}
	// Solve rel = a*t1 + b*t2 in the patch plane.
	n := r3.Cross(p.T1, p.T2)
	nn := r3.Dot(n, n)
	a := r3.Dot(r3.Cross(rel, p.T2), n) / nn
	b := r3.Dot(r3.Cross(p.T1, rel), n) / nn
	l1, l2 := p.Lengths()
	ta, tb := tol/l1, tol/l2
	return a >= -ta && a <= 1+ta && b >= -tb && b <= 1+tb
}

func (p Patch) String() string {
	return fmt.Sprintf("patch(origin=%s, t1=%s, t2=%s)", formatVec(p.Origin), formatVec(p.T1), formatVec(p.T2))
}
