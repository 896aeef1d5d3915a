// Package geometry provides the boundary geometries molecules are tested against.
//
// Distances are signed: positive inside the particle domain, negative once a
// molecule has crossed the boundary.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerate is returned when a geometry is constructed from a zero-length
// or otherwise degenerate vector.
var ErrDegenerate = errors.New("degenerate geometry")

// Geometry is the capability every boundary needs.
type Geometry interface {
	// DistanceToBoundary is positive inside the particle domain and negative outside.
	DistanceToBoundary(r r3.Vec) float64
	// ShortestVectorToBoundary points from r to the nearest boundary point.
	ShortestVectorToBoundary(r r3.Vec) r3.Vec
	fmt.Stringer
}

// IsInterior reports whether r lies in the particle domain of g.
func IsInterior(g Geometry, r r3.Vec) bool {
	return g.DistanceToBoundary(r) >= 0
}

// NearestBoundaryPoint projects r onto the boundary of g.
func NearestBoundaryPoint(g Geometry, r r3.Vec) r3.Vec {
	return r3.Add(r, g.ShortestVectorToBoundary(r))
}

// Plane is an infinite plane. The particle domain is the half space the
// normal points into.
type Plane struct {
	Point  r3.Vec
	Normal r3.Vec // unit length
}

// NewPlane creates a plane through point with the given (not necessarily unit) normal.
func NewPlane(point, normal r3.Vec) (Plane, error) {
	if r3.Norm(normal) == 0 {
		return Plane{}, fmt.Errorf("plane normal: %w", ErrDegenerate)
	}
	return Plane{Point: point, Normal: r3.Unit(normal)}, nil
}

// AxisPlane creates a plane perpendicular to axis (0=x, 1=y, 2=z) at coord.
// The particle domain lies on the positive side when dir > 0, negative otherwise.
func AxisPlane(axis int, coord float64, dir int) Plane {
	var p, n r3.Vec
	sign := 1.0
	if dir < 0 {
		sign = -1.0
	}
	switch axis {
	case 0:
		p, n = r3.Vec{X: coord}, r3.Vec{X: sign}
	case 1:
		p, n = r3.Vec{Y: coord}, r3.Vec{Y: sign}
	case 2:
		p, n = r3.Vec{Z: coord}, r3.Vec{Z: sign}
	default:
		panic(fmt.Sprintf("geometry: invalid axis %d", axis))
	}
	return Plane{Point: p, Normal: n}
}

func (p Plane) DistanceToBoundary(r r3.Vec) float64 {
	return r3.Dot(r3.Sub(r, p.Point), p.Normal)
}

func (p Plane) ShortestVectorToBoundary(r r3.Vec) r3.Vec {
	return r3.Scale(-p.DistanceToBoundary(r), p.Normal)
}

func (p Plane) String() string {
	return fmt.Sprintf("plane(point=%s, normal=%s)", formatVec(p.Point), formatVec(p.Normal))
}

// Box is an axis-aligned box. The particle domain is the inside of the box.
type Box struct {
	Min, Max r3.Vec
}

// NewBox creates a box from two opposite corners.
func NewBox(a, b r3.Vec) (Box, error) {
	box := Box{
		Min: r3.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
	if box.Min.X == box.Max.X || box.Min.Y == box.Max.Y || box.Min.Z == box.Max.Z {
		return Box{}, fmt.Errorf("box with zero extent: %w", ErrDegenerate)
	}
	return box, nil
}

func (b Box) clamp(r r3.Vec) r3.Vec {
	return r3.Vec{
		X: math.Min(math.Max(r.X, b.Min.X), b.Max.X),
		Y: math.Min(math.Max(r.Y, b.Min.Y), b.Max.Y),
		Z: math.Min(math.Max(r.Z, b.Min.Z), b.Max.Z),
	}
}

func (b Box) contains(r r3.Vec) bool {
	return r.X >= b.Min.X && r.X <= b.Max.X &&
		r.Y >= b.Min.Y && r.Y <= b.Max.Y &&
		r.Z >= b.Min.Z && r.Z <= b.Max.Z
}

// nearestFace returns the distance to the closest face of the box along with
// the vector from r to it. Only meaningful for interior points.
func (b Box) nearestFace(r r3.Vec) (float64, r3.Vec) {
	best := math.Inf(1)
	var v r3.Vec
	try := func(d float64, dir r3.Vec) {
		if d < best {
			best = d
			v = r3.Scale(d, dir)
		}
	}
	try(r.X-b.Min.X, r3.Vec{X: -1})
	try(b.Max.X-r.X, r3.Vec{X: 1})
	try(r.Y-b.Min.Y, r3.Vec{Y: -1})
	try(b.Max.Y-r.Y, r3.Vec{Y: 1})
	try(r.Z-b.Min.Z, r3.Vec{Z: -1})
	try(b.Max.Z-r.Z, r3.Vec{Z: 1})
	return best, v
}

func (b Box) DistanceToBoundary(r r3.Vec) float64 {
	if b.contains(r) {
		d, _ := b.nearestFace(r)
		return d
	}
	return -r3.Norm(r3.Sub(b.clamp(r), r))
}

func (b Box) ShortestVectorToBoundary(r r3.Vec) r3.Vec {
	if b.contains(r) {
		_, v := b.nearestFace(r)
		return v
	}
	return r3.Sub(b.clamp(r), r)
}

func (b Box) String() string {
	return fmt.Sprintf("box(min=%s, max=%s)", formatVec(b.Min), formatVec(b.Max))
}

// Sphere is a sphere. The particle domain is the inside unless Inverted is set.
type Sphere struct {
	Center   r3.Vec
	Radius   float64
	Inverted bool
}

// NewSphere creates a sphere with a positive radius.
func NewSphere(center r3.Vec, radius float64, inverted bool) (Sphere, error) {
	if radius <= 0 {
		return Sphere{}, fmt.Errorf("sphere radius %v: %w", radius, ErrDegenerate)
	}
	return Sphere{Center: center, Radius: radius, Inverted: inverted}, nil
}

func (s Sphere) DistanceToBoundary(r r3.Vec) float64 {
	d := s.Radius - r3.Norm(r3.Sub(r, s.Center))
	if s.Inverted {
		return -d
	}
	return d
}

func (s Sphere) ShortestVectorToBoundary(r r3.Vec) r3.Vec {
	rel := r3.Sub(r, s.Center)
	if r3.Norm(rel) == 0 {
		return r3.Vec{X: s.Radius}
	}
	surface := r3.Add(s.Center, r3.Scale(s.Radius, r3.Unit(rel)))
	return r3.Sub(surface, r)
}

func (s Sphere) String() string {
	side := "inside"
	if s.Inverted {
		side = "outside"
	}
	return fmt.Sprintf("sphere(center=%s, radius=%g, domain=%s)", formatVec(s.Center), s.Radius, side)
}

func formatVec(v r3.Vec) string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}
