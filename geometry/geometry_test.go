package geometry

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

const eps = 1e-12

func TestPlaneDistance(t *testing.T) {
	p := AxisPlane(0, 1.0, -1) // domain is x < 1

	tests := []struct {
		name string
		r    r3.Vec
		want float64
	}{
		{"inside", r3.Vec{X: 0.25}, 0.75},
		{"on boundary", r3.Vec{X: 1}, 0},
		{"outside", r3.Vec{X: 1.5, Y: 3}, -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.DistanceToBoundary(tt.r); math.Abs(got-tt.want) > eps {
				t.Errorf("DistanceToBoundary(%v) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
}

func TestPlaneShortestVector(t *testing.T) {
	p, err := NewPlane(r3.Vec{Z: 2}, r3.Vec{Z: 5})
	if err != nil {
		t.Fatal(err)
	}
	r := r3.Vec{X: 1, Y: 1, Z: 1.5}
	got := NearestBoundaryPoint(p, r)
	want := r3.Vec{X: 1, Y: 1, Z: 2}
	if r3.Norm(r3.Sub(got, want)) > eps {
		t.Errorf("nearest point = %v, want %v", got, want)
	}
}

func TestNewPlaneZeroNormal(t *testing.T) {
	if _, err := NewPlane(r3.Vec{}, r3.Vec{}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate, got %v", err)
	}
}

func TestBoxDistance(t *testing.T) {
	b, err := NewBox(r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		r    r3.Vec
		want float64
	}{
		{"center", r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, 0.5},
		{"near face", r3.Vec{X: 0.9, Y: 0.5, Z: 0.5}, 0.1},
		{"outside face", r3.Vec{X: 1.2, Y: 0.5, Z: 0.5}, -0.2},
		{"outside corner", r3.Vec{X: 1.3, Y: 1.4, Z: 0.5}, -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.DistanceToBoundary(tt.r); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DistanceToBoundary(%v) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
}

func TestBoxZeroExtent(t *testing.T) {
	if _, err := NewBox(r3.Vec{}, r3.Vec{X: 1, Y: 1}); !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate, got %v", err)
	}
}

func TestSphereSigns(t *testing.T) {
	s, err := NewSphere(r3.Vec{}, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if !IsInterior(s, r3.Vec{X: 0.5}) {
		t.Error("expected point inside sphere to be interior")
	}
	if IsInterior(s, r3.Vec{X: 1.5}) {
		t.Error("expected point outside sphere to be exterior")
	}

	inv := s
	inv.Inverted = true
	if IsInterior(inv, r3.Vec{X: 0.5}) {
		t.Error("inverted sphere: inner point should be exterior")
	}

	got := NearestBoundaryPoint(s, r3.Vec{Y: 2})
	if r3.Norm(r3.Sub(got, r3.Vec{Y: 1})) > eps {
		t.Errorf("nearest point = %v, want (0,1,0)", got)
	}
}

func TestPatch(t *testing.T) {
	p, err := NewPatch(r3.Vec{Z: 1}, r3.Vec{X: 2}, r3.Vec{Y: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(p.Area()-1) > eps {
		t.Errorf("area = %v, want 1", p.Area())
	}
	r := p.At(1.5, 0.25)
	if !p.Contains(r, 1e-9) {
		t.Errorf("expected %v on patch", r)
	}
	if p.Contains(r3.Vec{X: 2.5, Z: 1}, 1e-9) {
		t.Error("point beyond t1 should not be on patch")
	}
	if p.Contains(r3.Vec{X: 1, Z: 1.1}, 1e-9) {
		t.Error("point off plane should not be on patch")
	}
}

func TestNewPatchDegenerate(t *testing.T) {
	tests := []struct {
		name   string
		t1, t2 r3.Vec
	}{
		{"zero t1", r3.Vec{}, r3.Vec{Y: 1}},
		{"zero t2", r3.Vec{X: 1}, r3.Vec{}},
		{"parallel", r3.Vec{X: 1}, r3.Vec{X: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPatch(r3.Vec{}, tt.t1, tt.t2); !errors.Is(err, ErrDegenerate) {
				t.Errorf("expected ErrDegenerate, got %v", err)
			}
		})
	}
}
