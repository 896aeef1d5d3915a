package diffusion

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/rdboundary/particles"
	"github.com/pthm-cable/rdboundary/rng"
)

func TestStepVariance(t *testing.T) {
	st := particles.NewStore()
	s, err := st.NewSpecies("A", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	const n = 20000
	for i := 0; i < n; i++ {
		s.Add(r3.Vec{})
	}

	in := NewIntegrator(rng.New(1, 1))
	in.AddSpecies(s)
	if moved := in.Step(0.01); moved != n {
		t.Fatalf("moved = %d, want %d", moved, n)
	}

	xs := make([]float64, 0, n)
	for _, r := range s.Positions() {
		xs = append(xs, r.X)
	}
	mean, variance := stat.MeanVariance(xs, nil)
	want := 2 * 0.5 * 0.01
	if math.Abs(mean) > 5*math.Sqrt(want/n) {
		t.Errorf("mean = %v, want ~0", mean)
	}
	// Relative standard error of the sample variance is sqrt(2/n).
	if math.Abs(variance-want) > 5*want*math.Sqrt(2.0/n) {
		t.Errorf("variance = %v, want %v", variance, want)
	}
}

func TestStepSkipsImmobileSpecies(t *testing.T) {
	tests := []struct {
		name string
		d    float64
		dt   float64
	}{
		{"zero diffusion", 0, 0.01},
		{"zero step", 1, 0},
		{"negative step", 1, -0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := particles.NewStore()
			s, err := st.NewSpecies("A", tt.d)
			if err != nil {
				t.Fatal(err)
			}
			s.Add(r3.Vec{X: 1, Y: 2, Z: 3})

			in := NewIntegrator(rng.New(2, 1))
			in.AddSpecies(s)
			if moved := in.Step(tt.dt); moved != 0 {
				t.Errorf("moved = %d, want 0", moved)
			}
			if got := s.Positions()[0]; got != (r3.Vec{X: 1, Y: 2, Z: 3}) {
				t.Errorf("position = %v, want unchanged", got)
			}
		})
	}
}

func TestStepIsReproducible(t *testing.T) {
	run := func() []r3.Vec {
		st := particles.NewStore()
		s, _ := st.NewSpecies("A", 1)
		for i := 0; i < 10; i++ {
			s.Add(r3.Vec{X: float64(i)})
		}
		in := NewIntegrator(rng.New(3, 7))
		in.AddSpecies(s)
		for i := 0; i < 5; i++ {
			in.Step(0.01)
		}
		return s.Positions()
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("position %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}
