package boundary

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/particles"
)

// wall is the plane x = 0 with the particle domain at x > 0.
var wall = geometry.AxisPlane(0, 0, 1)

func newSpecies(t *testing.T, d float64, xs ...float64) (*particles.Store, *particles.Species) {
	t.Helper()
	st := particles.NewStore()
	s, err := st.NewSpecies("A", d)
	require.NoError(t, err)
	for _, x := range xs {
		s.Add(r3.Vec{X: x})
	}
	return st, s
}

func repeat(x float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = x
	}
	return out
}

// moveAllTo sets the x coordinate of every molecule of s.
func moveAllTo(s *particles.Species, x float64) {
	for i := 0; i < s.Len(); i++ {
		h := s.Handle(i)
		r := s.Position(h)
		r.X = x
		s.SetPosition(h, r)
	}
}

type arrival struct {
	species int
	r       r3.Vec
}

type fakeSolver struct {
	arrivals []arrival
	events   []OutfluxEvent
	queries  [][2]float64
	fail     error
}

func (f *fakeSolver) AddArrival(species int, r r3.Vec) error {
	if f.fail != nil {
		return f.fail
	}
	f.arrivals = append(f.arrivals, arrival{species: species, r: r})
	return nil
}

func (f *fakeSolver) Outflux(since, until float64) []OutfluxEvent {
	f.queries = append(f.queries, [2]float64{since, until})
	var out []OutfluxEvent
	for _, ev := range f.events {
		if ev.Time > since && ev.Time <= until {
			out = append(out, ev)
		}
	}
	return out
}

type countingObserver struct {
	counts map[Action]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{counts: make(map[Action]int)}
}

func (o *countingObserver) BoundaryEvent(kind Kind, species string, action Action, n int) {
	o.counts[action] += n
}

// selectiveSolver rejects arrivals with y in [0.5, 1.5).
type selectiveSolver struct {
	accepted []r3.Vec
}

func (f *selectiveSolver) AddArrival(species int, r r3.Vec) error {
	if r.Y >= 0.5 && r.Y < 1.5 {
		return errors.New("outside grid")
	}
	f.accepted = append(f.accepted, r)
	return nil
}

func (f *selectiveSolver) Outflux(since, until float64) []OutfluxEvent {
	return nil
}
