package boundary

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/particles"
	"github.com/pthm-cable/rdboundary/rng"
)

func TestKindNames(t *testing.T) {
	kinds := []Kind{
		KindDestroy, KindJump, KindReflect, KindRemoveCorrected,
		KindJumpCorrected, KindFlux, KindCouplingMtoC, KindCouplingCtoM,
	}
	for _, k := range kinds {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, got)
	}

	_, err := ParseKind("absorb")
	require.ErrorIs(t, err, ErrUnknownKind)
	require.True(t, KindCouplingMtoC.Corrected())
	require.False(t, KindCouplingCtoM.Corrected())
}

func TestDestroyRemovesOutside(t *testing.T) {
	_, s := newSpecies(t, 1.0, 0.5, -0.1, 0.2, -3)
	obs := newCountingObserver()
	b := NewDestroyBoundary(wall, WithObserver(obs))
	b.AddSpecies(s)

	require.NoError(t, b.Apply(0.01))
	require.Equal(t, 2, s.Len())
	for _, r := range s.Positions() {
		require.True(t, geometry.IsInterior(wall, r))
	}
	require.Equal(t, 2, obs.counts[ActionRemoved])
}

func TestReflectLeavesNoMoleculeOutside(t *testing.T) {
	box, err := geometry.NewBox(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	sphere, err := geometry.NewSphere(r3.Vec{}, 1, false)
	require.NoError(t, err)

	tests := []struct {
		name string
		g    geometry.Geometry
		pts  []r3.Vec
	}{
		{"plane", wall, []r3.Vec{{X: -0.3}, {X: -0.01, Y: 4}, {X: 0.2}}},
		{"box face", box, []r3.Vec{{X: 1.2, Y: 0.5, Z: 0.5}, {X: 0.5, Y: -0.1, Z: 0.5}}},
		{"box corner", box, []r3.Vec{{X: 1.1, Y: 1.2, Z: -0.05}}},
		{"sphere", sphere, []r3.Vec{{X: 1.3}, {Y: -1.05, Z: 0.2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := particles.NewStore()
			s, err := st.NewSpecies("A", 1)
			require.NoError(t, err)
			for _, r := range tt.pts {
				s.Add(r)
			}
			b := NewReflectiveBoundary(tt.g)
			b.AddSpecies(s)
			require.NoError(t, b.Apply(0.01))
			for _, r := range s.Positions() {
				require.GreaterOrEqual(t, tt.g.DistanceToBoundary(r), -1e-12, "position %v", r)
			}
			require.Equal(t, len(tt.pts), s.Len())
		})
	}
}

func TestReflectMirrorsAcrossPlane(t *testing.T) {
	got := Reflect(wall, r3.Vec{X: -0.25, Y: 1, Z: 2})
	require.InDelta(t, 0.25, got.X, 1e-12)
	require.Equal(t, 1.0, got.Y)
	require.Equal(t, 2.0, got.Z)
}

func TestJumpWrapsPeriodically(t *testing.T) {
	// Domain is x < 1; escaped molecules wrap back by one period.
	right := geometry.AxisPlane(0, 1, -1)
	_, s := newSpecies(t, 1.0, 0.5, 1.0001, 1.3, 1.99)
	b := NewJumpBoundary(right, r3.Vec{X: -1})
	b.AddSpecies(s)

	require.NoError(t, b.Apply(0.01))
	want := []float64{0.5, 0.0001, 0.3, 0.99}
	for i, r := range s.Positions() {
		require.True(t, geometry.IsInterior(right, r))
		require.InDelta(t, want[i], r.X, 1e-9)
	}
}

func TestRemoveCorrectedConservesMolecules(t *testing.T) {
	const n = 2000
	_, s := newSpecies(t, 1.0)
	src := rng.New(12, 1)
	for i := 0; i < n; i++ {
		s.Add(r3.Vec{X: src.UniformBound(0.3)})
	}

	obs := newCountingObserver()
	b := NewRemoveCorrected(wall, rng.New(12, 2), WithObserver(obs))
	si := b.AddSpecies(s)

	const dt = 0.01
	b.TimestepInitialise(dt)
	step := math.Sqrt(2 * s.D * dt)
	for i := 0; i < s.Len(); i++ {
		s.Translate(s.Handle(i), r3.Vec{X: step * src.Normal()})
	}
	require.NoError(t, b.Apply(dt))
	b.TimestepFinalise()

	removed := b.Removed(si)
	require.NotEmpty(t, removed)
	require.Equal(t, n, s.Len()+len(removed))
	require.Equal(t, len(removed), obs.counts[ActionRemoved])

	drained := b.DrainRemoved(si)
	require.Len(t, drained, len(removed))
	require.Empty(t, b.Removed(si))
}

func TestRemoveCorrectedBufferRepopulatedEachStep(t *testing.T) {
	_, s := newSpecies(t, 1.0, 0.1, 0.2, 0.3)
	b := NewRemoveCorrected(wall, rng.New(13, 1))
	si := b.AddSpecies(s)

	b.TimestepInitialise(0.01)
	moveAllTo(s, -0.1)
	require.NoError(t, b.Apply(0.01))
	b.TimestepFinalise()
	require.Len(t, b.Removed(si), 3)

	s.Add(r3.Vec{X: 0.5})
	b.TimestepInitialise(0.01)
	require.NoError(t, b.Apply(0.01))
	b.TimestepFinalise()
	require.Empty(t, b.Removed(si), "buffer holds only this step's removals")
}

func TestCorrectedApplyOutsideStepPanics(t *testing.T) {
	_, s := newSpecies(t, 1.0, 0.1)
	b := NewRemoveCorrected(wall, rng.New(14, 1))
	b.AddSpecies(s)
	require.Panics(t, func() { _ = b.Apply(0.01) })
}

func TestJumpCorrected(t *testing.T) {
	right := geometry.AxisPlane(0, 1, -1)
	_, s := newSpecies(t, 1.0, 0.95, 0.2)
	obs := newCountingObserver()
	b := NewJumpCorrected(right, r3.Vec{X: -1}, rng.New(15, 1), WithObserver(obs))
	si := b.AddSpecies(s)

	b.TimestepInitialise(0.01)
	s.SetPosition(s.Handle(0), r3.Vec{X: 1.05})
	require.NoError(t, b.Apply(0.01))
	b.TimestepFinalise()

	require.Equal(t, 2, s.Len())
	require.InDelta(t, 0.05, s.Position(s.Handle(0)).X, 1e-12)
	require.Equal(t, 1, obs.counts[ActionJumped])

	b.TimestepInitialise(0.01)
	require.InDelta(t, 0.95, b.PrevDistance(0, si), 1e-12, "jumped molecule re-measured at its new position")
	b.TimestepFinalise()
}

func TestBoundariesSharingSpecies(t *testing.T) {
	_, s := newSpecies(t, 1.0, 0.1, 0.2, 0.3, 0.4)
	first := NewRemoveCorrected(wall, rng.New(16, 1))
	second := NewJumpCorrected(wall, r3.Vec{X: 1}, rng.New(16, 2))
	first.AddSpecies(s)
	second.AddSpecies(s)

	first.TimestepInitialise(0.01)
	second.TimestepInitialise(0.01)
	moveAllTo(s, -0.01)
	require.NoError(t, first.Apply(0.01))
	require.NotPanics(t, func() { require.NoError(t, second.Apply(0.01)) })
	first.TimestepFinalise()
	second.TimestepFinalise()

	require.Equal(t, 0, s.Len())
	require.Len(t, first.Removed(0), 4)
}

func TestFluxInjectsOnPatch(t *testing.T) {
	patch, err := geometry.NewPatch(r3.Vec{Z: 1}, r3.Vec{X: 2}, r3.Vec{Y: 3})
	require.NoError(t, err)
	_, s := newSpecies(t, 1.0)

	obs := newCountingObserver()
	b, err := NewFluxBoundary(patch, 500, rng.New(17, 1), WithObserver(obs))
	require.NoError(t, err)
	b.AddSpecies(s)

	const steps, dt = 200, 0.01
	for i := 0; i < steps; i++ {
		require.NoError(t, b.Apply(dt))
	}

	want := 500 * dt * steps
	require.InDelta(t, want, float64(s.Len()), 5*math.Sqrt(want))
	require.Equal(t, s.Len(), obs.counts[ActionInjected])
	for _, r := range s.Positions() {
		require.True(t, patch.Contains(r, 1e-9), "molecule %v off patch", r)
	}
}

func TestFluxRejectsBadParameters(t *testing.T) {
	good, err := geometry.NewPatch(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Y: 1})
	require.NoError(t, err)

	_, err = NewFluxBoundary(geometry.Patch{T1: r3.Vec{X: 1}}, 1, rng.New(1, 1))
	require.ErrorIs(t, err, geometry.ErrDegenerate)

	_, err = NewFluxBoundary(good, -2, rng.New(1, 1))
	require.ErrorIs(t, err, ErrNegativeRate)

	b, err := NewFluxBoundary(good, 0, rng.New(1, 1))
	require.NoError(t, err)
	_, s := newSpecies(t, 1.0)
	b.AddSpecies(s)
	require.NoError(t, b.Apply(1))
	require.Equal(t, 0, s.Len())
}

func TestCouplingMtoCMovesCrossedMolecules(t *testing.T) {
	_, s := newSpecies(t, 1.0, 0.2, 0.3, 0.8, 0.9)
	solver := &fakeSolver{}
	b := NewCouplingMtoC(wall, solver, rng.New(18, 1))
	b.AddSpecies(s, 7)

	b.TimestepInitialise(0.01)
	gone := []particles.Handle{s.Handle(0), s.Handle(1)}
	s.SetPosition(gone[0], r3.Vec{X: -0.05, Y: 1})
	s.SetPosition(gone[1], r3.Vec{X: -0.2, Y: 2})
	require.NoError(t, b.Apply(0.01))
	b.TimestepFinalise()

	require.Len(t, solver.arrivals, 2)
	require.Equal(t, 2, s.Len())
	for _, h := range gone {
		require.False(t, s.Alive(h))
	}
	for i, a := range solver.arrivals {
		require.Equal(t, 7, a.species)
		require.InDelta(t, 0, a.r.X, 1e-12, "arrival projected onto the interface")
		require.Equal(t, float64(i+1), a.r.Y)
	}
}

func TestCouplingMtoCReportsSolverErrors(t *testing.T) {
	_, s := newSpecies(t, 1.0, 0.2, 0.3)
	before := s.Len()
	solverErr := errors.New("compartment full")
	solver := &fakeSolver{fail: solverErr}
	obs := newCountingObserver()
	b := NewCouplingMtoC(wall, solver, rng.New(19, 1), WithObserver(obs))
	b.AddSpecies(s, 0)

	b.TimestepInitialise(0.01)
	moveAllTo(s, -0.1)
	err := b.Apply(0.01)
	b.TimestepFinalise()

	require.ErrorIs(t, err, solverErr)
	require.Equal(t, before, s.Len()+len(solver.arrivals), "rejected molecules stay in the particle domain")
	require.Zero(t, obs.counts[ActionConverted])
	for _, r := range s.Positions() {
		require.InDelta(t, 0.1, r.X, 1e-12, "rejected molecule reflected off the interface")
	}

	// The solver recovers; the reflected molecules can convert on a later step.
	solver.fail = nil
	b.TimestepInitialise(0.01)
	moveAllTo(s, -0.05)
	require.NoError(t, b.Apply(0.01))
	b.TimestepFinalise()
	require.Equal(t, before, s.Len()+len(solver.arrivals))
	require.Len(t, solver.arrivals, before)
}

func TestCouplingMtoCKeepsMoleculesOnPartialFailure(t *testing.T) {
	_, s := newSpecies(t, 1.0, 0.2, 0.3, 0.4)
	before := s.Len()
	solver := &selectiveSolver{}
	b := NewCouplingMtoC(wall, solver, rng.New(22, 1))
	b.AddSpecies(s, 0)

	b.TimestepInitialise(0.01)
	for i, h := range s.Handles() {
		s.SetPosition(h, r3.Vec{X: -0.1, Y: float64(i)})
	}
	err := b.Apply(0.01)
	b.TimestepFinalise()

	require.Error(t, err)
	require.Len(t, solver.accepted, 2)
	require.Equal(t, 1, s.Len())
	require.Equal(t, before, s.Len()+len(solver.accepted))
	require.InDelta(t, 1.0, s.Positions()[0].Y, 1e-12)
}

func TestCouplingCtoMReleasesOneMoleculePerEvent(t *testing.T) {
	face, err := geometry.NewPatch(r3.Vec{}, r3.Vec{Y: 0.1}, r3.Vec{Z: 0.1})
	require.NoError(t, err)

	st, a := newSpecies(t, 1.0)
	other, err := st.NewSpecies("B", 1.0)
	require.NoError(t, err)

	solver := &fakeSolver{}
	for i := 0; i < 25; i++ {
		solver.events = append(solver.events, OutfluxEvent{Species: 0, Time: 0.001 + 0.0003*float64(i), Face: face})
	}
	solver.events = append(solver.events,
		OutfluxEvent{Species: 1, Time: 0.005, Face: face},
		OutfluxEvent{Species: 9, Time: 0.005, Face: face},
		OutfluxEvent{Species: 0, Time: 0.5, Face: face},
	)

	obs := newCountingObserver()
	b := NewCouplingCtoM(wall, solver, rng.New(20, 1), WithBoundaryOptions(WithObserver(obs)))
	b.AddSpecies(a, 0)
	b.AddSpecies(other, 1)

	require.NoError(t, b.Apply(0.01))
	require.Equal(t, 25, a.Len())
	require.Equal(t, 1, other.Len())
	require.Equal(t, 1, obs.counts[ActionDropped])
	for _, r := range a.Positions() {
		require.True(t, face.Contains(r, 1e-12), "molecule %v off face", r)
	}
	require.Equal(t, [2]float64{0, 0.01}, solver.queries[0])
	require.InDelta(t, 0.01, b.Clock(), 1e-15)
}

func TestCouplingCtoMStepChangeRescales(t *testing.T) {
	face, err := geometry.NewPatch(r3.Vec{}, r3.Vec{Y: 1}, r3.Vec{Z: 1})
	require.NoError(t, err)
	_, s := newSpecies(t, 2.0)

	solver := &fakeSolver{events: []OutfluxEvent{
		{Species: 0, Time: 0.011, Face: face},
	}}
	b := NewCouplingCtoM(wall, solver, rng.New(21, 1), WithCatchUp(true))
	si := b.AddSpecies(s, 0)

	require.NoError(t, b.Apply(0.01))
	require.InDelta(t, math.Sqrt(2*2.0*0.01), b.CatchUpScale(si), 1e-15)

	require.NoError(t, b.Apply(0.04))
	require.InDelta(t, math.Sqrt(2*2.0*0.04), b.CatchUpScale(si), 1e-15)
	require.InDelta(t, 0.01, solver.queries[1][0], 1e-15)
	require.InDelta(t, 0.05, solver.queries[1][1], 1e-15)

	require.Equal(t, 1, s.Len())
	r := s.Position(s.Handle(0))
	require.GreaterOrEqual(t, r.X, 0.0, "catch-up pushes into the particle domain")
	require.True(t, geometry.IsInterior(wall, r))
}

func TestCouplingCtoMRejectsBadStep(t *testing.T) {
	b := NewCouplingCtoM(wall, &fakeSolver{}, rng.New(22, 1))
	require.ErrorIs(t, b.Apply(0), ErrNonPositiveStep)
	require.ErrorIs(t, b.Apply(-1), ErrNonPositiveStep)
}

func TestDescriptions(t *testing.T) {
	patch, err := geometry.NewPatch(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Y: 1})
	require.NoError(t, err)
	flux, err := NewFluxBoundary(patch, 3, rng.New(1, 1))
	require.NoError(t, err)

	tests := []struct {
		b    Boundary
		want string
	}{
		{NewDestroyBoundary(wall), "Destroy Boundary at plane"},
		{NewReflectiveBoundary(wall), "Reflective Boundary at plane"},
		{NewJumpBoundary(wall, r3.Vec{}), "Jump Boundary at plane"},
		{NewRemoveCorrected(wall, rng.New(1, 1)), "Remove Boundary With Correction at plane"},
		{NewJumpCorrected(wall, r3.Vec{}, rng.New(1, 1)), "Jump Boundary With Correction at plane"},
		{flux, "Flux Boundary at patch"},
		{NewCouplingMtoC(wall, &fakeSolver{}, rng.New(1, 1)), "Coupling Boundary from Molecules to Compartments at plane"},
		{NewCouplingCtoM(wall, &fakeSolver{}, rng.New(1, 1)), "Coupling Boundary from Compartments to Molecules at plane"},
	}
	for _, tt := range tests {
		t.Run(tt.b.Kind().String(), func(t *testing.T) {
			require.Contains(t, tt.b.String(), tt.want)
		})
	}
}
