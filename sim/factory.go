package sim

import (
	"fmt"

	"github.com/pthm-cable/rdboundary/boundary"
	"github.com/pthm-cable/rdboundary/compartment"
	"github.com/pthm-cable/rdboundary/config"
	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/rng"
)

// Stream ids. Boundary i draws from boundaryStreamBase+i.
const (
	streamPlacement uint64 = iota + 1
	streamIntegrator
	streamCompartments

	boundaryStreamBase uint64 = 100
)

// buildGeometry creates the surface described by gc.
func buildGeometry(gc config.GeometryConfig) (geometry.Geometry, error) {
	switch gc.Type {
	case "plane":
		return geometry.NewPlane(gc.Point.R3(), gc.Normal.R3())
	case "box":
		return geometry.NewBox(gc.Min.R3(), gc.Max.R3())
	case "sphere":
		return geometry.NewSphere(gc.Center.R3(), gc.Radius, gc.Inverted)
	default:
		return nil, fmt.Errorf("geometry type %q: %w", gc.Type, geometry.ErrDegenerate)
	}
}

// buildCompartments creates the compartment layer and fills it.
func (s *Simulation) buildCompartments(cc config.CompartmentsConfig) error {
	grid, err := compartment.NewGrid(compartment.Layout{
		Origin: cc.Origin.R3(),
		U:      cc.U.R3(),
		V:      cc.V.R3(),
		H:      cc.CellSize,
		NU:     cc.NU,
		NV:     cc.NV,
	}, rng.New(s.seed, streamCompartments))
	if err != nil {
		return err
	}
	for _, sc := range cc.Species {
		id := grid.AddSpecies(sc.Name, sc.Diffusion, sc.Supply)
		if err := grid.Fill(id, sc.InitialCount); err != nil {
			return err
		}
	}
	s.grid = grid
	return nil
}

// buildBoundary creates boundary i and registers its species.
func (s *Simulation) buildBoundary(i int, bc config.BoundaryConfig) (boundary.Boundary, error) {
	kind, err := boundary.ParseKind(bc.Kind)
	if err != nil {
		return nil, err
	}
	stream := rng.New(s.seed, boundaryStreamBase+uint64(i))
	opts := []boundary.Option{boundary.WithObserver(s.observer)}

	var g geometry.Geometry
	if kind != boundary.KindFlux {
		if g, err = buildGeometry(bc.Geometry); err != nil {
			return nil, err
		}
	}

	species, err := s.lookupSpecies(bc.Species)
	if err != nil {
		return nil, err
	}

	switch kind {
	case boundary.KindDestroy:
		b := boundary.NewDestroyBoundary(g, opts...)
		for _, sp := range species {
			b.AddSpecies(sp)
		}
		return b, nil

	case boundary.KindJump:
		b := boundary.NewJumpBoundary(g, bc.JumpBy.R3(), opts...)
		for _, sp := range species {
			b.AddSpecies(sp)
		}
		return b, nil

	case boundary.KindReflect:
		b := boundary.NewReflectiveBoundary(g, opts...)
		for _, sp := range species {
			b.AddSpecies(sp)
		}
		return b, nil

	case boundary.KindRemoveCorrected:
		b := boundary.NewRemoveCorrected(g, stream, opts...)
		for _, sp := range species {
			b.AddSpecies(sp)
		}
		s.absorbers = append(s.absorbers, b)
		return b, nil

	case boundary.KindJumpCorrected:
		b := boundary.NewJumpCorrected(g, bc.JumpBy.R3(), stream, opts...)
		for _, sp := range species {
			b.AddSpecies(sp)
		}
		return b, nil

	case boundary.KindFlux:
		patch, err := geometry.NewPatch(bc.Patch.Origin.R3(), bc.Patch.T1.R3(), bc.Patch.T2.R3())
		if err != nil {
			return nil, err
		}
		b, err := boundary.NewFluxBoundary(patch, bc.Rate, stream, opts...)
		if err != nil {
			return nil, err
		}
		for _, sp := range species {
			b.AddSpecies(sp)
		}
		return b, nil

	case boundary.KindCouplingMtoC:
		if s.grid == nil {
			return nil, fmt.Errorf("%s without compartments", kind)
		}
		b := boundary.NewCouplingMtoC(g, s.grid, stream, opts...)
		for _, sp := range species {
			id, err := s.compartmentSpecies(sp.Name)
			if err != nil {
				return nil, err
			}
			b.AddSpecies(sp, id)
		}
		return b, nil

	case boundary.KindCouplingCtoM:
		if s.grid == nil {
			return nil, fmt.Errorf("%s without compartments", kind)
		}
		b := boundary.NewCouplingCtoM(g, s.grid, stream,
			boundary.WithCatchUp(bc.CatchUp),
			boundary.WithBoundaryOptions(opts...),
		)
		for _, sp := range species {
			id, err := s.compartmentSpecies(sp.Name)
			if err != nil {
				return nil, err
			}
			b.AddSpecies(sp, id)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%q: %w", bc.Kind, boundary.ErrUnknownKind)
}
