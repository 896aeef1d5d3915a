// Package particles stores molecules as ECS entities grouped into species.
//
// Every molecule is an ark entity. Entities are generation-checked, so a
// handle held across a removal reports itself dead instead of aliasing a
// different molecule.
package particles

import (
	"errors"
	"fmt"
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/components"
)

// Handle identifies a molecule.
type Handle = ecs.Entity

var (
	// ErrNegativeDiffusion is returned for a species with D < 0.
	ErrNegativeDiffusion = errors.New("negative diffusion coefficient")
	// ErrDuplicateSpecies is returned when a species name is already taken.
	ErrDuplicateSpecies = errors.New("duplicate species")
)

// Store owns the ECS world all species share.
type Store struct {
	world     *ecs.World
	mapper    *ecs.Map2[components.Position, components.Molecule]
	positions *ecs.Map1[components.Position]
	filter    *ecs.Filter1[components.Molecule]
	species   []*Species
}

// NewStore creates an empty molecule store.
func NewStore() *Store {
	world := ecs.NewWorld()
	return &Store{
		world:     world,
		mapper:    ecs.NewMap2[components.Position, components.Molecule](world),
		positions: ecs.NewMap1[components.Position](world),
		filter:    ecs.NewFilter1[components.Molecule](world),
	}
}

// NewSpecies registers a species with diffusion coefficient d.
func (st *Store) NewSpecies(name string, d float64) (*Species, error) {
	if d < 0 || math.IsNaN(d) {
		return nil, fmt.Errorf("species %q: %w", name, ErrNegativeDiffusion)
	}
	if _, ok := st.Lookup(name); ok {
		return nil, fmt.Errorf("species %q: %w", name, ErrDuplicateSpecies)
	}
	s := &Species{
		Name:  name,
		D:     d,
		id:    uint16(len(st.species)),
		store: st,
	}
	st.species = append(st.species, s)
	return s, nil
}

// Species returns all registered species in registration order.
func (st *Store) Species() []*Species {
	return st.species
}

// Lookup finds a species by name.
func (st *Store) Lookup(name string) (*Species, bool) {
	for _, s := range st.species {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Census counts live molecules per species id by scanning the world.
func (st *Store) Census() map[uint16]int {
	counts := make(map[uint16]int, len(st.species))
	query := st.filter.Query()
	for query.Next() {
		m := query.Get()
		counts[m.Species]++
	}
	return counts
}

// Species is an ordered collection of molecules sharing a diffusion coefficient.
type Species struct {
	Name string
	D    float64

	id      uint16
	store   *Store
	handles []Handle
}

// ID returns the species index within its store.
func (s *Species) ID() uint16 {
	return s.id
}

// Len returns the number of live molecules.
func (s *Species) Len() int {
	return len(s.handles)
}

// Handle returns the handle of the i-th molecule.
func (s *Species) Handle(i int) Handle {
	return s.handles[i]
}

// Handles returns a copy of the ordered handle list.
func (s *Species) Handles() []Handle {
	out := make([]Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

// Alive reports whether h still refers to a molecule.
func (s *Species) Alive(h Handle) bool {
	return s.store.world.Alive(h)
}

// Add inserts a molecule at r and returns its handle.
func (s *Species) Add(r r3.Vec) Handle {
	pos := components.PositionOf(r)
	mol := components.Molecule{Species: s.id}
	h := s.store.mapper.NewEntity(&pos, &mol)
	s.handles = append(s.handles, h)
	return h
}

// Position returns the position of a live molecule. Stale handles panic.
func (s *Species) Position(h Handle) r3.Vec {
	return s.mustGet(h).Vec()
}

// SetPosition moves a live molecule.
func (s *Species) SetPosition(h Handle, r r3.Vec) {
	*s.mustGet(h) = components.PositionOf(r)
}

// Translate displaces a live molecule by dr.
func (s *Species) Translate(h Handle, dr r3.Vec) {
	p := s.mustGet(h)
	*p = components.PositionOf(r3.Add(p.Vec(), dr))
}

func (s *Species) mustGet(h Handle) *components.Position {
	if !s.store.world.Alive(h) {
		panic(fmt.Sprintf("particles: stale handle in species %q", s.Name))
	}
	return s.store.positions.Get(h)
}

// Positions returns a snapshot of all molecule positions in order.
func (s *Species) Positions() []r3.Vec {
	out := make([]r3.Vec, len(s.handles))
	for i, h := range s.handles {
		out[i] = s.store.positions.Get(h).Vec()
	}
	return out
}

// Remove deletes the given molecules, keeping the order of the rest.
// Handles that do not belong to this species are ignored.
// Returns the number of molecules removed.
func (s *Species) Remove(hs ...Handle) int {
	if len(hs) == 0 {
		return 0
	}
	doomed := make(map[Handle]struct{}, len(hs))
	for _, h := range hs {
		doomed[h] = struct{}{}
	}

	kept := s.handles[:0]
	removed := 0
	for _, h := range s.handles {
		if _, ok := doomed[h]; ok {
			s.store.world.RemoveEntity(h)
			removed++
			continue
		}
		kept = append(kept, h)
	}
	s.handles = kept
	return removed
}

// RemoveIf deletes every molecule whose position satisfies pred.
func (s *Species) RemoveIf(pred func(r r3.Vec) bool) int {
	var doomed []Handle
	for _, h := range s.handles {
		if pred(s.store.positions.Get(h).Vec()) {
			doomed = append(doomed, h)
		}
	}
	return s.Remove(doomed...)
}

// Each calls fn for every molecule in order. fn must not add or remove molecules.
func (s *Species) Each(fn func(h Handle, r r3.Vec)) {
	for _, h := range s.handles {
		fn(h, s.store.positions.Get(h).Vec())
	}
}
