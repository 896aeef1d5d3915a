package boundary

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/particles"
	"github.com/pthm-cable/rdboundary/rng"
)

// thresholdSigmas is how many step standard deviations away from the wall a
// molecule may start and still be tested for an unseen crossing.
const thresholdSigmas = 5.0

// CrossingProbability is the probability that a Brownian bridge with
// variance dDt and both endpoints inside (prev, curr > 0) touched the
// boundary in between.
func CrossingProbability(prev, curr, dDt float64) float64 {
	if prev <= 0 || curr <= 0 {
		return 1
	}
	if dDt <= 0 {
		return 0
	}
	return math.Exp(-2 * prev * curr / dDt)
}

// Threshold returns the far-field cutoff distance for diffusion coefficient d
// and step dt.
func Threshold(d, dt float64) float64 {
	return thresholdSigmas * math.Sqrt(2*d*dt)
}

// slot is one molecule's distance record for the current step.
type slot struct {
	handle   particles.Handle
	prev     float64
	curr     float64
	measured bool
	decided  bool
	crossed  bool
	moved    bool
}

type record struct {
	dDt       float64
	threshold float64
	slots     []slot
	ready     bool
}

// Corrector decides per molecule whether a discretised step crossed the
// boundary. Slot indices are molecule indices at TimestepInitialise; they stay
// valid for the whole step because each slot holds a generation-checked handle.
type Corrector struct {
	geom    geometry.Geometry
	rng     *rng.Stream
	species []*particles.Species
	records []*record
	open    bool
}

// NewCorrector creates a corrector for g drawing from stream.
func NewCorrector(g geometry.Geometry, stream *rng.Stream) *Corrector {
	return &Corrector{geom: g, rng: stream}
}

// AddSpecies registers s and returns its species index. The distance record
// is populated on the next TimestepInitialise.
func (c *Corrector) AddSpecies(s *particles.Species) int {
	for _, have := range c.species {
		if have == s {
			panic(fmt.Sprintf("boundary: species %q registered twice", s.Name))
		}
	}
	c.species = append(c.species, s)
	c.records = append(c.records, &record{})
	return len(c.species) - 1
}

// NumSpecies returns the number of registered species.
func (c *Corrector) NumSpecies() int {
	return len(c.species)
}

// Species returns the species registered at index si.
func (c *Corrector) Species(si int) *particles.Species {
	c.record(si)
	return c.species[si]
}

// TimestepInitialise must run before molecules are displaced.
func (c *Corrector) TimestepInitialise(dt float64) {
	if c.open {
		panic("boundary: TimestepInitialise called twice without TimestepFinalise")
	}
	for si, s := range c.species {
		rec := c.records[si]
		rec.dDt = s.D * dt
		rec.threshold = Threshold(s.D, dt)

		if !rec.ready {
			rec.slots = c.measureAll(s)
			rec.ready = true
			continue
		}
		if !aligned(s, rec) {
			slog.Debug("distance record out of step with species, reconciling",
				"species", s.Name,
				"slots", len(rec.slots),
				"molecules", s.Len(),
			)
			c.rebuild(s, rec, func(sl *slot) (float64, bool) { return sl.prev, true })
		}
	}
	c.open = true
}

// TimestepFinalise promotes post-step distances to pre-step distances.
func (c *Corrector) TimestepFinalise() {
	if !c.open {
		panic("boundary: TimestepFinalise called without TimestepInitialise")
	}
	carry := func(sl *slot) (float64, bool) {
		if sl.measured && !sl.moved {
			return sl.curr, true
		}
		return 0, false
	}
	for si, s := range c.species {
		rec := c.records[si]
		if !rec.ready {
			continue
		}
		c.rebuild(s, rec, carry)
	}
	c.open = false
}

// Len returns the number of slots recorded for species si this step.
func (c *Corrector) Len(si int) int {
	return len(c.record(si).slots)
}

// Handle returns the molecule tracked by slot p of species si.
func (c *Corrector) Handle(p, si int) particles.Handle {
	return c.slot(p, si).handle
}

// Constants returns D*dt and the far-field threshold for species si.
func (c *Corrector) Constants(si int) (dDt, threshold float64) {
	rec := c.record(si)
	return rec.dDt, rec.threshold
}

// PrevDistance returns the pre-step distance recorded in slot p of species si.
func (c *Corrector) PrevDistance(p, si int) float64 {
	return c.slot(p, si).prev
}

// ParticleCrossedBoundary reports whether the molecule in slot p of species
// si is to be treated as having crossed this step. The answer is fixed the
// first time it is asked.
func (c *Corrector) ParticleCrossedBoundary(p, si int) bool {
	if !c.open {
		panic("boundary: crossing queried outside of a step")
	}
	sl := c.slot(p, si)
	if sl.decided {
		return sl.crossed
	}
	sl.decided = true

	s := c.species[si]
	if !s.Alive(sl.handle) {
		return false
	}
	sl.curr = c.geom.DistanceToBoundary(s.Position(sl.handle))
	sl.measured = true
	sl.crossed = c.decide(c.records[si], sl.prev, sl.curr)
	return sl.crossed
}

func (c *Corrector) decide(rec *record, prev, curr float64) bool {
	if curr < 0 || prev < 0 {
		return true
	}
	if rec.dDt <= 0 {
		return false
	}
	if prev > rec.threshold {
		return false
	}
	return c.rng.Uniform() < CrossingProbability(prev, curr, rec.dDt)
}

// markMoved forces the slot to be re-measured at finalise.
func (c *Corrector) markMoved(p, si int) {
	c.slot(p, si).moved = true
}

func (c *Corrector) mustBeOpen() {
	if !c.open {
		panic("boundary: Apply called outside TimestepInitialise/TimestepFinalise")
	}
}

func (c *Corrector) record(si int) *record {
	if si < 0 || si >= len(c.records) {
		panic(fmt.Sprintf("boundary: species index %d not registered", si))
	}
	return c.records[si]
}

func (c *Corrector) slot(p, si int) *slot {
	rec := c.record(si)
	if p < 0 || p >= len(rec.slots) {
		panic(fmt.Sprintf("boundary: slot %d out of range for species %q (%d slots)",
			p, c.species[si].Name, len(rec.slots)))
	}
	return &rec.slots[p]
}

func (c *Corrector) measureAll(s *particles.Species) []slot {
	slots := make([]slot, s.Len())
	for i := range slots {
		h := s.Handle(i)
		slots[i] = slot{handle: h, prev: c.geom.DistanceToBoundary(s.Position(h))}
	}
	return slots
}

// rebuild realigns rec with the live molecules of s. carry supplies the next
// pre-step distance of a surviving slot; molecules without one are measured.
func (c *Corrector) rebuild(s *particles.Species, rec *record, carry func(*slot) (float64, bool)) {
	if aligned(s, rec) {
		for i := range rec.slots {
			sl := &rec.slots[i]
			prev, ok := carry(sl)
			if !ok {
				prev = c.geom.DistanceToBoundary(s.Position(sl.handle))
			}
			*sl = slot{handle: sl.handle, prev: prev}
		}
		return
	}

	old := make(map[particles.Handle]int, len(rec.slots))
	for i := range rec.slots {
		old[rec.slots[i].handle] = i
	}
	slots := make([]slot, s.Len())
	for i := range slots {
		h := s.Handle(i)
		slots[i].handle = h
		if j, ok := old[h]; ok {
			if prev, ok := carry(&rec.slots[j]); ok {
				slots[i].prev = prev
				continue
			}
		}
		slots[i].prev = c.geom.DistanceToBoundary(s.Position(h))
	}
	rec.slots = slots
}

func aligned(s *particles.Species, rec *record) bool {
	if len(rec.slots) != s.Len() {
		return false
	}
	for i := range rec.slots {
		if rec.slots[i].handle != s.Handle(i) {
			return false
		}
	}
	return true
}
