package boundary

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/geometry"
	"github.com/pthm-cable/rdboundary/particles"
	"github.com/pthm-cable/rdboundary/rng"
)

// RemoveCorrected removes molecules the corrector reports as crossed and keeps
// their final positions in a per-species buffer until drained.
type RemoveCorrected struct {
	base
	*Corrector
	removed [][]r3.Vec
}

// NewRemoveCorrected creates a diffusion-corrected removal boundary on g.
func NewRemoveCorrected(g geometry.Geometry, stream *rng.Stream, opts ...Option) *RemoveCorrected {
	return &RemoveCorrected{
		base:      newBase(g, opts),
		Corrector: NewCorrector(g, stream),
	}
}

// AddSpecies registers s and returns its species index.
func (b *RemoveCorrected) AddSpecies(s *particles.Species) int {
	si := b.Corrector.AddSpecies(s)
	b.removed = append(b.removed, nil)
	return si
}

func (b *RemoveCorrected) Kind() Kind { return KindRemoveCorrected }

func (b *RemoveCorrected) Apply(dt float64) error {
	b.mustBeOpen()
	for si := range b.removed {
		s := b.Corrector.Species(si)
		if n := len(b.removed[si]); n > 0 {
			slog.Debug("removed molecules overwritten before drain",
				"boundary", b.Kind().String(),
				"species", s.Name,
				"count", n,
			)
		}

		buf := b.removed[si][:0]
		var doomed []particles.Handle
		for p := 0; p < b.Len(si); p++ {
			if !b.ParticleCrossedBoundary(p, si) {
				continue
			}
			h := b.Handle(p, si)
			buf = append(buf, s.Position(h))
			doomed = append(doomed, h)
		}
		s.Remove(doomed...)
		b.removed[si] = buf
		b.report(KindRemoveCorrected, s, ActionRemoved, len(doomed))
	}
	return nil
}

// Removed returns the molecules removed from species si by the last Apply.
// The slice is reused by the next Apply.
func (b *RemoveCorrected) Removed(si int) []r3.Vec {
	b.Corrector.record(si)
	return b.removed[si]
}

// DrainRemoved hands the removed molecules of species si to the caller and
// clears the buffer.
func (b *RemoveCorrected) DrainRemoved(si int) []r3.Vec {
	b.Corrector.record(si)
	out := b.removed[si]
	b.removed[si] = nil
	return out
}

func (b *RemoveCorrected) String() string {
	return fmt.Sprintf("Remove Boundary With Correction at %s", b.geometry)
}

// JumpCorrected translates molecules the corrector reports as crossed by a
// fixed vector.
type JumpCorrected struct {
	base
	*Corrector
	jumpBy r3.Vec
}

// NewJumpCorrected creates a diffusion-corrected periodic boundary on g.
func NewJumpCorrected(g geometry.Geometry, jumpBy r3.Vec, stream *rng.Stream, opts ...Option) *JumpCorrected {
	return &JumpCorrected{
		base:      newBase(g, opts),
		Corrector: NewCorrector(g, stream),
		jumpBy:    jumpBy,
	}
}

func (b *JumpCorrected) Kind() Kind { return KindJumpCorrected }

func (b *JumpCorrected) Apply(dt float64) error {
	b.mustBeOpen()
	for si := 0; si < b.NumSpecies(); si++ {
		s := b.Corrector.Species(si)
		n := 0
		for p := 0; p < b.Len(si); p++ {
			if !b.ParticleCrossedBoundary(p, si) {
				continue
			}
			s.Translate(b.Handle(p, si), b.jumpBy)
			b.markMoved(p, si)
			n++
		}
		b.report(KindJumpCorrected, s, ActionJumped, n)
	}
	return nil
}

// JumpBy returns the translation applied to crossed molecules.
func (b *JumpCorrected) JumpBy() r3.Vec {
	return b.jumpBy
}

func (b *JumpCorrected) String() string {
	return fmt.Sprintf("Jump Boundary With Correction at %s", b.geometry)
}
