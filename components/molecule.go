// Package components defines ECS components for molecules.
package components

import "gonum.org/v1/gonum/spatial/r3"

// Position is a molecule's position in world coordinates.
type Position struct {
	X, Y, Z float64
}

// Vec converts the position to a gonum vector.
func (p Position) Vec() r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// PositionOf converts a gonum vector to a Position.
func PositionOf(v r3.Vec) Position {
	return Position{X: v.X, Y: v.Y, Z: v.Z}
}

// Molecule tags an entity with the species it belongs to.
type Molecule struct {
	Species uint16
}
