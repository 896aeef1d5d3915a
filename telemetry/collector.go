// Package telemetry tracks boundary events, window statistics and step timing.
package telemetry

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/rdboundary/boundary"
)

// Sample is the state of one species at the end of a window, supplied by the caller.
type Sample struct {
	Species     string
	Positions   []r3.Vec
	Compartment int
}

// Collector accumulates boundary events within step windows and produces WindowStats.
// It implements boundary.Observer.
type Collector struct {
	windowSteps int
	dt          float64

	windowStartStep int
	events          map[string]map[boundary.Action]int
}

// NewCollector creates a new stats collector.
// windowSteps: how many steps each window lasts
// dt: simulated time per step
func NewCollector(windowSteps int, dt float64) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{
		windowSteps: windowSteps,
		dt:          dt,
		events:      make(map[string]map[boundary.Action]int),
	}
}

// BoundaryEvent implements boundary.Observer.
func (c *Collector) BoundaryEvent(_ boundary.Kind, species string, action boundary.Action, n int) {
	m, ok := c.events[species]
	if !ok {
		m = make(map[boundary.Action]int)
		c.events[species] = m
	}
	m[action] += n
}

// Count returns the events of one action for species in the current window.
func (c *Collector) Count(species string, action boundary.Action) int {
	return c.events[species][action]
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(step int) bool {
	return step-c.windowStartStep >= c.windowSteps
}

// Flush produces one WindowStats per sample and resets counters for the next window.
func (c *Collector) Flush(step int, samples []Sample) []WindowStats {
	out := make([]WindowStats, 0, len(samples))
	for _, s := range samples {
		ev := c.events[s.Species]
		sp := ComputeSpatialStats(s.Positions)
		out = append(out, WindowStats{
			WindowStartStep: c.windowStartStep,
			WindowEndStep:   step,
			SimTime:         float64(step) * c.dt,
			Species:         s.Species,

			Molecules:   len(s.Positions),
			Compartment: s.Compartment,

			Removed:   ev[boundary.ActionRemoved],
			Reflected: ev[boundary.ActionReflected],
			Jumped:    ev[boundary.ActionJumped],
			Injected:  ev[boundary.ActionInjected],
			Converted: ev[boundary.ActionConverted],
			Released:  ev[boundary.ActionReleased],
			Dropped:   ev[boundary.ActionDropped],

			CentroidX: sp.Centroid.X,
			CentroidY: sp.Centroid.Y,
			CentroidZ: sp.Centroid.Z,
			SpreadP50: sp.P50,
			SpreadP90: sp.P90,
			SpreadStd: sp.Std,
		})
	}

	c.windowStartStep = step
	clear(c.events)
	return out
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int {
	return c.windowSteps
}
