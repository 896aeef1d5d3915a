package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for one species over a window.
type WindowStats struct {
	WindowStartStep int     `csv:"-"`
	WindowEndStep   int     `csv:"window_end"`
	SimTime         float64 `csv:"sim_time"`
	Species         string  `csv:"species"`

	// Counts at window end
	Molecules   int `csv:"molecules"`
	Compartment int `csv:"compartment"`

	// Boundary events during window
	Removed   int `csv:"removed"`
	Reflected int `csv:"reflected"`
	Jumped    int `csv:"jumped"`
	Injected  int `csv:"injected"`
	Converted int `csv:"converted"`
	Released  int `csv:"released"`
	Dropped   int `csv:"dropped"`

	// Spatial distribution (sampled at window end)
	CentroidX float64 `csv:"centroid_x"`
	CentroidY float64 `csv:"centroid_y"`
	CentroidZ float64 `csv:"centroid_z"`
	SpreadP50 float64 `csv:"spread_p50"` // distance from centroid
	SpreadP90 float64 `csv:"spread_p90"`
	SpreadStd float64 `csv:"spread_std"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Spatial summarises a molecule cloud.
type Spatial struct {
	Centroid      r3.Vec
	P50, P90, Std float64
}

// ComputeSpatialStats returns the centroid and the distribution of distances from it.
func ComputeSpatialStats(rs []r3.Vec) Spatial {
	if len(rs) == 0 {
		return Spatial{}
	}

	xs := make([]float64, len(rs))
	ys := make([]float64, len(rs))
	zs := make([]float64, len(rs))
	for i, r := range rs {
		xs[i], ys[i], zs[i] = r.X, r.Y, r.Z
	}
	c := r3.Vec{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil), Z: stat.Mean(zs, nil)}

	dist := xs[:0]
	for _, r := range rs {
		dist = append(dist, r3.Norm(r3.Sub(r, c)))
	}
	var std float64
	if len(dist) > 1 {
		std = stat.StdDev(dist, nil)
	}
	sort.Float64s(dist)

	return Spatial{
		Centroid: c,
		P50:      Percentile(dist, 0.50),
		P90:      Percentile(dist, 0.90),
		Std:      std,
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStartStep),
		slog.Int("window_end", s.WindowEndStep),
		slog.Float64("sim_time", s.SimTime),
		slog.String("species", s.Species),
		slog.Int("molecules", s.Molecules),
		slog.Int("compartment", s.Compartment),
		slog.Int("removed", s.Removed),
		slog.Int("reflected", s.Reflected),
		slog.Int("jumped", s.Jumped),
		slog.Int("injected", s.Injected),
		slog.Int("converted", s.Converted),
		slog.Int("released", s.Released),
		slog.Int("dropped", s.Dropped),
		slog.Float64("centroid_x", s.CentroidX),
		slog.Float64("centroid_y", s.CentroidY),
		slog.Float64("centroid_z", s.CentroidZ),
		slog.Float64("spread_p50", s.SpreadP50),
		slog.Float64("spread_p90", s.SpreadP90),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndStep,
		"sim_time", s.SimTime,
		"species", s.Species,
		"molecules", s.Molecules,
		"compartment", s.Compartment,
		"removed", s.Removed,
		"reflected", s.Reflected,
		"jumped", s.Jumped,
		"injected", s.Injected,
		"converted", s.Converted,
		"released", s.Released,
		"dropped", s.Dropped,
		"spread_p50", s.SpreadP50,
	)
}
