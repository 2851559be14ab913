package pipeline

import (
	"sync/atomic"
)

// Profiler aggregates stage timings across runs of one pipeline.
type Profiler struct {
	RectifyNs     atomic.Int64
	DisparityNs   atomic.Int64
	TriangulateNs atomic.Int64
	FilterNs      atomic.Int64
	Pairs         atomic.Int64
	Points        atomic.Int64
}

// Record adds one finished pair.
func (p *Profiler) Record(t Processing, points int) {
	p.RectifyNs.Add(t.RectifyNs)
	p.DisparityNs.Add(t.DisparityNs)
	p.TriangulateNs.Add(t.TriangulateNs)
	p.FilterNs.Add(t.FilterNs)
	p.Pairs.Add(1)
	p.Points.Add(int64(points))
}

// Snapshot returns cumulative totals in milliseconds and, after the first pair, per-pair means.
func (p *Profiler) Snapshot() map[string]any {
	pairs := p.Pairs.Load()
	stages := map[string]int64{
		"rectify":     p.RectifyNs.Load(),
		"disparity":   p.DisparityNs.Load(),
		"triangulate": p.TriangulateNs.Load(),
		"filter":      p.FilterNs.Load(),
	}
	out := map[string]any{
		"pairs":  pairs,
		"points": p.Points.Load(),
	}
	for name, ns := range stages {
		out[name+"_ms_total"] = ns / 1_000_000
		if pairs > 0 {
			out[name+"_ms_per_pair"] = float64(ns) / 1_000_000.0 / float64(pairs)
		}
	}
	return out
}
