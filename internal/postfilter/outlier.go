package postfilter

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"github.com/MeKo-Tech/twoview/internal/triangulate"
)

// removeOutliers clears keep for points whose mean distance to their Neighbors nearest kept points
// is more than StdRatio standard deviations above the average over the kept cloud. Neighbors are
// found in 3D with a k-d tree, regardless of pixel position. It returns the number of removed points.
func removeOutliers(raw *triangulate.Cloud, keep []bool, cfg OutlierConfig) int {
	pts := make(cloudPoints, 0, len(keep))
	for i, ok := range keep {
		if ok {
			pts = append(pts, cloudPoint{pos: raw.Points[i].Position, idx: i})
		}
	}
	if len(pts) < 2 {
		return 0
	}

	// The tree reorders its input.
	order := append(cloudPoints(nil), pts...)
	tree := kdtree.New(order, false)

	meanDist := make([]float64, len(pts))
	for n, p := range pts {
		keeper := kdtree.NewNKeeper(cfg.Neighbors + 1)
		tree.NearestSet(keeper, p)
		sum, count := 0.0, 0
		for _, c := range keeper.Heap {
			if c.Comparable.(cloudPoint).idx == p.idx || count == cfg.Neighbors {
				continue
			}
			sum += math.Sqrt(c.Dist)
			count++
		}
		meanDist[n] = sum / float64(count)
	}

	mean, std := stat.MeanStdDev(meanDist, nil)
	limit := mean + cfg.StdRatio*std
	if math.IsNaN(limit) {
		return 0
	}
	removed := 0
	for n, p := range pts {
		if meanDist[n] > limit {
			keep[p.idx] = false
			removed++
		}
	}
	return removed
}

// cloudPoint is a kept point with its row-major pixel index.
type cloudPoint struct {
	pos r3.Vector
	idx int
}

func coord(v r3.Vector, d kdtree.Dim) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func (p cloudPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return coord(p.pos, d) - coord(c.(cloudPoint).pos, d)
}

func (p cloudPoint) Dims() int { return 3 }

// Distance is the squared Euclidean distance, as kdtree expects.
func (p cloudPoint) Distance(c kdtree.Comparable) float64 {
	d := p.pos.Sub(c.(cloudPoint).pos)
	return d.Dot(d)
}

type cloudPoints []cloudPoint

func (p cloudPoints) Index(i int) kdtree.Comparable { return p[i] }
func (p cloudPoints) Len() int                      { return len(p) }
func (p cloudPoints) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

func (p cloudPoints) Pivot(d kdtree.Dim) int {
	pl := cloudPlane{Dim: d, points: p}
	return kdtree.Partition(pl, kdtree.MedianOfRandoms(pl, 100))
}

// cloudPlane sorts points along one dimension for pivoting.
type cloudPlane struct {
	kdtree.Dim
	points cloudPoints
}

func (p cloudPlane) Len() int { return len(p.points) }
func (p cloudPlane) Less(i, j int) bool {
	return coord(p.points[i].pos, p.Dim) < coord(p.points[j].pos, p.Dim)
}
func (p cloudPlane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
func (p cloudPlane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
