package rectify

import (
	"math"

	"github.com/MeKo-Tech/twoview/internal/raster"
)

const (
	// hullSlack absorbs rounding when an inverse-mapped coordinate lands a hair outside the source.
	hullSlack = 1e-6
	// gridSlack snaps samples onto the source pixel grid so pure translations copy pixels exactly.
	gridSlack = 1e-9
)

// warpPerspective resamples src onto a dstW×dstH canvas. inv maps destination pixels back to
// source pixels; samples use bilinear interpolation. The returned coverage is false where the
// destination pixel has no source data (those pixels are black).
func warpPerspective(src *raster.Image, inv Homography, dstW, dstH int) (*raster.Image, []bool) {
	coverage := make([]bool, dstW*dstH)
	maxX := float64(src.Width() - 1)
	maxY := float64(src.Height() - 1)

	out := raster.Generate(dstW, dstH, src.Channels(), func(x, y int, px []float64) {
		sx, sy, ok := inv.Apply(float64(x), float64(y))
		if !ok {
			return
		}
		sx = snapToHull(sx, maxX)
		sy = snapToHull(sy, maxY)
		coverage[y*dstW+x] = src.Bilinear(sx, sy, px)
	})
	return out, coverage
}

func snapToHull(v, hi float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < gridSlack {
		v = r
	}
	if v < 0 && v > -hullSlack {
		return 0
	}
	if v > hi && v < hi+hullSlack {
		return hi
	}
	return v
}
