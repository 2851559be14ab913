// Package triangulate turns rectified disparities into depths and 3D points.
package triangulate

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/golang/geo/r3"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/raster"
	"github.com/MeKo-Tech/twoview/internal/rectify"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

// ErrSizeMismatch is returned when the disparity map, mask and image disagree in size.
var ErrSizeMismatch = errors.New("triangulate: input sizes differ")

// Geometry is the rectified stereo geometry needed for triangulation.
type Geometry struct {
	Intrinsics camera.Intrinsics
	Baseline   float64
}

// GeometryOf returns the triangulation geometry of a rectified pair.
func GeometryOf(p *rectify.Pair) Geometry {
	return Geometry{Intrinsics: p.Intrinsics(), Baseline: p.Baseline}
}

// Validate checks the baseline and focal lengths.
func (g Geometry) Validate() error {
	if !(g.Baseline > 0) || math.IsInf(g.Baseline, 0) {
		return utils.InvalidConfig("triangulate.baseline", g.Baseline, "must be positive")
	}
	if !(g.Intrinsics.Fx > 0) || !(g.Intrinsics.Fy > 0) {
		return utils.InvalidConfig("triangulate.focal", fmt.Sprintf("%g,%g", g.Intrinsics.Fx, g.Intrinsics.Fy),
			"focal lengths must be positive")
	}
	return nil
}

// Depth returns Z = fx·B/d. ok is false when d is not positive.
func (g Geometry) Depth(d float64) (float64, bool) {
	if !(d > 0) {
		return 0, false
	}
	return g.Intrinsics.Fx * g.Baseline / d, true
}

// Disparity is the inverse of Depth.
func (g Geometry) Disparity(z float64) float64 {
	if !(z > 0) {
		return disparity.Invalid
	}
	return g.Intrinsics.Fx * g.Baseline / z
}

// Point lifts pixel (u, v) with disparity d into the rectified left camera frame.
func (g Geometry) Point(u, v, d float64) (r3.Vector, bool) {
	z, ok := g.Depth(d)
	if !ok {
		return r3.Vector{}, false
	}
	return g.Intrinsics.BackProject(u, v, z), true
}

// Point is one pixel of the raw cloud. Invalid pixels keep their pixel coordinate and color so
// later filters can account for them.
type Point struct {
	X, Y       int
	Position   r3.Vector // rectified left camera frame
	Color      color.NRGBA
	Disparity  float64
	Depth      float64
	Valid      bool // d > 0 and defined
	Consistent bool // passed the left-right check
}

// Cloud is the raw triangulation output, one point per pixel in row-major order.
type Cloud struct {
	Width, Height int
	Points        []Point
}

// At returns the point for pixel (x, y).
func (c *Cloud) At(x, y int) *Point { return &c.Points[y*c.Width+x] }

// ValidCount returns the number of triangulated points.
func (c *Cloud) ValidCount() int {
	n := 0
	for i := range c.Points {
		if c.Points[i].Valid {
			n++
		}
	}
	return n
}

// Triangulate converts every disparity into a point colored from rectL. A nil mask treats every
// pixel as consistent.
func Triangulate(disp *disparity.Map, mask *disparity.Mask, geom Geometry, rectL *raster.Image) (*Cloud, error) {
	if disp == nil || rectL == nil {
		return nil, errors.New("triangulate: nil input")
	}
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if disp.Width != rectL.Width() || disp.Height != rectL.Height() {
		return nil, fmt.Errorf("%w: disparity %dx%d, image %dx%d", ErrSizeMismatch,
			disp.Width, disp.Height, rectL.Width(), rectL.Height())
	}
	if mask != nil && (mask.Width != disp.Width || mask.Height != disp.Height) {
		return nil, fmt.Errorf("%w: disparity %dx%d, mask %dx%d", ErrSizeMismatch,
			disp.Width, disp.Height, mask.Width, mask.Height)
	}

	cloud := &Cloud{Width: disp.Width, Height: disp.Height, Points: make([]Point, disp.Width*disp.Height)}
	for y := range disp.Height {
		for x := range disp.Width {
			d := disp.At(x, y)
			p := Point{
				X:          x,
				Y:          y,
				Color:      rectL.NRGBA(x, y),
				Disparity:  d,
				Consistent: mask == nil || mask.At(x, y),
			}
			if pos, ok := geom.Point(float64(x), float64(y), d); ok {
				p.Position = pos
				p.Depth = pos.Z
				p.Valid = true
			}
			cloud.Points[y*disp.Width+x] = p
		}
	}
	return cloud, nil
}

// DepthMap converts disparities to depths. Pixels without a positive disparity hold 0.
func DepthMap(disp *disparity.Map, geom Geometry) ([]float64, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	out := make([]float64, len(disp.Data))
	for i, d := range disp.Data {
		if z, ok := geom.Depth(d); ok {
			out[i] = z
		}
	}
	return out, nil
}
