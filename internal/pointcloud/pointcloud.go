// Package pointcloud holds the colored point clouds produced by the pipeline.
package pointcloud

import (
	"image/color"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/twoview/internal/camera"
)

// Frame names the coordinate frame of a cloud.
type Frame string

const (
	FrameCamera Frame = "camera" // rectified left camera
	FrameWorld  Frame = "world"
)

// Point is a colored 3D position.
type Point struct {
	Position r3.Vector
	Color    color.NRGBA
}

// PointCloud is an ordered sequence of points.
type PointCloud struct {
	Points []Point
	Frame  Frame
}

// New returns an empty cloud in the camera frame with room for capacity points.
func New(capacity int) *PointCloud {
	return &PointCloud{Points: make([]Point, 0, capacity), Frame: FrameCamera}
}

// Append adds a point at the end of the cloud.
func (pc *PointCloud) Append(p r3.Vector, c color.NRGBA) {
	pc.Points = append(pc.Points, Point{Position: p, Color: c})
}

// Size returns the number of points.
func (pc *PointCloud) Size() int { return len(pc.Points) }

// Bounds returns the axis-aligned bounding box. ok is false for an empty cloud.
func (pc *PointCloud) Bounds() (lo, hi r3.Vector, ok bool) {
	if len(pc.Points) == 0 {
		return r3.Vector{}, r3.Vector{}, false
	}
	lo = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, p := range pc.Points {
		v := p.Position
		lo = r3.Vector{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vector{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return lo, hi, true
}

// Centroid returns the mean position, or the origin for an empty cloud.
func (pc *PointCloud) Centroid() r3.Vector {
	var sum r3.Vector
	if len(pc.Points) == 0 {
		return sum
	}
	for _, p := range pc.Points {
		sum = sum.Add(p.Position)
	}
	return sum.Mul(1 / float64(len(pc.Points)))
}

// Transform returns a copy with every position mapped to R·p + t.
func (pc *PointCloud) Transform(r mat.Matrix, t r3.Vector, frame Frame) *PointCloud {
	out := &PointCloud{Points: make([]Point, len(pc.Points)), Frame: frame}
	for i, p := range pc.Points {
		out.Points[i] = Point{Position: camera.MulVec(r, p.Position).Add(t), Color: p.Color}
	}
	return out
}

// ToWorld maps a cloud from cam's frame into world coordinates: p_world = Rᵗ·(p − t).
func (pc *PointCloud) ToWorld(cam camera.Camera) *PointCloud {
	rt := camera.Transpose(cam.R)
	return pc.Transform(rt, camera.MulVec(rt, cam.T).Mul(-1), FrameWorld)
}
