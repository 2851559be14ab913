package testutil

import (
	"github.com/golang/geo/r3"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/raster"
)

var (
	// CheckerLight and CheckerDark are the two checkerboard colors.
	CheckerLight = [3]float64{0.9, 0.8, 0.7}
	CheckerDark  = [3]float64{0.1, 0.25, 0.3}
)

// Checkerboard returns a w×h RGB checkerboard of square-pixel cells, sampled shift pixels to the
// right: pixel (x, y) shows the board at (x+shift, y).
func Checkerboard(w, h, square, shift int) *raster.Image {
	return raster.Generate(w, h, 3, func(x, y int, px []float64) {
		c := CheckerDark
		if ((x+shift)/square+y/square)%2 == 0 {
			c = CheckerLight
		}
		copy(px, c[:])
	})
}

// CheckerboardPair returns a fronto-parallel stereo pair with uniform disparity d: the right view
// satisfies R(x, y) = L(x+d, y), so left pixel x matches right pixel x−d.
func CheckerboardPair(w, h, square, d int) (left, right *raster.Image) {
	return Checkerboard(w, h, square, 0), Checkerboard(w, h, square, d)
}

// RandomTexturePair returns a deterministic random-dot pair with uniform disparity d.
func RandomTexturePair(w, h, channels, d int, seed uint64) (left, right *raster.Image) {
	return raster.RandomDotPair(w, h, channels, d, seed)
}

// Constant returns a w×h image filled with one color.
func Constant(w, h int, rgb [3]float64) *raster.Image {
	return raster.Generate(w, h, 3, func(_, _ int, px []float64) {
		copy(px, rgb[:])
	})
}

// StereoIntrinsics returns a zero-skew K with focal length f and the principal point at the
// center pixel of a w×h image.
func StereoIntrinsics(f float64, w, h int) camera.Intrinsics {
	return camera.Intrinsics{Fx: f, Fy: f, Cx: float64(w / 2), Cy: float64(h / 2)}
}

// ParallelRig returns an already-rectified rig: identical K and orientation, the right camera
// baseline units along +x.
func ParallelRig(k camera.Intrinsics, baseline float64) (left, right camera.Camera) {
	left = camera.Camera{K: k, R: camera.Eye(3)}
	right = camera.Camera{K: k, R: camera.Eye(3), T: r3.Vector{X: -baseline}}
	return left, right
}

// PlaneDepth is the depth at which a fronto-parallel plane produces disparity d in a rig with
// focal length f and the given baseline.
func PlaneDepth(f, baseline float64, d int) float64 {
	return f * baseline / float64(d)
}
