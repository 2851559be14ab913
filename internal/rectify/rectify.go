// Package rectify aligns a calibrated stereo pair so that epipolar lines become image rows.
package rectify

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/raster"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

// Pair is a rectified stereo pair. Both cameras share K and R; the right camera sits Baseline
// units along the rectified +x axis.
type Pair struct {
	Left, Right             *raster.Image
	LeftCamera, RightCamera camera.Camera
	// Rotation is R_rect applied to the left camera frame.
	Rotation *mat.Dense
	// LeftHomography and RightHomography map source pixels to rectified pixels.
	LeftHomography, RightHomography Homography
	// LeftCoverage and RightCoverage are row-major; false marks pixels with no source data.
	LeftCoverage, RightCoverage []bool
	Baseline                    float64
}

// Intrinsics returns the shared rectified K.
func (p *Pair) Intrinsics() camera.Intrinsics { return p.LeftCamera.K }

// Project returns the rectified pixel positions of a world point in both views.
func (p *Pair) Project(world r3.Vector) (ul, vl, ur, vr float64, ok bool) {
	ul, vl, okL := p.LeftCamera.ProjectWorld(world)
	ur, vr, okR := p.RightCamera.ProjectWorld(world)
	return ul, vl, ur, vr, okL && okR
}

// Rectifier warps calibrated image pairs onto a common image plane.
type Rectifier struct {
	cfg Config
}

// New creates a rectifier.
func New(cfg Config) (*Rectifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Rectifier{cfg: cfg}, nil
}

// Rectify computes the rectifying rotation for the pair and resamples both images.
func (r *Rectifier) Rectify(left, right *raster.Image, camL, camR camera.Camera) (*Pair, error) {
	if left == nil || right == nil {
		return nil, errors.New("rectify: nil image")
	}
	if !left.SameShape(right) {
		return nil, fmt.Errorf("rectify: image shapes differ: %dx%dx%d vs %dx%dx%d",
			left.Width(), left.Height(), left.Channels(), right.Width(), right.Height(), right.Channels())
	}
	if err := camL.Validate(); err != nil {
		return nil, fmt.Errorf("rectify: left camera: %w", err)
	}
	if err := camR.Validate(); err != nil {
		return nil, fmt.Errorf("rectify: right camera: %w", err)
	}

	pose := RelativePose(camL, camR)
	if r.cfg.EnforceOrder {
		if err := checkOrder(pose); err != nil {
			return nil, err
		}
	}
	rot, err := Rotation(pose)
	if err != nil {
		return nil, err
	}
	rotL := rot
	rotR := camera.Mul(rot, pose.R.T())

	kRect := camera.Intrinsics{
		Fx: (camL.K.Fx + camR.K.Fx) / 2,
		Fy: (camL.K.Fy + camR.K.Fy) / 2,
	}
	canvas, err := r.canvas(left.Width(), left.Height(), kRect, camL.K, camR.K, rotL, rotR)
	if err != nil {
		return nil, err
	}
	kRect.Cx = -canvas.minX
	kRect.Cy = -canvas.minY

	hL, okL := Rectifying(kRect, camL.K, rotL)
	hR, okR := Rectifying(kRect, camR.K, rotR)
	if !okL || !okR {
		return nil, errors.New("rectify: singular intrinsic matrix")
	}
	invL, okL := hL.Inverse()
	invR, okR := hR.Inverse()
	if !okL || !okR {
		return nil, &DegenerateGeometryError{Reason: "rectifying homography is singular", Baseline: pose.Baseline()}
	}

	outL, covL := warpPerspective(left, invL, canvas.width, canvas.height)
	outR, covR := warpPerspective(right, invR, canvas.width, canvas.height)

	pair := &Pair{
		Left:            outL,
		Right:           outR,
		LeftCamera:      camera.Camera{K: kRect, R: camera.Mul(rotL, camL.R), T: camera.MulVec(rotL, camL.T)},
		RightCamera:     camera.Camera{K: kRect, R: camera.Mul(rotR, camR.R), T: camera.MulVec(rotR, camR.T)},
		Rotation:        rot,
		LeftHomography:  hL,
		RightHomography: hR,
		LeftCoverage:    covL,
		RightCoverage:   covR,
		Baseline:        pose.Baseline(),
	}

	slog.Debug("Rectified stereo pair",
		"baseline", pair.Baseline,
		"width", canvas.width,
		"height", canvas.height,
		"fx", kRect.Fx,
		"cx", kRect.Cx,
		"cy", kRect.Cy)

	if r.cfg.DebugDir != "" {
		if err := dumpPairPNG(r.cfg.DebugDir, pair); err != nil {
			slog.Warn("Failed to write rectification debug image", "dir", r.cfg.DebugDir, "error", err)
		}
	}
	return pair, nil
}

type canvasRect struct {
	minX, minY    float64
	width, height int
}

// canvas finds the rectified canvas covering both warped images, then applies the size cap and padding.
func (r *Rectifier) canvas(w, h int, k0, kL, kR camera.Intrinsics, rotL, rotR mat.Matrix) (canvasRect, error) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range []struct {
		k   camera.Intrinsics
		rot mat.Matrix
	}{{kL, rotL}, {kR, rotR}} {
		hom, ok := Rectifying(k0, v.k, v.rot)
		if !ok {
			return canvasRect{}, errors.New("rectify: singular intrinsic matrix")
		}
		pts, ok := hom.corners(w, h)
		if !ok {
			return canvasRect{}, &DegenerateGeometryError{Reason: "image corners fall behind the rectified camera"}
		}
		for _, p := range pts {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	minX, minY = snap(minX), snap(minY)
	maxX, maxY = snap(maxX), snap(maxY)

	c := canvasRect{
		minX:   minX,
		minY:   minY,
		width:  int(math.Ceil(maxX-minX-hullSlack)) + 1,
		height: int(math.Ceil(maxY-minY-hullSlack)) + 1,
	}

	scale := r.cfg.maxScale()
	if limit := int(scale * float64(w)); c.width > limit {
		c.minX = math.Round((minX+maxX)/2 - float64(limit-1)/2)
		c.width = limit
	}
	if limit := int(scale * float64(h)); c.height > limit {
		c.minY = math.Round((minY+maxY)/2 - float64(limit-1)/2)
		c.height = limit
	}

	c.minX += float64(r.cfg.PadX)
	c.minY += float64(r.cfg.PadY)
	c.width -= 2 * r.cfg.PadX
	c.height -= 2 * r.cfg.PadY
	if c.width <= 0 || c.height <= 0 {
		return canvasRect{}, utils.InvalidConfig("rectify.pad", fmt.Sprintf("%d,%d", r.cfg.PadX, r.cfg.PadY),
			"padding removes the whole rectified image")
	}
	return c, nil
}

// snap rounds values that sit within rounding error of an integer.
func snap(v float64) float64 {
	if rv := math.Round(v); math.Abs(v-rv) < hullSlack {
		return rv
	}
	return v
}
