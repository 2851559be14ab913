// Package camera models calibrated pinhole cameras: intrinsics plus a world-to-camera rigid transform.
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// EPS is the numerical floor used by the geometry packages.
const EPS = 1e-8

// orthonormalTolerance bounds |R·Rᵗ − I| and |det R − 1| for a valid rotation.
const orthonormalTolerance = 1e-6

// ErrInvalidCamera is wrapped by every camera validation failure.
var ErrInvalidCamera = errors.New("invalid camera")

// Intrinsics holds the pinhole matrix K.
//
//	[[fx skew cx]
//	 [0  fy   cy]
//	 [0  0    1]]
type Intrinsics struct {
	Fx   float64 `json:"fx" yaml:"fx"`
	Fy   float64 `json:"fy" yaml:"fy"`
	Cx   float64 `json:"cx" yaml:"cx"`
	Cy   float64 `json:"cy" yaml:"cy"`
	Skew float64 `json:"skew,omitempty" yaml:"skew,omitempty"`
}

// Validate checks that both focal lengths are positive and finite.
func (k Intrinsics) Validate() error {
	if !(k.Fx > 0) || math.IsInf(k.Fx, 0) {
		return fmt.Errorf("%w: focal length fx = %v", ErrInvalidCamera, k.Fx)
	}
	if !(k.Fy > 0) || math.IsInf(k.Fy, 0) {
		return fmt.Errorf("%w: focal length fy = %v", ErrInvalidCamera, k.Fy)
	}
	return nil
}

// Matrix returns K as a 3×3 dense matrix.
func (k Intrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		k.Fx, k.Skew, k.Cx,
		0, k.Fy, k.Cy,
		0, 0, 1,
	})
}

// IntrinsicsFromMatrix reads fx, fy, cx, cy and skew out of a 3×3 K.
func IntrinsicsFromMatrix(m mat.Matrix) (Intrinsics, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return Intrinsics{}, fmt.Errorf("%w: intrinsic matrix is %dx%d", ErrInvalidCamera, r, c)
	}
	k := Intrinsics{
		Fx:   m.At(0, 0),
		Fy:   m.At(1, 1),
		Cx:   m.At(0, 2),
		Cy:   m.At(1, 2),
		Skew: m.At(0, 1),
	}
	return k, k.Validate()
}

// Project maps a point in the camera frame to pixel coordinates. ok is false for points at or behind the camera.
func (k Intrinsics) Project(p r3.Vector) (u, v float64, ok bool) {
	if p.Z <= EPS {
		return 0, 0, false
	}
	u = (k.Fx*p.X+k.Skew*p.Y)/p.Z + k.Cx
	v = k.Fy*p.Y/p.Z + k.Cy
	return u, v, true
}

// BackProject lifts pixel (u, v) at depth z into the camera frame.
func (k Intrinsics) BackProject(u, v, z float64) r3.Vector {
	if z == 0 {
		return r3.Vector{}
	}
	y := (v - k.Cy) * z / k.Fy
	x := ((u-k.Cx)*z - k.Skew*y) / k.Fx
	return r3.Vector{X: x, Y: y, Z: z}
}

// Camera is a calibrated view: p_cam = R·p_world + T.
type Camera struct {
	K Intrinsics
	R *mat.Dense
	T r3.Vector
}

// New validates and returns a camera. The rotation is copied.
func New(k Intrinsics, r mat.Matrix, t r3.Vector) (Camera, error) {
	if r == nil {
		return Camera{}, fmt.Errorf("%w: missing rotation", ErrInvalidCamera)
	}
	c := Camera{K: k, R: mat.DenseCopyOf(r), T: t}
	if err := c.Validate(); err != nil {
		return Camera{}, err
	}
	return c, nil
}

// Validate checks positive focal lengths and an orthonormal, right-handed rotation.
func (c Camera) Validate() error {
	if err := c.K.Validate(); err != nil {
		return err
	}
	if c.R == nil {
		return fmt.Errorf("%w: missing rotation", ErrInvalidCamera)
	}
	if r, cols := c.R.Dims(); r != 3 || cols != 3 {
		return fmt.Errorf("%w: rotation is %dx%d", ErrInvalidCamera, r, cols)
	}
	if !IsRotation(c.R, orthonormalTolerance) {
		return fmt.Errorf("%w: rotation is not orthonormal", ErrInvalidCamera)
	}
	if math.IsNaN(c.T.X) || math.IsNaN(c.T.Y) || math.IsNaN(c.T.Z) {
		return fmt.Errorf("%w: translation contains NaN", ErrInvalidCamera)
	}
	return nil
}

// Center returns the optical center in world coordinates, −Rᵗ·T.
func (c Camera) Center() r3.Vector {
	return MulVec(Transpose(c.R), c.T).Mul(-1)
}

// WorldToCamera maps a world point into the camera frame.
func (c Camera) WorldToCamera(p r3.Vector) r3.Vector {
	return MulVec(c.R, p).Add(c.T)
}

// CameraToWorld maps a camera-frame point into the world frame.
func (c Camera) CameraToWorld(p r3.Vector) r3.Vector {
	return MulVec(Transpose(c.R), p.Sub(c.T))
}

// ProjectWorld projects a world point to pixel coordinates.
func (c Camera) ProjectWorld(p r3.Vector) (u, v float64, ok bool) {
	return c.K.Project(c.WorldToCamera(p))
}
