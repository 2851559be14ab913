package rectify

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/twoview/internal/camera"
)

// DegenerateGeometryError reports a camera pair that cannot be rectified.
type DegenerateGeometryError struct {
	Reason   string
	Baseline float64
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("degenerate stereo geometry: %s (baseline %.3g)", e.Reason, e.Baseline)
}

// Pose is the rigid transform between the two cameras: p_R = R·p_L + T.
type Pose struct {
	R *mat.Dense
	T r3.Vector
}

// RelativePose returns R_rel = R_R·R_Lᵗ and t_rel = t_R − R_rel·t_L.
func RelativePose(left, right camera.Camera) Pose {
	rRel := camera.Mul(right.R, left.R.T())
	tRel := right.T.Sub(camera.MulVec(rRel, left.T))
	return Pose{R: rRel, T: tRel}
}

// Baseline is the distance between the optical centers, |t_rel|.
func (p Pose) Baseline() float64 { return p.T.Norm() }

// RightCenterInLeft is the right optical center in the left camera frame, −R_relᵗ·t_rel.
// It points from the left center toward the right center.
func (p Pose) RightCenterInLeft() r3.Vector {
	return camera.MulVec(p.R.T(), p.T).Mul(-1)
}

// Rotation returns R_rect for the left camera. Its rows are the unit baseline, the axis orthogonal to
// the baseline and the original optical axis, and their cross product.
func Rotation(p Pose) (*mat.Dense, error) {
	baseline := p.Baseline()
	if baseline < camera.EPS {
		return nil, &DegenerateGeometryError{Reason: "camera centers coincide", Baseline: baseline}
	}
	e1 := p.RightCenterInLeft().Mul(1 / baseline)
	optical := r3.Vector{Z: 1}
	e2 := optical.Cross(e1)
	if e2.Norm() < camera.EPS {
		return nil, &DegenerateGeometryError{Reason: "baseline is parallel to the optical axis", Baseline: baseline}
	}
	e2 = e2.Normalize()
	e3 := e1.Cross(e2)
	return camera.FromRows(e1, e2, e3), nil
}

// checkOrder reports a right camera that sits on the left camera's negative x side.
func checkOrder(p Pose) error {
	b := p.RightCenterInLeft()
	if b.X < 0 {
		return &DegenerateGeometryError{Reason: "right view is not to the right of the left view", Baseline: p.Baseline()}
	}
	return nil
}
