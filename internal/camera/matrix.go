package camera

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Eye returns the n×n identity.
func Eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Transpose returns a dense copy of mᵗ.
func Transpose(m mat.Matrix) *mat.Dense {
	return mat.DenseCopyOf(m.T())
}

// Mul returns a·b.
func Mul(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// MulVec applies a 3×3 matrix to a vector.
func MulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// FromRows builds a 3×3 matrix whose rows are the given vectors.
func FromRows(a, b, c r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a.X, a.Y, a.Z,
		b.X, b.Y, b.Z,
		c.X, c.Y, c.Z,
	})
}

// IsRotation reports whether m is orthonormal with determinant +1 within tol.
func IsRotation(m mat.Matrix, tol float64) bool {
	var rrt mat.Dense
	rrt.Mul(m, m.T())
	if !mat.EqualApprox(&rrt, Eye(3), tol) {
		return false
	}
	return math.Abs(mat.Det(m)-1) <= tol
}

// AxisAngle returns the rotation of angle radians about axis (Rodrigues' formula).
func AxisAngle(axis r3.Vector, angle float64) *mat.Dense {
	n := axis.Norm()
	if n < EPS {
		return Eye(3)
	}
	a := axis.Mul(1 / n)
	c, s := math.Cos(angle), math.Sin(angle)
	t := 1 - c
	return mat.NewDense(3, 3, []float64{
		t*a.X*a.X + c, t*a.X*a.Y - s*a.Z, t*a.X*a.Z + s*a.Y,
		t*a.X*a.Y + s*a.Z, t*a.Y*a.Y + c, t*a.Y*a.Z - s*a.X,
		t*a.X*a.Z - s*a.Y, t*a.Y*a.Z + s*a.X, t*a.Z*a.Z + c,
	})
}

// Orthonormalize projects a near-rotation onto SO(3) with an SVD, R = U·Vᵗ.
// Calibration files often carry rotations rounded to a few digits.
func Orthonormalize(m mat.Matrix) (*mat.Dense, bool) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// flip the last column of U
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r, true
}
