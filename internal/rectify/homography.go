package rectify

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/twoview/internal/camera"
)

// Homography is a row-major 3×3 projective transform on pixel coordinates.
type Homography [9]float64

// homographyFromDense copies a 3×3 matrix scaled so |H[8]| = 1. The sign is kept: a positive
// denominator in Apply means the point lies in front of the target camera.
func homographyFromDense(m mat.Matrix) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.At(r, c)
		}
	}
	if s := math.Abs(h[8]); s > camera.EPS && !math.IsNaN(s) {
		for i := range h {
			h[i] /= s
		}
	}
	return h
}

// Rectifying returns H = K_new·R·K⁻¹, mapping source pixels to rectified pixels.
func Rectifying(kNew, k camera.Intrinsics, r mat.Matrix) (Homography, bool) {
	var kInv mat.Dense
	if err := kInv.Inverse(k.Matrix()); err != nil {
		return Homography{}, false
	}
	var h mat.Dense
	h.Mul(kNew.Matrix(), r)
	h.Mul(&h, &kInv)
	return homographyFromDense(&h), true
}

// Dense returns H as a gonum matrix.
func (h Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, h[:])
}

// Inverse returns H⁻¹.
func (h Homography) Inverse() (Homography, bool) {
	var inv mat.Dense
	if err := inv.Inverse(h.Dense()); err != nil {
		return Homography{}, false
	}
	return homographyFromDense(&inv), true
}

// Apply maps (x, y) through H. ok is false when the point maps to infinity or behind the plane.
func (h Homography) Apply(x, y float64) (float64, float64, bool) {
	den := h[6]*x + h[7]*y + h[8]
	if den <= camera.EPS {
		return math.NaN(), math.NaN(), false
	}
	u := (h[0]*x + h[1]*y + h[2]) / den
	v := (h[3]*x + h[4]*y + h[5]) / den
	return u, v, true
}

// corners maps the pixel-center corners of a w×h image through H.
func (h Homography) corners(w, hgt int) ([]r2.Point, bool) {
	src := []r2.Point{
		{X: 0, Y: 0},
		{X: float64(w - 1), Y: 0},
		{X: 0, Y: float64(hgt - 1)},
		{X: float64(w - 1), Y: float64(hgt - 1)},
	}
	out := make([]r2.Point, 0, len(src))
	for _, p := range src {
		u, v, ok := h.Apply(p.X, p.Y)
		if !ok {
			return nil, false
		}
		out = append(out, r2.Point{X: u, Y: v})
	}
	return out, true
}
