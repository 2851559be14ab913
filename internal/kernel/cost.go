package kernel

import "math"

// ssd is unrolled 4-way; the tail is handled separately.
func ssd(a, b []float64) float64 {
	n := len(a)
	var s0, s1, s2, s3 float64
	i := 0
	for ; i+3 < n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		s0 += d * d
	}
	return s0 + s1 + s2 + s3
}

func sad(a, b []float64) float64 {
	n := len(a)
	var s0, s1, s2, s3 float64
	i := 0
	for ; i+3 < n; i += 4 {
		s0 += math.Abs(a[i] - b[i])
		s1 += math.Abs(a[i+1] - b[i+1])
		s2 += math.Abs(a[i+2] - b[i+2])
		s3 += math.Abs(a[i+3] - b[i+3])
	}
	for ; i < n; i++ {
		s0 += math.Abs(a[i] - b[i])
	}
	return s0 + s1 + s2 + s3
}

func dot(a, b []float64) float64 {
	n := len(a)
	var s0, s1, s2, s3 float64
	i := 0
	for ; i+3 < n; i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		s0 += a[i] * b[i]
	}
	return s0 + s1 + s2 + s3
}

// normalize subtracts the per-channel mean and scales v to unit length in place.
// It returns false when the centered patch has (numerically) no energy.
func normalize(v []float64, channels int) bool {
	if channels <= 0 {
		channels = 1
	}
	count := len(v) / channels
	if count == 0 {
		return false
	}
	for c := 0; c < channels; c++ {
		var mean float64
		for i := c; i < len(v); i += channels {
			mean += v[i]
		}
		mean /= float64(count)
		for i := c; i < len(v); i += channels {
			v[i] -= mean
		}
	}
	norm := math.Sqrt(dot(v, v))
	if norm < varianceFloor {
		return false
	}
	inv := 1 / norm
	for i := range v {
		v[i] *= inv
	}
	return true
}
