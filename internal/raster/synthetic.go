package raster

import "math/rand/v2"

// RandomDotPair returns a deterministic random-dot stereo pair with uniform disparity d: the
// right view satisfies R(x, y) = L(x+d, y).
func RandomDotPair(w, h, channels, d int, seed uint64) (left, right *Image) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	wide := make([]float64, (w+d)*h*channels)
	for i := range wide {
		wide[i] = rng.Float64()
	}
	sample := func(offset int) *Image {
		return Generate(w, h, channels, func(x, y int, px []float64) {
			base := (y*(w+d) + x + offset) * channels
			copy(px, wide[base:base+channels])
		})
	}
	return sample(0), sample(d)
}
