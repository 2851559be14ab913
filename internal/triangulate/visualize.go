package triangulate

import (
	"image"
	"image/color"
)

// DepthImage renders a w×h depth map as 16-bit gray proportional to inverse depth: the nearest
// point is white and pixels without depth are black.
func DepthImage(depth []float64, w, h int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	near := 0.0
	for _, z := range depth {
		if z > 0 && (near == 0 || z < near) {
			near = z
		}
	}
	if near == 0 {
		return img
	}
	for i, z := range depth[:min(len(depth), w*h)] {
		if z <= 0 {
			continue
		}
		img.SetGray16(i%w, i/w, color.Gray16{Y: uint16(near/z*65535 + 0.5)})
	}
	return img
}
