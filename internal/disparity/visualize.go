package disparity

import (
	"image"
	"image/color"
)

// Image renders the map as 8-bit gray, scaling maxD to white. Invalid pixels are black. A
// non-positive maxD uses the largest valid disparity.
func (m *Map) Image(maxD float64) *image.Gray {
	if maxD <= 0 {
		if _, hi, ok := m.Range(); ok {
			maxD = hi
		}
	}
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	if maxD <= 0 {
		return img
	}
	for y := range m.Height {
		for x := range m.Width {
			d := m.Data[y*m.Width+x]
			if d < 0 {
				continue
			}
			v := d / maxD * 255
			if v > 255 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v + 0.5)})
		}
	}
	return img
}

// Image renders the mask as a black and white image.
func (m *Mask) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Data {
		if v {
			img.Pix[(i/m.Width)*img.Stride+i%m.Width] = 255
		}
	}
	return img
}
