// Package raster holds the normalized float image the stereo stages work on.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Luminance weights (ITU-R BT.601).
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// ErrShape is returned when pixel data does not match the requested dimensions.
var ErrShape = errors.New("raster: pixel data does not match dimensions")

// Image is an immutable width×height grid with 1 or 3 interleaved channels in [0,1].
type Image struct {
	width    int
	height   int
	channels int
	pix      []float64
}

// New copies pix into a new image. len(pix) must equal width*height*channels.
func New(width, height, channels int, pix []float64) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShape, width, height)
	}
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("%w: %d channels", ErrShape, channels)
	}
	if len(pix) != width*height*channels {
		return nil, fmt.Errorf("%w: have %d values, want %d", ErrShape, len(pix), width*height*channels)
	}
	cp := make([]float64, len(pix))
	copy(cp, pix)
	return &Image{width: width, height: height, channels: channels, pix: cp}, nil
}

// Generate builds an image by calling fill once per pixel; px has one slot per channel.
func Generate(width, height, channels int, fill func(x, y int, px []float64)) *Image {
	img := &Image{width: width, height: height, channels: channels, pix: make([]float64, width*height*channels)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * channels
			fill(x, y, img.pix[i:i+channels])
		}
	}
	return img
}

// FromImage converts any image.Image into a 3-channel image normalized to [0,1].
func FromImage(src image.Image) *Image {
	nrgba := imaging.Clone(src)
	b := nrgba.Bounds()
	w, h := b.Dx(), b.Dy()
	img := &Image{width: w, height: h, channels: 3, pix: make([]float64, w*h*3)}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			o := (y*w + x) * 3
			img.pix[o] = float64(row[x*4]) / 255
			img.pix[o+1] = float64(row[x*4+1]) / 255
			img.pix[o+2] = float64(row[x*4+2]) / 255
		}
	}
	return img
}

// Width returns the image width in pixels.
func (m *Image) Width() int { return m.width }

// Height returns the image height in pixels.
func (m *Image) Height() int { return m.height }

// Channels returns 1 or 3.
func (m *Image) Channels() int { return m.channels }

// Bounds returns the pixel rectangle.
func (m *Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.width, m.height) }

// SameShape reports whether o has the same dimensions and channel count.
func (m *Image) SameShape(o *Image) bool {
	return o != nil && m.width == o.width && m.height == o.height && m.channels == o.channels
}

// At returns channel c of pixel (x, y). Coordinates must be in bounds.
func (m *Image) At(x, y, c int) float64 {
	return m.pix[(y*m.width+x)*m.channels+c]
}

// RGB returns the pixel as an RGB triple; gray images repeat their single channel.
func (m *Image) RGB(x, y int) (r, g, b float64) {
	i := (y*m.width + x) * m.channels
	if m.channels == 1 {
		return m.pix[i], m.pix[i], m.pix[i]
	}
	return m.pix[i], m.pix[i+1], m.pix[i+2]
}

// NRGBA returns the pixel as an 8-bit color.
func (m *Image) NRGBA(x, y int) color.NRGBA {
	r, g, b := m.RGB(x, y)
	return color.NRGBA{R: to8(r), G: to8(g), B: to8(b), A: 255}
}

// Bilinear samples channel values at a sub-pixel position into dst. It reports false, leaving dst zeroed,
// when (x, y) lies outside the pixel-center hull [0, w-1]×[0, h-1].
func (m *Image) Bilinear(x, y float64, dst []float64) bool {
	if x < 0 || y < 0 || x > float64(m.width-1) || y > float64(m.height-1) || math.IsNaN(x) || math.IsNaN(y) {
		for c := range dst {
			dst[c] = 0
		}
		return false
	}
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 >= m.width {
		x1 = m.width - 1
	}
	if y1 >= m.height {
		y1 = m.height - 1
	}
	fx := x - float64(x0)
	fy := y - float64(y0)
	for c := 0; c < m.channels && c < len(dst); c++ {
		c00 := m.At(x0, y0, c)
		c10 := m.At(x1, y0, c)
		c01 := m.At(x0, y1, c)
		c11 := m.At(x1, y1, c)
		dst[c] = lerp(lerp(c00, c10, fx), lerp(c01, c11, fx), fy)
	}
	return true
}

// Patch copies the size×size window centered on (x, y) into dst, channels interleaved.
// It reports false when the window leaves the image.
func (m *Image) Patch(x, y, size int, dst []float64) bool {
	half := size / 2
	if x-half < 0 || y-half < 0 || x+half >= m.width || y+half >= m.height {
		return false
	}
	n := size * m.channels
	for dy := 0; dy < size; dy++ {
		start := ((y-half+dy)*m.width + x - half) * m.channels
		copy(dst[dy*n:(dy+1)*n], m.pix[start:start+n])
	}
	return true
}

// PaddedPatch is Patch with zeros for the pixels outside the image. It accepts any center.
func (m *Image) PaddedPatch(x, y, size int, dst []float64) {
	half := size / 2
	n := size * m.channels
	for dy := range size {
		row := dst[dy*n : (dy+1)*n]
		sy := y - half + dy
		for dx := range size {
			sx := x - half + dx
			px := row[dx*m.channels : (dx+1)*m.channels]
			if sx < 0 || sy < 0 || sx >= m.width || sy >= m.height {
				clear(px)
				continue
			}
			copy(px, m.pix[(sy*m.width+sx)*m.channels:])
		}
	}
}

// Gray returns a single-channel luminance image. Gray input is returned as is.
func (m *Image) Gray() *Image {
	if m.channels == 1 {
		return m
	}
	return Generate(m.width, m.height, 1, func(x, y int, px []float64) {
		r, g, b := m.RGB(x, y)
		px[0] = lumaR*r + lumaG*g + lumaB*b
	})
}

// ToNRGBA renders the image as 8-bit NRGBA.
func (m *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(m.Bounds())
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			out.SetNRGBA(x, y, m.NRGBA(x, y))
		}
	}
	return out
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func to8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}
