package disparity

import (
	"errors"
	"fmt"
	"math"
)

// Invalid marks pixels without a disparity estimate.
const Invalid = -1.0

// ErrMaskSize is returned when combining masks of different dimensions.
var ErrMaskSize = errors.New("disparity: mask sizes differ")

// Map is a row-major grid of disparities. Entries are non-negative or Invalid.
type Map struct {
	Width, Height int
	Data          []float64
}

// NewMap returns a w×h map with every pixel Invalid.
func NewMap(w, h int) *Map {
	m := &Map{Width: w, Height: h, Data: make([]float64, w*h)}
	for i := range m.Data {
		m.Data[i] = Invalid
	}
	return m
}

// At returns the disparity at (x, y), or Invalid outside the map.
func (m *Map) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return Invalid
	}
	return m.Data[y*m.Width+x]
}

// Valid reports whether (x, y) holds a disparity.
func (m *Map) Valid(x, y int) bool { return m.At(x, y) >= 0 }

func (m *Map) set(x, y int, d float64) { m.Data[y*m.Width+x] = d }

// ValidCount returns the number of pixels with a disparity.
func (m *Map) ValidCount() int {
	n := 0
	for _, d := range m.Data {
		if d >= 0 {
			n++
		}
	}
	return n
}

// Range returns the smallest and largest valid disparity. ok is false for an all-invalid map.
func (m *Map) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, d := range m.Data {
		if d < 0 {
			continue
		}
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// Mask is a row-major boolean grid.
type Mask struct {
	Width, Height int
	Data          []bool
}

// NewMask returns an all-false w×h mask.
func NewMask(w, h int) *Mask {
	return &Mask{Width: w, Height: h, Data: make([]bool, w*h)}
}

// At returns the mask value at (x, y); pixels outside the mask are false.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Data[y*m.Width+x]
}

// Count returns the number of true pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// And returns the pixelwise conjunction of m and o. Masks of different dimensions are an error.
func (m *Mask) And(o *Mask) (*Mask, error) {
	if m.Width != o.Width || m.Height != o.Height || len(m.Data) != len(o.Data) {
		return nil, fmt.Errorf("%w: %dx%d and %dx%d", ErrMaskSize, m.Width, m.Height, o.Width, o.Height)
	}
	out := NewMask(m.Width, m.Height)
	for i := range out.Data {
		out.Data[i] = m.Data[i] && o.Data[i]
	}
	return out, nil
}

// MaskFromCoverage wraps a row-major coverage slice such as rectify.Pair.LeftCoverage.
func MaskFromCoverage(w, h int, coverage []bool) *Mask {
	m := NewMask(w, h)
	copy(m.Data, coverage)
	return m
}
