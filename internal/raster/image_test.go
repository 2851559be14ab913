package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CopiesAndValidates(t *testing.T) {
	pix := []float64{0, 0.5, 1, 0.25}
	img, err := New(2, 2, 1, pix)
	require.NoError(t, err)

	pix[0] = 1
	assert.Equal(t, 0.0, img.At(0, 0, 0), "image must not alias caller data")

	_, err = New(2, 2, 3, pix)
	require.ErrorIs(t, err, ErrShape)
	_, err = New(0, 2, 1, nil)
	require.ErrorIs(t, err, ErrShape)
	_, err = New(1, 1, 2, []float64{0, 0})
	require.ErrorIs(t, err, ErrShape)
}

func TestFromImage_Normalizes(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 10, 13, 12))
	src.SetNRGBA(10, 10, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	src.SetNRGBA(12, 11, color.NRGBA{R: 0, G: 255, B: 0, A: 255})

	img := FromImage(src)
	require.Equal(t, 3, img.Width())
	require.Equal(t, 2, img.Height())
	require.Equal(t, 3, img.Channels())

	r, g, b := img.RGB(0, 0)
	assert.InDelta(t, 1.0, r, 1e-12)
	assert.InDelta(t, 0.0, g, 1e-12)
	assert.InDelta(t, 0.2, b, 1e-12)

	_, g, _ = img.RGB(2, 1)
	assert.InDelta(t, 1.0, g, 1e-12)
}

func TestBilinear(t *testing.T) {
	img, err := New(2, 2, 1, []float64{0, 1, 2, 3})
	require.NoError(t, err)

	dst := make([]float64, 1)
	require.True(t, img.Bilinear(0.5, 0.5, dst))
	assert.InDelta(t, 1.5, dst[0], 1e-12)

	require.True(t, img.Bilinear(1, 1, dst))
	assert.InDelta(t, 3.0, dst[0], 1e-12, "integer coordinates sample exactly")

	assert.False(t, img.Bilinear(-0.1, 0, dst))
	assert.Equal(t, 0.0, dst[0])
	assert.False(t, img.Bilinear(0, 1.01, dst))
}

func TestPatch(t *testing.T) {
	img := Generate(5, 5, 1, func(x, y int, px []float64) { px[0] = float64(y*5 + x) })
	dst := make([]float64, 9)

	require.True(t, img.Patch(2, 2, 3, dst))
	assert.Equal(t, []float64{6, 7, 8, 11, 12, 13, 16, 17, 18}, dst)

	assert.False(t, img.Patch(0, 2, 3, dst))
	assert.False(t, img.Patch(2, 4, 3, dst))
	assert.True(t, img.Patch(0, 0, 1, dst[:1]))
}

func TestPaddedPatch(t *testing.T) {
	img := Generate(3, 3, 1, func(x, y int, px []float64) { px[0] = float64(y*3 + x + 1) })
	dst := []float64{9, 9, 9, 9, 9, 9, 9, 9, 9}

	img.PaddedPatch(0, 0, 3, dst)
	assert.Equal(t, []float64{0, 0, 0, 0, 1, 2, 0, 4, 5}, dst)

	img.PaddedPatch(1, 1, 3, dst)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, dst)

	img.PaddedPatch(5, 1, 3, dst)
	assert.Equal(t, make([]float64, 9), dst)
}

func TestGrayAndRoundTrip(t *testing.T) {
	img := Generate(2, 1, 3, func(x, y int, px []float64) {
		px[0], px[1], px[2] = 1, 1, 1
	})
	gray := img.Gray()
	assert.Equal(t, 1, gray.Channels())
	assert.InDelta(t, 1.0, gray.At(1, 0, 0), 1e-12)
	assert.Same(t, gray, gray.Gray())

	out := img.ToNRGBA()
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, out.NRGBAAt(0, 0))
	assert.True(t, img.SameShape(FromImage(out)))
}
