package disparity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	m := NewMap(3, 2)
	assert.Equal(t, 0, m.ValidCount())
	_, _, ok := m.Range()
	assert.False(t, ok)

	m.set(1, 0, 2.5)
	m.set(2, 1, 0)
	assert.True(t, m.Valid(1, 0))
	assert.False(t, m.Valid(0, 0))
	assert.Equal(t, Invalid, m.At(-1, 0))
	assert.Equal(t, Invalid, m.At(3, 0))
	assert.Equal(t, 2, m.ValidCount())

	lo, hi, ok := m.Range()
	assert.True(t, ok)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 2.5, hi)
}

func TestMask(t *testing.T) {
	a := MaskFromCoverage(2, 2, []bool{true, true, false, true})
	b := MaskFromCoverage(2, 2, []bool{true, false, true, true})

	assert.Equal(t, 3, a.Count())
	assert.True(t, a.At(1, 1))
	assert.False(t, a.At(2, 0))
	both, err := a.And(b)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true}, both.Data)
}

func TestMaskAnd_SizeMismatch(t *testing.T) {
	a := MaskFromCoverage(2, 2, []bool{true, true, true, true})

	_, err := a.And(NewMask(4, 1))
	assert.ErrorIs(t, err, ErrMaskSize, "same pixel count, different shape")

	_, err = a.And(MaskFromCoverage(2, 1, []bool{true, true}))
	assert.ErrorIs(t, err, ErrMaskSize)

	short := &Mask{Width: 2, Height: 2, Data: []bool{true}}
	_, err = a.And(short)
	assert.ErrorIs(t, err, ErrMaskSize)
}

func TestMapImage(t *testing.T) {
	m := NewMap(3, 1)
	m.set(1, 0, 4)
	m.set(2, 0, 8)

	img := m.Image(8)
	assert.Equal(t, uint8(0), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(128), img.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(2, 0).Y)

	auto := m.Image(0)
	assert.Equal(t, uint8(255), auto.GrayAt(2, 0).Y)

	mask := MaskFromCoverage(2, 1, []bool{false, true}).Image()
	assert.Equal(t, uint8(0), mask.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), mask.GrayAt(1, 0).Y)
}
