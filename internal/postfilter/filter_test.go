package postfilter

import (
	"errors"
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/triangulate"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

var (
	white = color.NRGBA{R: 240, G: 240, B: 240, A: 255}
	black = color.NRGBA{R: 5, G: 5, B: 5, A: 255}
	green = color.NRGBA{R: 0, G: 200, B: 0, A: 255}
)

// gridCloud builds a w×h cloud of valid, consistent points on the plane Z = z, spaced 0.1 apart.
func gridCloud(w, h int, z float64, c color.NRGBA) *triangulate.Cloud {
	cloud := &triangulate.Cloud{Width: w, Height: h, Points: make([]triangulate.Point, w*h)}
	for y := range h {
		for x := range w {
			cloud.Points[y*w+x] = triangulate.Point{
				X: x, Y: y,
				Position:   r3.Vector{X: float64(x) * 0.1, Y: float64(y) * 0.1, Z: z},
				Color:      c,
				Disparity:  1,
				Depth:      z,
				Valid:      true,
				Consistent: true,
			}
		}
	}
	return cloud
}

func TestFilter_DropReasons(t *testing.T) {
	raw := gridCloud(3, 2, 5, white)
	raw.Points[0].Valid = false
	raw.Points[1].Consistent = false
	raw.Points[2].Depth = 50
	raw.Points[2].Position.Z = 50
	raw.Points[3].Color = green

	bg := DefaultBackgroundPolicy()
	bg.Kind = BackgroundColor
	bg.Color = green
	bg.ColorTolerance = 0.05

	out, stats, err := Filter(raw, nil, ZRange{Min: 1, Max: 10}, bg)
	require.NoError(t, err)
	assert.Equal(t, Stats{Input: 6, Invalid: 1, Inconsistent: 1, OutOfRange: 1, Background: 1, Kept: 2}, stats)
	assert.Equal(t, 4, stats.Dropped())
	require.Equal(t, 2, out.Size())
	// Row-major order is preserved.
	assert.Equal(t, raw.Points[4].Position, out.Points[0].Position)
	assert.Equal(t, raw.Points[5].Position, out.Points[1].Position)
}

func TestFilter_MaskOverridesPointTag(t *testing.T) {
	raw := gridCloud(2, 1, 5, white)
	raw.Points[1].Consistent = false
	mask := disparity.MaskFromCoverage(2, 1, []bool{false, true})

	out, stats, err := Filter(raw, mask, Unbounded(), DefaultBackgroundPolicy())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inconsistent)
	require.Equal(t, 1, out.Size())
	assert.Equal(t, raw.Points[1].Position, out.Points[0].Position)

	_, _, err = Filter(raw, disparity.NewMask(3, 1), Unbounded(), DefaultBackgroundPolicy())
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestFilter_ZRangeInclusive(t *testing.T) {
	raw := gridCloud(3, 1, 0, white)
	for i, z := range []float64{1, 2, 3} {
		raw.Points[i].Depth = z
	}
	_, stats, err := Filter(raw, nil, ZRange{Min: 1, Max: 2}, DefaultBackgroundPolicy())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Kept)
	assert.Equal(t, 1, stats.OutOfRange)
}

func TestFilter_DepthBackground(t *testing.T) {
	raw := gridCloud(4, 1, 0, white)
	for i, z := range []float64{1, 4, 5, 9} {
		raw.Points[i].Depth = z
	}
	bg := DefaultBackgroundPolicy()
	bg.Kind = BackgroundDepth
	bg.MaxDepth = 4.5

	_, stats, err := Filter(raw, nil, Unbounded(), bg)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Background)
	assert.Equal(t, 2, stats.Kept)
}

func TestFilter_ValueBackgroundWithClosing(t *testing.T) {
	// A bright 9×9 object with a dark one-pixel hole, on a dark border.
	raw := gridCloud(15, 15, 5, black)
	for y := 3; y < 12; y++ {
		for x := 3; x < 12; x++ {
			raw.Points[y*15+x].Color = white
		}
	}
	raw.Points[7*15+7].Color = black

	bg := DefaultBackgroundPolicy()
	bg.Kind = BackgroundValue
	bg.CloseKernel = 3

	_, stats, err := Filter(raw, nil, Unbounded(), bg)
	require.NoError(t, err)
	assert.Equal(t, 81, stats.Kept, "the hole is filled by the closing")
	assert.Equal(t, 15*15-81, stats.Background)

	bg.CloseKernel = 0
	_, stats, err = Filter(raw, nil, Unbounded(), bg)
	require.NoError(t, err)
	assert.Equal(t, 80, stats.Kept)
}

func TestFilterer_Outliers(t *testing.T) {
	raw := gridCloud(9, 9, 5, white)
	spike := 4*9 + 4
	raw.Points[spike].Position.Z = 8
	raw.Points[spike].Depth = 8

	cfg := DefaultConfig()
	cfg.Outliers.Enabled = true
	f, err := New(cfg)
	require.NoError(t, err)

	out, stats, err := f.Apply(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Outliers)
	assert.Equal(t, 80, out.Size())
	for _, p := range out.Points {
		assert.InDelta(t, 5, p.Position.Z, 1e-12)
	}

	// Disabled by default.
	f, err = New(DefaultConfig())
	require.NoError(t, err)
	_, stats, err = f.Apply(raw, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Outliers)
	assert.Equal(t, 81, stats.Kept)
}

// sparseGrid keeps every step-th pixel of a w×h plane, as left by earlier stages on weak texture.
func sparseGrid(w, h, step int) *triangulate.Cloud {
	raw := gridCloud(w, h, 5, white)
	for i := range raw.Points {
		raw.Points[i].Valid = (i%w)%step == 0 && (i/w)%step == 0
	}
	return raw
}

func TestFilterer_OutliersSparsePlaneSurvives(t *testing.T) {
	raw := sparseGrid(40, 40, 8)

	cfg := DefaultConfig()
	cfg.Outliers.Enabled = true
	f, err := New(cfg)
	require.NoError(t, err)

	out, stats, err := f.Apply(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, 40*40-25, stats.Invalid)
	assert.Zero(t, stats.Outliers)
	assert.Equal(t, 25, stats.Kept)
	assert.Equal(t, 25, out.Size())
}

func TestFilterer_OutliersFarPointInSparseCloud(t *testing.T) {
	raw := sparseGrid(40, 40, 8)
	// A kept pixel lifted 4 units off the plane.
	far := 16*40 + 16
	raw.Points[far].Position.Z = 9
	raw.Points[far].Depth = 9
	// Its neighbors in the image are not its neighbors in space.
	raw.Points[far+1].Valid = true

	cfg := DefaultConfig()
	cfg.Outliers.Enabled = true
	f, err := New(cfg)
	require.NoError(t, err)

	out, stats, err := f.Apply(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Outliers)
	assert.Equal(t, 25, out.Size())
	for _, p := range out.Points {
		assert.InDelta(t, 5, p.Position.Z, 1e-12)
	}
}

func TestConfigValidation(t *testing.T) {
	var ice *utils.InvalidConfigurationError

	_, _, err := Filter(gridCloud(1, 1, 1, white), nil, ZRange{Min: 3, Max: 1}, DefaultBackgroundPolicy())
	require.True(t, errors.As(err, &ice))
	assert.Equal(t, "postfilter.z_range", ice.Field)

	assert.Error(t, ZRange{Min: math.NaN(), Max: 1}.Validate())
	assert.NoError(t, ZRange{Min: 2, Max: 2}.Validate())

	bad := []BackgroundPolicy{
		{Kind: BackgroundValue, ValueThreshold: 2},
		{Kind: BackgroundValue, ValueThreshold: 0.2, CloseKernel: 4},
		{Kind: BackgroundColor, ColorTolerance: -1},
		{Kind: BackgroundDepth, MaxDepth: 0},
		{Kind: BackgroundKind(7)},
	}
	for _, b := range bad {
		assert.Error(t, b.Validate(), b.Kind.String())
	}
	assert.NoError(t, DefaultBackgroundPolicy().Validate())

	assert.NoError(t, OutlierConfig{}.Validate())
	assert.Error(t, OutlierConfig{Enabled: true, Neighbors: 0}.Validate())
	assert.Error(t, OutlierConfig{Enabled: true, Neighbors: 3, StdRatio: -1}.Validate())
	assert.NoError(t, OutlierConfig{Enabled: true, Neighbors: 3}.Validate())

	_, _, err = Filter(nil, nil, Unbounded(), DefaultBackgroundPolicy())
	assert.Error(t, err)
}

func TestParseBackground(t *testing.T) {
	for name, want := range map[string]BackgroundKind{
		"": BackgroundNone, "none": BackgroundNone, "HSV": BackgroundValue, "value": BackgroundValue,
		"colour": BackgroundColor, "depth": BackgroundDepth,
	} {
		got, err := ParseBackground(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
	_, err := ParseBackground("sky")
	assert.Error(t, err)
}

func TestCloseMask(t *testing.T) {
	mask := []float32{
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
		1, 1, 0, 1, 1,
		1, 1, 1, 1, 1,
		1, 1, 1, 1, 1,
	}
	closed := closeMask(mask, 5, 5, 3)
	for i, v := range closed {
		assert.Equal(t, float32(1), v, "pixel %d", i)
	}
	assert.Equal(t, float32(0), mask[12], "input untouched")

	// A lone foreground pixel survives closing unchanged.
	single := make([]float32, 25)
	single[12] = 1
	closed = closeMask(single, 5, 5, 3)
	for i, v := range closed {
		want := float32(0)
		if i == 12 {
			want = 1
		}
		assert.Equal(t, want, v, "pixel %d", i)
	}
}

func TestDilateUsesDisc(t *testing.T) {
	single := make([]float32, 49)
	single[3*7+3] = 1
	out := make([]float32, 49)
	dilate(single, out, 7, 7, 5)

	count := 0
	for i, v := range out {
		dx, dy := i%7-3, i/7-3
		inside := dx*dx+dy*dy <= 4
		if inside {
			count++
		}
		assert.Equal(t, inside, v == 1, "offset (%d,%d)", dx, dy)
	}
	assert.Equal(t, 13, count)
	assert.Zero(t, out[1*7+1], "square corners are outside the disc")
}
