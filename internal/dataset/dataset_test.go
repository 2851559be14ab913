package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/testutil"
)

func TestLoadRig(t *testing.T) {
	fx := testutil.WriteStereoFixture(t, testutil.CreateTempDir(t), testutil.DefaultFixtureOptions())

	sc, err := Load(fx.RigPath, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "synthetic-checkerboard", sc.Name)
	assert.Equal(t, fx.RigPath, sc.Source)
	assert.Equal(t, "left", sc.Left.Name)
	assert.Equal(t, "right", sc.Right.Name)
	assert.Equal(t, fx.Width, sc.Left.Image.Bounds().Dx())
	assert.InDelta(t, fx.Focal, sc.Left.Camera.K.Fx, 1e-12)
	assert.InDelta(t, -fx.Baseline, sc.Right.Camera.T.X, 1e-12)

	assert.Equal(t, fx.MaxDisparity, sc.Hints.MaxDisparity)
	require.NotNil(t, sc.Hints.ZRange)
	assert.InDelta(t, fx.Depth/2, sc.Hints.ZRange.Min, 1e-12)
	assert.InDelta(t, fx.Depth*2, sc.Hints.ZRange.Max, 1e-12)

	job := sc.Job()
	assert.Equal(t, sc.Name, job.Name)
	assert.Equal(t, sc.Hints, job.Hints)
}

func TestLoadMiddlebury(t *testing.T) {
	fx := testutil.WriteStereoFixture(t, testutil.CreateTempDir(t), testutil.DefaultFixtureOptions())

	sc, err := Load(fx.ParPath, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "scene[0,1]", sc.Name)
	assert.True(t, sc.Hints.IsZero())
	assert.InDelta(t, fx.Width/2, sc.Left.Camera.K.Cx, 1e-12)
	assert.True(t, camera.IsRotation(sc.Right.Camera.R, 1e-12))

	for _, pair := range [][2]int{{0, 0}, {0, 2}, {-1, 1}} {
		_, err = LoadMiddlebury(fx.ParPath, pair[0], pair[1])
		assert.ErrorIs(t, err, ErrViewIndex, "%v", pair)
	}
}

// The loaded scene reconstructs the fixture's plane.
func TestScene_Reconstructs(t *testing.T) {
	fx := testutil.WriteStereoFixture(t, testutil.CreateTempDir(t), testutil.DefaultFixtureOptions())
	sc, err := LoadRig(fx.RigPath)
	require.NoError(t, err)

	p, err := pipeline.New(pipeline.DefaultConfig())
	require.NoError(t, err)
	p, err = p.WithHints(sc.Hints)
	require.NoError(t, err)

	res, err := p.TwoView(context.Background(), sc.Left, sc.Right)
	require.NoError(t, err)
	onPlane := 0
	for _, pt := range res.Cloud.Points {
		if pt.Position.Z > fx.Depth-1e-9 && pt.Position.Z < fx.Depth+1e-9 {
			onPlane++
		}
	}
	// Every pixel with a full patch and an in-bounds match lands on the plane.
	assert.Equal(t, (fx.Width-4)*(fx.Width-4-fx.Disparity), onPlane)
}

func TestParsePar(t *testing.T) {
	const good = `2
a.png 100 0 32 0 100 24 0 0 1 1 0 0 0 1 0 0 0 1 0 0 0

b.png 100 0 32 0 100 24 0 0 1 1 0 0 0 1 0 0 0 1.00001 -0.1 0 0
`
	views, err := ParsePar(strings.NewReader(good))
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "b.png", views[1].Image)
	assert.InDelta(t, -0.1, views[1].Camera.T.X, 1e-12)
	assert.True(t, camera.IsRotation(views[1].Camera.R, 1e-9), "rounded rotation is re-orthonormalized")

	bad := map[string]string{
		"empty":       "",
		"count":       "two\n",
		"short line":  "1\na.png 1 2 3\n",
		"not numeric": "1\na.png 100 0 32 0 100 24 0 0 1 1 0 0 0 1 0 0 0 1 0 0 x\n",
		"count off":   "3\na.png 100 0 32 0 100 24 0 0 1 1 0 0 0 1 0 0 0 1 0 0 0\n",
		"skewed R":    "1\na.png 100 0 32 0 100 24 0 0 1 1 0.5 0 0 1 0 0 0 1 0 0 0\n",
		"zero focal":  "1\na.png 0 0 32 0 100 24 0 0 1 1 0 0 0 1 0 0 0 1 0 0 0\n",
	}
	for name, in := range bad {
		_, err := ParsePar(strings.NewReader(in))
		assert.Error(t, err, name)
	}
	_, err = ParsePar(strings.NewReader("1\na.png 100 0 32 0 100 24 0 0 1 1 0.5 0 0 1 0 0 0 1 0 0 0\n"))
	assert.True(t, errors.Is(err, camera.ErrInvalidCamera))
}

func TestParseRig_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"unknown key":   "name: x\ncolor: red\n",
		"z_range arity": "z_range: [1]\nleft: {intrinsics: {fx: 1, fy: 1}}\nright: {intrinsics: {fx: 1, fy: 1}, translation: [1, 0, 0]}\n",
		"bad rotation":  "left: {intrinsics: {fx: 1, fy: 1}, rotation: [1, 0, 0]}\nright: {intrinsics: {fx: 1, fy: 1}}\n",
		"no focal":      "left: {intrinsics: {cx: 1}}\nright: {intrinsics: {fx: 1, fy: 1}}\n",
		"inverted z":    "z_range: [5, 1]\nleft: {intrinsics: {fx: 1, fy: 1}}\nright: {intrinsics: {fx: 1, fy: 1}}\n",
	}
	for name, doc := range cases {
		rig, err := ParseRig(strings.NewReader(doc))
		if err == nil {
			_, err = rig.Scene(nil, nil)
		}
		assert.Error(t, err, name)
	}

	rig, err := ParseRig(strings.NewReader("left: {intrinsics: {fx: 5, fy: 5}}\nright: {intrinsics: {fx: 5, fy: 5}, translation: [-1, 0, 0]}\n"))
	require.NoError(t, err)
	sc, err := rig.Scene(nil, nil)
	require.NoError(t, err)
	assert.True(t, camera.IsRotation(sc.Left.Camera.R, 0), "missing rotation is identity")
	assert.True(t, sc.Hints.IsZero())
}

func TestLoad_UnknownFormat(t *testing.T) {
	_, err := Load("scene.json", 0, 1)
	assert.ErrorIs(t, err, ErrFormat)

	dir := testutil.CreateTempDir(t)
	rig := filepath.Join(dir, "rig.yaml")
	require.NoError(t, os.WriteFile(rig, []byte("left: {image: missing.png, intrinsics: {fx: 1, fy: 1}}\n"), 0o600))
	_, err = Load(rig, 0, 1)
	assert.Error(t, err)
}

func TestDiscover(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	sub := filepath.Join(dir, "nested")
	require.NoError(t, testutil.EnsureDir(sub))
	for _, name := range []string{"a.yaml", "b_par.txt", "notes.txt", "img.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.yml"), nil, 0o600))

	files, err := Discover([]string{dir}, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b_par.txt")}, files)

	files, err = Discover([]string{dir}, true)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	explicit := filepath.Join(dir, "notes.txt")
	files, err = Discover([]string{explicit}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{explicit}, files)

	_, err = Discover([]string{filepath.Join(dir, "missing")}, false)
	assert.Error(t, err)
}
