package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/raster"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

// StereoFixture is a synthetic stereo scene written to disk.
type StereoFixture struct {
	Dir       string
	LeftPath  string
	RightPath string
	RigPath   string // YAML rig file
	ParPath   string // Middlebury-style parameter file

	Left, Right   *raster.Image
	CamL, CamR    camera.Camera
	Disparity     int
	Depth         float64
	MaxDisparity  int
	Focal         float64
	Baseline      float64
	Width, Height int
}

// FixtureOptions configures WriteStereoFixture.
type FixtureOptions struct {
	Width, Height int
	Square        int
	Disparity     int
	MaxDisparity  int
	Focal         float64
	Baseline      float64
}

// DefaultFixtureOptions describes a 64×64 checkerboard pair at disparity 4.
func DefaultFixtureOptions() FixtureOptions {
	return FixtureOptions{
		Width:        64,
		Height:       64,
		Square:       3,
		Disparity:    4,
		MaxDisparity: 8,
		Focal:        100,
		Baseline:     0.2,
	}
}

// WriteStereoFixture renders a checkerboard pair into dir together with a YAML rig file and a
// Middlebury-style parameter file describing the same parallel rig.
func WriteStereoFixture(t *testing.T, dir string, opts FixtureOptions) StereoFixture {
	t.Helper()
	require.NoError(t, EnsureDir(dir))

	left, right := CheckerboardPair(opts.Width, opts.Height, opts.Square, opts.Disparity)
	k := StereoIntrinsics(opts.Focal, opts.Width, opts.Height)
	camL, camR := ParallelRig(k, opts.Baseline)

	fx := StereoFixture{
		Dir:          dir,
		LeftPath:     filepath.Join(dir, "left.png"),
		RightPath:    filepath.Join(dir, "right.png"),
		RigPath:      filepath.Join(dir, "rig.yaml"),
		ParPath:      filepath.Join(dir, "scene_par.txt"),
		Left:         left,
		Right:        right,
		CamL:         camL,
		CamR:         camR,
		Disparity:    opts.Disparity,
		Depth:        PlaneDepth(opts.Focal, opts.Baseline, opts.Disparity),
		MaxDisparity: opts.MaxDisparity,
		Focal:        opts.Focal,
		Baseline:     opts.Baseline,
		Width:        opts.Width,
		Height:       opts.Height,
	}

	require.NoError(t, utils.SaveImage(fx.LeftPath, left.ToNRGBA()))
	require.NoError(t, utils.SaveImage(fx.RightPath, right.ToNRGBA()))
	require.NoError(t, os.WriteFile(fx.RigPath, []byte(rigYAML(fx)), 0o600))
	require.NoError(t, os.WriteFile(fx.ParPath, []byte(parFile(fx)), 0o600))
	return fx
}

func rigYAML(fx StereoFixture) string {
	view := func(image string, c camera.Camera) string {
		return fmt.Sprintf(`  image: %s
  intrinsics:
    fx: %g
    fy: %g
    cx: %g
    cy: %g
  rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
  translation: [%g, %g, %g]
`, filepath.Base(image), c.K.Fx, c.K.Fy, c.K.Cx, c.K.Cy, c.T.X, c.T.Y, c.T.Z)
	}
	var b strings.Builder
	b.WriteString("name: synthetic-checkerboard\n")
	fmt.Fprintf(&b, "max_disparity: %d\n", fx.MaxDisparity)
	fmt.Fprintf(&b, "z_range: [%g, %g]\n", fx.Depth/2, fx.Depth*2)
	b.WriteString("left:\n")
	b.WriteString(view(fx.LeftPath, fx.CamL))
	b.WriteString("right:\n")
	b.WriteString(view(fx.RightPath, fx.CamR))
	return b.String()
}

func parFile(fx StereoFixture) string {
	line := func(image string, c camera.Camera) string {
		return fmt.Sprintf("%s %g 0 %g 0 %g %g 0 0 1 1 0 0 0 1 0 0 0 1 %g %g %g\n",
			filepath.Base(image), c.K.Fx, c.K.Cx, c.K.Fy, c.K.Cy, c.T.X, c.T.Y, c.T.Z)
	}
	return "2\n" + line(fx.LeftPath, fx.CamL) + line(fx.RightPath, fx.CamR)
}
