package config

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/MeKo-Tech/twoview/internal/kernel"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/postfilter"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "ssd", cfg.Disparity.Kernel)
	assert.Equal(t, 5, cfg.Disparity.PatchSize)
	assert.Equal(t, 64, cfg.Disparity.MaxDisparity)
	assert.InDelta(t, 1.0, cfg.Disparity.ConsistencyTolerance, 0)
	assert.Equal(t, "none", cfg.Filter.Background)
	assert.InDelta(t, 45.0/255.0, cfg.Filter.ValueThreshold, 1e-12)
	assert.Equal(t, 11, cfg.Filter.CloseKernel)
	assert.Equal(t, 10, cfg.Filter.Outliers.Neighbors)
	assert.InDelta(t, 2.0, cfg.Filter.Outliers.StdRatio, 0)
	assert.Equal(t, "camera", cfg.Output.Frame)
	assert.Equal(t, "ply-binary", cfg.Output.CloudFormat)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []int{0, 1}, cfg.Batch.Views)

	require.NoError(t, cfg.Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	cfg.Server.Port = 0
	cfg.Disparity.Kernel = "census"

	err := cfg.Validate()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 3)
	assert.Contains(t, err.Error(), "invalid log level: loud")
	assert.Contains(t, err.Error(), "invalid server port: 0")
	assert.Contains(t, err.Error(), "census")
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"output format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"upload size", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max upload size"},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = -1 }, "invalid timeout"},
		{"rate limit", func(c *Config) { c.Server.RateLimit.RequestsPerHour = -1 }, "invalid rate limit"},
		{"batch workers", func(c *Config) { c.Batch.Workers = 0 }, "batch workers"},
		{"views arity", func(c *Config) { c.Batch.Views = []int{0} }, "exactly two"},
		{"views equal", func(c *Config) { c.Batch.Views = []int{2, 2} }, "distinct"},
		{"cloud format", func(c *Config) { c.Output.CloudFormat = "obj" }, "point cloud format"},
		{"even patch", func(c *Config) { c.Disparity.PatchSize = 4 }, "disparity.patch_size"},
		{"negative disparity", func(c *Config) { c.Disparity.MaxDisparity = -1 }, "disparity.max_disparity"},
		{"inverted z", func(c *Config) { c.Filter.ZMin, c.Filter.ZMax = 5, 1 }, "z_range"},
		{"background", func(c *Config) { c.Filter.Background = "sky" }, "postfilter.background"},
		{"color", func(c *Config) { c.Filter.Color = "blue" }, "invalid filter color"},
		{"depth bound", func(c *Config) { c.Filter.Background = "depth" }, "postfilter.max_depth"},
		{"frame", func(c *Config) { c.Output.Frame = "robot" }, "output.frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disparity.Kernel = "ZNCC"
	cfg.Disparity.PatchSize = 7
	cfg.Disparity.Subpixel = true
	cfg.Rectify.PadX = 3
	cfg.Rectify.EnforceOrder = true
	cfg.Rectify.DebugDir = "/tmp/rect"
	cfg.Filter.ZMin, cfg.Filter.ZMax = 1, 5
	cfg.Filter.Background = "color"
	cfg.Filter.Color = "#ff8000"
	cfg.Filter.Outliers.Enabled = true
	cfg.Grayscale = true
	cfg.Output.Frame = "World"
	cfg.Batch.Workers = 3

	pcfg, err := cfg.ToPipelineConfig()
	require.NoError(t, err)
	require.NoError(t, pcfg.Validate())

	assert.Equal(t, kernel.ZNCC, pcfg.Disparity.Kernel)
	assert.Equal(t, 7, pcfg.Disparity.PatchSize)
	assert.True(t, pcfg.Disparity.Subpixel)
	assert.Equal(t, 3, pcfg.Rectify.PadX)
	assert.True(t, pcfg.Rectify.EnforceOrder)
	assert.Equal(t, "/tmp/rect", pcfg.Rectify.DebugDir)
	assert.Equal(t, postfilter.ZRange{Min: 1, Max: 5}, pcfg.Filter.ZRange)
	assert.Equal(t, postfilter.BackgroundColor, pcfg.Filter.Background.Kind)
	assert.Equal(t, color.NRGBA{R: 255, G: 128, B: 0, A: 255}, pcfg.Filter.Background.Color)
	assert.True(t, pcfg.Filter.Outliers.Enabled)
	assert.True(t, pcfg.Grayscale)
	assert.Equal(t, pointcloud.FrameWorld, pcfg.OutputFrame)
	assert.Equal(t, 3, pcfg.Parallel.MaxWorkers)
}

func TestToPipelineConfig_Unbounded(t *testing.T) {
	cfg := DefaultConfig()
	pcfg, err := cfg.ToPipelineConfig()
	require.NoError(t, err)
	assert.True(t, math.IsInf(pcfg.Filter.ZRange.Max, 1))
	assert.True(t, math.IsInf(pcfg.Filter.Background.MaxDepth, 1))

	cfg.Filter.Background = "depth"
	cfg.Filter.MaxDepth = 12
	pcfg, err = cfg.ToPipelineConfig()
	require.NoError(t, err)
	assert.InDelta(t, 12.0, pcfg.Filter.Background.MaxDepth, 0)
}

func TestCloudFormatAndViewPair(t *testing.T) {
	cfg := DefaultConfig()
	f, err := cfg.CloudFormat()
	require.NoError(t, err)
	assert.Equal(t, pointcloud.PLYBinary, f)

	cfg.Output.CloudFormat = "pcd"
	f, err = cfg.CloudFormat()
	require.NoError(t, err)
	assert.Equal(t, pointcloud.PCDASCII, f)

	cfg.Batch.Views = []int{0, 3}
	l, r, err := cfg.ViewPair()
	require.NoError(t, err)
	assert.Equal(t, [2]int{0, 3}, [2]int{l, r})

	cfg.Batch.Views = nil
	l, r, err = cfg.ViewPair()
	require.NoError(t, err)
	assert.Equal(t, [2]int{0, 1}, [2]int{l, r})

	cfg.Batch.Views = []int{-1, 2}
	_, _, err = cfg.ViewPair()
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor(" #1e90ff ")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0x1e, G: 0x90, B: 0xff, A: 255}, c)

	c, err = ParseColor("#fff")
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, c)

	for _, bad := range []string{"", "red", "#gggggg"} {
		_, err := ParseColor(bad)
		assert.Error(t, err, bad)
	}
}
