package config

import (
	"fmt"
	"image/color"
	"math"
	"slices"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/multierr"

	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/kernel"
	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/postfilter"
	"github.com/MeKo-Tech/twoview/internal/rectify"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	dcfg := disparity.DefaultConfig()
	rcfg := rectify.DefaultConfig()
	bg := postfilter.DefaultBackgroundPolicy()
	out := postfilter.DefaultOutlierConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Disparity: DisparityConfig{
			Kernel:               dcfg.Kernel.String(),
			PatchSize:            dcfg.PatchSize,
			MaxDisparity:         dcfg.MaxDisparity,
			ConsistencyTolerance: dcfg.ConsistencyTolerance,
			Subpixel:             dcfg.Subpixel,
			Workers:              dcfg.Workers,
		},
		Rectify: RectifyConfig{
			PadX:           rcfg.PadX,
			PadY:           rcfg.PadY,
			MaxOutputScale: rcfg.MaxOutputScale,
			EnforceOrder:   rcfg.EnforceOrder,
		},
		Filter: FilterConfig{
			Background:     bg.Kind.String(),
			ValueThreshold: bg.ValueThreshold,
			CloseKernel:    bg.CloseKernel,
			Color:          "#000000",
			ColorTolerance: bg.ColorTolerance,
			Outliers: OutlierConfig{
				Enabled:   out.Enabled,
				Neighbors: out.Neighbors,
				StdRatio:  out.StdRatio,
			},
		},
		Grayscale: false,
		Output: OutputConfig{
			Format:      "text",
			Frame:       string(pointcloud.FrameCamera),
			CloudFormat: pointcloud.PLYBinary.String(),
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      120,
			ShutdownTimeout: 10,
		},
		Batch: BatchConfig{
			Workers:         4,
			ContinueOnError: false,
			Views:           []int{0, 1},
		},
	}
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs error

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		errs = multierr.Append(errs, fmt.Errorf("invalid log level: %s (must be one of: %s)",
			c.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		errs = multierr.Append(errs, fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(validFormats, ", ")))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB))
	}
	if c.Server.TimeoutSec <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec))
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDayMB < 0 {
		errs = multierr.Append(errs, fmt.Errorf("invalid rate limit: %+v (limits must be >= 0)", rl))
	}
	if c.Batch.Workers <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers))
	}
	if _, _, err := c.ViewPair(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := c.CloudFormat(); err != nil {
		errs = multierr.Append(errs, err)
	}

	pcfg, err := c.ToPipelineConfig()
	if err != nil {
		return multierr.Append(errs, err)
	}
	return multierr.Append(errs, pcfg.Validate())
}

// ToPipelineConfig converts the config to the internal pipeline configuration format.
func (c *Config) ToPipelineConfig() (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()

	var errs error
	k, err := kernel.Parse(c.Disparity.Kernel)
	errs = multierr.Append(errs, err)
	cfg.Disparity.Kernel = k
	cfg.Disparity.PatchSize = c.Disparity.PatchSize
	cfg.Disparity.MaxDisparity = c.Disparity.MaxDisparity
	cfg.Disparity.ConsistencyTolerance = c.Disparity.ConsistencyTolerance
	cfg.Disparity.Subpixel = c.Disparity.Subpixel
	cfg.Disparity.Workers = c.Disparity.Workers

	cfg.Rectify = c.toRectifyConfig()

	filter, err := c.toFilterConfig()
	errs = multierr.Append(errs, err)
	cfg.Filter = filter

	cfg.Grayscale = c.Grayscale
	cfg.OutputFrame = pointcloud.Frame(strings.ToLower(c.Output.Frame))
	if cfg.OutputFrame == "" {
		cfg.OutputFrame = pointcloud.FrameCamera
	}
	cfg.Parallel.MaxWorkers = c.Batch.Workers

	return cfg, errs
}

// toRectifyConfig converts to rectify.Config.
func (c *Config) toRectifyConfig() rectify.Config {
	cfg := rectify.DefaultConfig()
	cfg.PadX = c.Rectify.PadX
	cfg.PadY = c.Rectify.PadY
	cfg.MaxOutputScale = c.Rectify.MaxOutputScale
	cfg.EnforceOrder = c.Rectify.EnforceOrder
	if c.Rectify.DebugDir != "" {
		cfg.DebugDir = c.Rectify.DebugDir
	}
	return cfg
}

// toFilterConfig converts to postfilter.Config.
func (c *Config) toFilterConfig() (postfilter.Config, error) {
	f := c.Filter
	cfg := postfilter.DefaultConfig()

	cfg.ZRange = postfilter.ZRange{Min: f.ZMin, Max: unbounded(f.ZMax)}

	kind, err := postfilter.ParseBackground(f.Background)
	if err != nil {
		return cfg, err
	}
	cfg.Background.Kind = kind
	cfg.Background.ValueThreshold = f.ValueThreshold
	cfg.Background.CloseKernel = f.CloseKernel
	cfg.Background.ColorTolerance = f.ColorTolerance
	// depth removal needs an explicit bound
	cfg.Background.MaxDepth = f.MaxDepth
	if kind != postfilter.BackgroundDepth {
		cfg.Background.MaxDepth = unbounded(f.MaxDepth)
	}
	if f.Color != "" {
		col, err := ParseColor(f.Color)
		if err != nil {
			return cfg, err
		}
		cfg.Background.Color = col
	}

	cfg.Outliers = postfilter.OutlierConfig{
		Enabled:   f.Outliers.Enabled,
		Neighbors: f.Outliers.Neighbors,
		StdRatio:  f.Outliers.StdRatio,
	}
	return cfg, nil
}

// CloudFormat parses output.cloud_format.
func (c *Config) CloudFormat() (pointcloud.Format, error) {
	if c.Output.CloudFormat == "" {
		return pointcloud.PLYBinary, nil
	}
	return pointcloud.ParseFormat(c.Output.CloudFormat)
}

// ViewPair returns the Middlebury view indices used by batch and reconstruct.
func (c *Config) ViewPair() (int, int, error) {
	v := c.Batch.Views
	if len(v) == 0 {
		return 0, 1, nil
	}
	if len(v) != 2 {
		return 0, 0, fmt.Errorf("invalid batch views: %v (want exactly two indices)", v)
	}
	if v[0] < 0 || v[1] < 0 || v[0] == v[1] {
		return 0, 0, fmt.Errorf("invalid batch views: %v (must be distinct and non-negative)", v)
	}
	return v[0], v[1], nil
}

// ParseColor parses a hex color such as "#1e90ff".
func ParseColor(s string) (color.NRGBA, error) {
	c, err := colorful.Hex(strings.TrimSpace(s))
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid filter color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

func unbounded(v float64) float64 {
	if v == 0 {
		return math.Inf(1)
	}
	return v
}
