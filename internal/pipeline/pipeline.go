// Package pipeline composes rectification, disparity search, triangulation and post-filtering
// into the two-view reconstruction flow.
package pipeline

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/kernel"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/postfilter"
	"github.com/MeKo-Tech/twoview/internal/rectify"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

// Config holds configuration for the reconstruction pipeline and its stages.
type Config struct {
	Rectify   rectify.Config
	Disparity disparity.Config
	Filter    postfilter.Config

	Grayscale   bool             // match on luminance instead of RGB
	OutputFrame pointcloud.Frame // frame of the returned cloud

	// Multi-pair processing
	Parallel ParallelConfig
}

// DefaultConfig returns the stage defaults with the cloud in the rectified left camera frame.
func DefaultConfig() Config {
	return Config{
		Rectify:     rectify.DefaultConfig(),
		Disparity:   disparity.DefaultConfig(),
		Filter:      postfilter.DefaultConfig(),
		Grayscale:   false,
		OutputFrame: pointcloud.FrameCamera,
		Parallel:    DefaultParallelConfig(),
	}
}

// Validate checks every stage configuration.
func (c Config) Validate() error {
	if err := c.Rectify.Validate(); err != nil {
		return err
	}
	if err := c.Disparity.Validate(); err != nil {
		return err
	}
	if err := c.Filter.Validate(); err != nil {
		return err
	}
	switch c.OutputFrame {
	case pointcloud.FrameCamera, pointcloud.FrameWorld:
	default:
		return utils.InvalidConfig("output.frame", c.OutputFrame, "want camera or world")
	}
	if c.Parallel.MaxWorkers < 0 {
		return utils.InvalidConfig("parallel.max_workers", c.Parallel.MaxWorkers, "must be >= 0")
	}
	return nil
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFrom starts from an existing configuration.
func NewBuilderFrom(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithKernel sets the matching cost.
func (b *Builder) WithKernel(k kernel.Kernel) *Builder {
	b.cfg.Disparity.Kernel = k
	return b
}

// WithPatchSize sets the matching window side.
func (b *Builder) WithPatchSize(n int) *Builder {
	if n > 0 {
		b.cfg.Disparity.PatchSize = n
	}
	return b
}

// WithMaxDisparity sets the disparity search bound.
func (b *Builder) WithMaxDisparity(d int) *Builder {
	if d > 0 {
		b.cfg.Disparity.MaxDisparity = d
	}
	return b
}

// WithTolerance sets the left-right consistency tolerance in pixels.
func (b *Builder) WithTolerance(tol float64) *Builder {
	b.cfg.Disparity.ConsistencyTolerance = tol
	return b
}

// WithSubpixel toggles parabola refinement.
func (b *Builder) WithSubpixel(enabled bool) *Builder {
	b.cfg.Disparity.Subpixel = enabled
	return b
}

// WithWorkers bounds the row workers of the disparity search (0 = GOMAXPROCS).
func (b *Builder) WithWorkers(n int) *Builder {
	if n >= 0 {
		b.cfg.Disparity.Workers = n
	}
	return b
}

// WithGrayscale matches on luminance.
func (b *Builder) WithGrayscale(enabled bool) *Builder {
	b.cfg.Grayscale = enabled
	return b
}

// WithZRange keeps points with depth in [zMin, zMax].
func (b *Builder) WithZRange(zMin, zMax float64) *Builder {
	b.cfg.Filter.ZRange = postfilter.ZRange{Min: zMin, Max: zMax}
	return b
}

// WithBackground sets the background policy.
func (b *Builder) WithBackground(policy postfilter.BackgroundPolicy) *Builder {
	b.cfg.Filter.Background = policy
	return b
}

// WithOutliers sets statistical outlier removal.
func (b *Builder) WithOutliers(o postfilter.OutlierConfig) *Builder {
	b.cfg.Filter.Outliers = o
	return b
}

// WithOutputFrame selects the frame of the returned cloud.
func (b *Builder) WithOutputFrame(f pointcloud.Frame) *Builder {
	if f != "" {
		b.cfg.OutputFrame = f
	}
	return b
}

// WithRectifyPadding crops the rectified canvas.
func (b *Builder) WithRectifyPadding(padX, padY int) *Builder {
	b.cfg.Rectify.PadX = padX
	b.cfg.Rectify.PadY = padY
	return b
}

// WithEnforceOrder rejects pairs whose right view lies left of the left view.
func (b *Builder) WithEnforceOrder(enabled bool) *Builder {
	b.cfg.Rectify.EnforceOrder = enabled
	return b
}

// WithRectifyDebugDir dumps rectified pairs into dir.
func (b *Builder) WithRectifyDebugDir(dir string) *Builder {
	b.cfg.Rectify.DebugDir = dir
	return b
}

// WithParallelWorkers sets the number of pairs processed concurrently in a batch.
func (b *Builder) WithParallelWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.Parallel.MaxWorkers = n
	}
	return b
}

// WithProgressCallback reports finished pairs during batch processing.
func (b *Builder) WithProgressCallback(cb ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = cb
	return b
}

// Config returns the current builder configuration.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration without building.
func (b *Builder) Validate() error { return b.cfg.Validate() }

// Build validates the configuration and creates the stages.
func (b *Builder) Build() (*Pipeline, error) {
	return New(b.cfg)
}

// Pipeline runs two-view reconstruction with a fixed configuration. It holds no per-call state
// and is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	rectifier *rectify.Rectifier
	filter    *postfilter.Filterer
	profiler  *Profiler
}

// New validates cfg and fails fast on any invalid stage parameter.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rx, err := rectify.New(cfg.Rectify)
	if err != nil {
		return nil, fmt.Errorf("init rectifier: %w", err)
	}
	f, err := postfilter.New(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("init post-filter: %w", err)
	}
	return &Pipeline{cfg: cfg, rectifier: rx, filter: f, profiler: &Profiler{}}, nil
}

// WithHints returns a pipeline whose disparity bound and depth range follow h where set.
func (p *Pipeline) WithHints(h Hints) (*Pipeline, error) {
	if h.IsZero() {
		return p, nil
	}
	cfg := p.cfg
	if h.MaxDisparity > 0 {
		cfg.Disparity.MaxDisparity = h.MaxDisparity
	}
	if h.ZRange != nil {
		cfg.Filter.ZRange = *h.ZRange
	}
	np, err := New(cfg)
	if err != nil {
		return nil, err
	}
	np.profiler = p.profiler
	return np, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Profiler returns the cumulative stage timings of this pipeline.
func (p *Pipeline) Profiler() *Profiler { return p.profiler }

// Close is a no-op; the stages hold no external resources.
func (p *Pipeline) Close() error { return nil }

// Info describes the configuration for /config and verbose CLI output.
func (p *Pipeline) Info() map[string]any {
	d := p.cfg.Disparity
	f := p.cfg.Filter
	return map[string]any{
		"disparity": map[string]any{
			"kernel":                d.Kernel.String(),
			"patch_size":            d.PatchSize,
			"max_disparity":         d.MaxDisparity,
			"consistency_tolerance": d.ConsistencyTolerance,
			"subpixel":              d.Subpixel,
			"workers":               d.Workers,
		},
		"rectify": map[string]any{
			"pad_x":            p.cfg.Rectify.PadX,
			"pad_y":            p.cfg.Rectify.PadY,
			"max_output_scale": p.cfg.Rectify.MaxOutputScale,
			"enforce_order":    p.cfg.Rectify.EnforceOrder,
		},
		"filter": map[string]any{
			"z_min":             finite(f.ZRange.Min),
			"z_max":             finite(f.ZRange.Max),
			"background":        f.Background.Kind.String(),
			"outliers":          f.Outliers.Enabled,
			"outlier_neighbors": f.Outliers.Neighbors,
			"outlier_std_ratio": f.Outliers.StdRatio,
		},
		"grayscale":    p.cfg.Grayscale,
		"output_frame": string(p.cfg.OutputFrame),
		"parallel": map[string]any{
			"max_workers":           p.cfg.Parallel.MaxWorkers,
			"has_progress_callback": p.cfg.Parallel.ProgressCallback != nil,
		},
		"profile": p.profiler.Snapshot(),
	}
}

// finite maps infinities to nil so Info stays JSON-encodable.
func finite(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}
