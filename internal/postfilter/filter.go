// Package postfilter turns the raw triangulated cloud into the final point cloud.
package postfilter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/mempool"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/triangulate"
)

// ErrSizeMismatch is returned when the mask and the raw cloud disagree in size.
var ErrSizeMismatch = errors.New("postfilter: mask and cloud sizes differ")

// Stats counts the points removed by each rule. A point is counted once, under the first rule
// that drops it, in the order of the fields below.
type Stats struct {
	Input        int `json:"input"`
	Invalid      int `json:"invalid"`
	Inconsistent int `json:"inconsistent"`
	OutOfRange   int `json:"out_of_range"`
	Background   int `json:"background"`
	Outliers     int `json:"outliers"`
	Kept         int `json:"kept"`
}

// Dropped returns the number of removed points.
func (s Stats) Dropped() int { return s.Input - s.Kept }

// Filter drops invalid, inconsistent, out-of-range and background points. The output keeps the
// raw cloud's row-major order.
func Filter(raw *triangulate.Cloud, mask *disparity.Mask, z ZRange, bg BackgroundPolicy) (*pointcloud.PointCloud, Stats, error) {
	f, err := New(Config{ZRange: z, Background: bg})
	if err != nil {
		return nil, Stats{}, err
	}
	return f.Apply(raw, mask)
}

// Filterer applies a validated Config.
type Filterer struct {
	cfg Config
}

// New validates cfg.
func New(cfg Config) (*Filterer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Filterer{cfg: cfg}, nil
}

// Config returns the filter configuration.
func (f *Filterer) Config() Config { return f.cfg }

// Apply runs every configured rule, then statistical outlier removal when enabled. A nil mask
// falls back to each point's Consistent tag.
func (f *Filterer) Apply(raw *triangulate.Cloud, mask *disparity.Mask) (*pointcloud.PointCloud, Stats, error) {
	if raw == nil {
		return nil, Stats{}, errors.New("postfilter: nil cloud")
	}
	if mask != nil && (mask.Width != raw.Width || mask.Height != raw.Height) {
		return nil, Stats{}, fmt.Errorf("%w: cloud %dx%d, mask %dx%d", ErrSizeMismatch,
			raw.Width, raw.Height, mask.Width, mask.Height)
	}

	stats := Stats{Input: len(raw.Points)}
	background := f.background(raw)
	keep := make([]bool, len(raw.Points))
	for i := range raw.Points {
		p := &raw.Points[i]
		consistent := p.Consistent
		if mask != nil {
			consistent = mask.Data[i]
		}
		switch {
		case !p.Valid:
			stats.Invalid++
		case !consistent:
			stats.Inconsistent++
		case !f.cfg.ZRange.Contains(p.Depth):
			stats.OutOfRange++
		case background(i, p):
			stats.Background++
		default:
			keep[i] = true
		}
	}

	if f.cfg.Outliers.Enabled {
		stats.Outliers = removeOutliers(raw, keep, f.cfg.Outliers)
	}

	out := pointcloud.New(len(raw.Points) - stats.Invalid)
	for i, ok := range keep {
		if ok {
			p := &raw.Points[i]
			out.Append(p.Position, p.Color)
		}
	}
	stats.Kept = out.Size()

	slog.Debug("Post-filter applied",
		"input", stats.Input,
		"kept", stats.Kept,
		"invalid", stats.Invalid,
		"inconsistent", stats.Inconsistent,
		"out_of_range", stats.OutOfRange,
		"background", stats.Background,
		"outliers", stats.Outliers,
		"policy", f.cfg.Background.Kind.String())
	return out, stats, nil
}

// background returns the per-point background test for the configured policy.
func (f *Filterer) background(raw *triangulate.Cloud) func(i int, p *triangulate.Point) bool {
	bg := f.cfg.Background
	switch bg.Kind {
	case BackgroundValue:
		isBG := valueBackground(raw, bg.ValueThreshold, bg.CloseKernel)
		return func(i int, _ *triangulate.Point) bool { return isBG[i] }
	case BackgroundColor:
		ref, _ := colorful.MakeColor(bg.Color)
		return func(_ int, p *triangulate.Point) bool {
			c, _ := colorful.MakeColor(p.Color)
			return c.DistanceLab(ref) <= bg.ColorTolerance
		}
	case BackgroundDepth:
		return func(_ int, p *triangulate.Point) bool { return p.Depth > bg.MaxDepth }
	default:
		return func(int, *triangulate.Point) bool { return false }
	}
}

// valueBackground marks pixels whose HSV value is at or below threshold, after closing the
// foreground mask so small dark holes inside the object are kept.
func valueBackground(raw *triangulate.Cloud, threshold float64, kernelSize int) []bool {
	fg := mempool.GetFloat32(len(raw.Points))
	defer mempool.PutFloat32(fg)
	for i := range raw.Points {
		c, _ := colorful.MakeColor(raw.Points[i].Color)
		if _, _, v := c.Hsv(); v > threshold {
			fg[i] = 1
		}
	}
	closed := closeMask(fg, raw.Width, raw.Height, kernelSize)
	defer mempool.PutFloat32(closed)

	isBG := make([]bool, len(raw.Points))
	for i, v := range closed {
		isBG[i] = v < 0.5
	}
	return isBG
}
