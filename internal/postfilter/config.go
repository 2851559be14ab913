package postfilter

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/MeKo-Tech/twoview/internal/utils"
)

// ZRange bounds the accepted depth, inclusive on both ends.
type ZRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Unbounded accepts every positive depth.
func Unbounded() ZRange { return ZRange{Min: 0, Max: math.Inf(1)} }

// Contains reports whether z lies in the range.
func (z ZRange) Contains(v float64) bool { return v >= z.Min && v <= z.Max }

// Validate rejects NaN bounds and an inverted range.
func (z ZRange) Validate() error {
	if math.IsNaN(z.Min) || math.IsNaN(z.Max) {
		return utils.InvalidConfig("postfilter.z_range", fmt.Sprintf("[%g, %g]", z.Min, z.Max), "bounds must be numbers")
	}
	if z.Min > z.Max {
		return utils.InvalidConfig("postfilter.z_range", fmt.Sprintf("[%g, %g]", z.Min, z.Max), "z_min must be <= z_max")
	}
	return nil
}

// BackgroundKind selects the background heuristic.
type BackgroundKind int

const (
	BackgroundNone  BackgroundKind = iota
	BackgroundValue                // dark pixels by HSV value
	BackgroundColor                // pixels close to a reference color in Lab
	BackgroundDepth                // points beyond a depth
)

func (k BackgroundKind) String() string {
	switch k {
	case BackgroundNone:
		return "none"
	case BackgroundValue:
		return "value"
	case BackgroundColor:
		return "color"
	case BackgroundDepth:
		return "depth"
	default:
		return fmt.Sprintf("background(%d)", int(k))
	}
}

// ParseBackground maps a policy name to a kind.
func ParseBackground(name string) (BackgroundKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return BackgroundNone, nil
	case "value", "hsv":
		return BackgroundValue, nil
	case "color", "colour":
		return BackgroundColor, nil
	case "depth":
		return BackgroundDepth, nil
	default:
		return 0, utils.InvalidConfig("postfilter.background", name, "want none, value, color or depth")
	}
}

// BackgroundPolicy configures background removal. Only the fields of the selected kind are used.
type BackgroundPolicy struct {
	Kind BackgroundKind

	ValueThreshold float64 // value: HSV V at or below this is background, in [0,1]
	CloseKernel    int     // value: closing kernel for the foreground mask, odd, 0 disables

	Color          color.NRGBA // color: reference background color
	ColorTolerance float64     // color: Lab distance at or below this is background

	MaxDepth float64 // depth: points with Z above this are background
}

// DefaultBackgroundPolicy disables background removal but carries the usual parameters.
func DefaultBackgroundPolicy() BackgroundPolicy {
	return BackgroundPolicy{
		Kind:           BackgroundNone,
		ValueThreshold: 45.0 / 255.0,
		CloseKernel:    11,
		Color:          color.NRGBA{A: 255},
		ColorTolerance: 0.1,
		MaxDepth:       math.Inf(1),
	}
}

// Validate checks the parameters of the selected kind.
func (b BackgroundPolicy) Validate() error {
	switch b.Kind {
	case BackgroundNone:
		return nil
	case BackgroundValue:
		if b.ValueThreshold < 0 || b.ValueThreshold > 1 || math.IsNaN(b.ValueThreshold) {
			return utils.InvalidConfig("postfilter.value_threshold", b.ValueThreshold, "must be in [0,1]")
		}
		if b.CloseKernel < 0 || (b.CloseKernel > 0 && b.CloseKernel%2 == 0) {
			return utils.InvalidConfig("postfilter.close_kernel", b.CloseKernel, "must be odd or 0")
		}
	case BackgroundColor:
		if b.ColorTolerance < 0 || math.IsNaN(b.ColorTolerance) {
			return utils.InvalidConfig("postfilter.color_tolerance", b.ColorTolerance, "must be >= 0")
		}
	case BackgroundDepth:
		if !(b.MaxDepth > 0) {
			return utils.InvalidConfig("postfilter.max_depth", b.MaxDepth, "must be positive")
		}
	default:
		return utils.InvalidConfig("postfilter.background", b.Kind, "unknown policy")
	}
	return nil
}

// OutlierConfig configures statistical outlier removal.
type OutlierConfig struct {
	Enabled   bool
	Neighbors int     // nearest neighbors averaged per point
	StdRatio  float64 // keep points within mean + StdRatio·std
}

// DefaultOutlierConfig returns the usual parameters with removal disabled.
func DefaultOutlierConfig() OutlierConfig {
	return OutlierConfig{
		Enabled:   false,
		Neighbors: 10,
		StdRatio:  2.0,
	}
}

// Validate checks the outlier parameters when removal is enabled.
func (o OutlierConfig) Validate() error {
	if !o.Enabled {
		return nil
	}
	if o.Neighbors <= 0 {
		return utils.InvalidConfig("postfilter.outliers.neighbors", o.Neighbors, "must be positive")
	}
	if o.StdRatio < 0 || math.IsNaN(o.StdRatio) {
		return utils.InvalidConfig("postfilter.outliers.std_ratio", o.StdRatio, "must be >= 0")
	}
	return nil
}

// Config bundles every post-filter stage.
type Config struct {
	ZRange     ZRange
	Background BackgroundPolicy
	Outliers   OutlierConfig
}

// DefaultConfig keeps every valid, consistent point.
func DefaultConfig() Config {
	return Config{
		ZRange:     Unbounded(),
		Background: DefaultBackgroundPolicy(),
		Outliers:   DefaultOutlierConfig(),
	}
}

// Validate checks all stages.
func (c Config) Validate() error {
	if err := c.ZRange.Validate(); err != nil {
		return err
	}
	if err := c.Background.Validate(); err != nil {
		return err
	}
	return c.Outliers.Validate()
}
