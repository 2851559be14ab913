package rectify

import (
	"github.com/MeKo-Tech/twoview/internal/utils"
)

// Config holds configuration for epipolar rectification.
type Config struct {
	PadX           int     // columns cropped from each side of the rectified canvas
	PadY           int     // rows cropped from the top and bottom of the rectified canvas
	MaxOutputScale float64 // cap on canvas size relative to the input (0 = 2.0)
	EnforceOrder   bool    // reject pairs whose right camera lies on the left camera's -x side
	// Debug dumping
	DebugDir string // if non-empty, writes a side-by-side PNG of the rectified pair here
}

// DefaultConfig returns sensible defaults for rectification.
func DefaultConfig() Config {
	return Config{
		PadX:           0,
		PadY:           0,
		MaxOutputScale: 2.0,
		EnforceOrder:   false,
	}
}

// Validate checks the padding and scale bounds.
func (c Config) Validate() error {
	if c.PadX < 0 {
		return utils.InvalidConfig("rectify.pad_x", c.PadX, "must be >= 0")
	}
	if c.PadY < 0 {
		return utils.InvalidConfig("rectify.pad_y", c.PadY, "must be >= 0")
	}
	if c.MaxOutputScale != 0 && c.MaxOutputScale < 1 {
		return utils.InvalidConfig("rectify.max_output_scale", c.MaxOutputScale, "must be >= 1 or 0 for the default")
	}
	return nil
}

func (c Config) maxScale() float64 {
	if c.MaxOutputScale <= 0 {
		return 2.0
	}
	return c.MaxOutputScale
}
