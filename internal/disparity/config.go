package disparity

import (
	"math"

	"github.com/MeKo-Tech/twoview/internal/kernel"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

// ProgressFunc receives the number of finished scanlines out of total. It may be called from
// several goroutines at once.
type ProgressFunc func(done, total int)

// Config holds the block matching parameters.
type Config struct {
	Kernel               kernel.Kernel
	PatchSize            int     // odd window side length
	MaxDisparity         int     // largest disparity searched, inclusive
	ConsistencyTolerance float64 // maximum |l2r − r2l| in pixels for a consistent match
	Subpixel             bool    // parabola refinement around the integer minimum
	Workers              int     // rows searched in parallel (0 = GOMAXPROCS)

	Progress ProgressFunc `json:"-" yaml:"-"`
}

// DefaultConfig returns sensible defaults for block matching.
func DefaultConfig() Config {
	return Config{
		Kernel:               kernel.SSD,
		PatchSize:            5,
		MaxDisparity:         64,
		ConsistencyTolerance: 1,
		Subpixel:             false,
		Workers:              0,
	}
}

// Validate checks the matching parameters.
func (c Config) Validate() error {
	if !c.Kernel.Valid() {
		return utils.InvalidConfig("disparity.kernel", c.Kernel, "unknown kernel")
	}
	if c.PatchSize <= 0 {
		return utils.InvalidConfig("disparity.patch_size", c.PatchSize, "must be positive")
	}
	if c.PatchSize%2 == 0 {
		return utils.InvalidConfig("disparity.patch_size", c.PatchSize, "must be odd")
	}
	if c.MaxDisparity <= 0 {
		return utils.InvalidConfig("disparity.max_disparity", c.MaxDisparity, "must be positive")
	}
	if c.ConsistencyTolerance < 0 || math.IsNaN(c.ConsistencyTolerance) {
		return utils.InvalidConfig("disparity.consistency_tolerance", c.ConsistencyTolerance, "must be >= 0")
	}
	if c.Workers < 0 {
		return utils.InvalidConfig("disparity.workers", c.Workers, "must be >= 0")
	}
	return nil
}
