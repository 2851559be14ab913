package cmd

import (
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/twoview/internal/config"
)

// addStageFlags adds the rectification, matching and filtering flags shared by every command that
// runs the pipeline. It returns their config key bindings.
func addStageFlags(cmd *cobra.Command) map[string]string {
	d := config.DefaultConfig()
	f := cmd.Flags()

	f.String("kernel", d.Disparity.Kernel, "matching cost: ssd, sad or zncc")
	f.Int("patch-size", d.Disparity.PatchSize, "odd patch side length in pixels")
	f.Int("max-disparity", d.Disparity.MaxDisparity, "largest disparity searched (scene files may override)")
	f.Float64("tolerance", d.Disparity.ConsistencyTolerance, "left-right consistency tolerance in pixels")
	f.Bool("subpixel", d.Disparity.Subpixel, "refine disparities with a parabola fit")
	f.Int("disparity-workers", d.Disparity.Workers, "row workers per disparity search (0 = all CPUs)")
	f.Bool("grayscale", d.Grayscale, "match on luminance instead of RGB")

	f.Int("pad-x", d.Rectify.PadX, "horizontal padding of the rectified images")
	f.Int("pad-y", d.Rectify.PadY, "vertical padding of the rectified images")
	f.Bool("enforce-order", d.Rectify.EnforceOrder, "reject pairs whose right view is left of the left view")
	f.String("rectify-debug-dir", d.Rectify.DebugDir, "write rectified images to this directory")

	f.Float64("z-min", d.Filter.ZMin, "nearest depth kept")
	f.Float64("z-max", d.Filter.ZMax, "farthest depth kept (0 = unbounded)")
	f.String("background", d.Filter.Background, "background removal: none, value, color or depth")
	f.String("bg-color", d.Filter.Color, "background color for --background color")
	f.Float64("max-depth", d.Filter.MaxDepth, "depth cut-off for --background depth")
	f.Bool("outliers", d.Filter.Outliers.Enabled, "remove statistical outliers")
	f.String("frame", d.Output.Frame, "point cloud frame: camera or world")

	return map[string]string{
		"disparity.kernel":                "kernel",
		"disparity.patch_size":            "patch-size",
		"disparity.max_disparity":         "max-disparity",
		"disparity.consistency_tolerance": "tolerance",
		"disparity.subpixel":              "subpixel",
		"disparity.workers":               "disparity-workers",
		"grayscale":                       "grayscale",
		"rectify.pad_x":                   "pad-x",
		"rectify.pad_y":                   "pad-y",
		"rectify.enforce_order":           "enforce-order",
		"rectify.debug_dir":               "rectify-debug-dir",
		"filter.z_min":                    "z-min",
		"filter.z_max":                    "z-max",
		"filter.background":               "background",
		"filter.color":                    "bg-color",
		"filter.max_depth":                "max-depth",
		"filter.outliers.enabled":         "outliers",
		"output.frame":                    "frame",
	}
}
