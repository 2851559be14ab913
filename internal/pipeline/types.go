package pipeline

import (
	"image"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/postfilter"
	"github.com/MeKo-Tech/twoview/internal/rectify"
	"github.com/MeKo-Tech/twoview/internal/triangulate"
)

// View is one calibrated input image. The pipeline never modifies it.
type View struct {
	Name   string
	Image  image.Image
	Camera camera.Camera
}

// Hints carries per-scene overrides, usually read from a dataset file.
type Hints struct {
	MaxDisparity int                `json:"max_disparity,omitempty" yaml:"max_disparity,omitempty"`
	ZRange       *postfilter.ZRange `json:"z_range,omitempty" yaml:"z_range,omitempty"`
}

// IsZero reports whether no override is set.
func (h Hints) IsZero() bool { return h.MaxDisparity <= 0 && h.ZRange == nil }

// Result is the outcome of one two-view reconstruction. The intermediate products are kept for
// visualization and debugging.
type Result struct {
	Name        string                 `json:"name,omitempty"`
	Cloud       *pointcloud.PointCloud `json:"-"`
	Raw         *triangulate.Cloud     `json:"-"`
	Disparity   *disparity.Result      `json:"-"`
	Rectified   *rectify.Pair          `json:"-"`
	FilterStats postfilter.Stats       `json:"filter_stats"`
	Summary     Summary                `json:"summary"`
	Processing  Processing             `json:"processing"`
}

// Processing holds per-stage wall times.
type Processing struct {
	RectifyNs     int64 `json:"rectify_ns"`
	DisparityNs   int64 `json:"disparity_ns"`
	TriangulateNs int64 `json:"triangulate_ns"`
	FilterNs      int64 `json:"filter_ns"`
	TotalNs       int64 `json:"total_ns"`
}

// Summary describes the rectified geometry and the reconstructed cloud.
type Summary struct {
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Focal            float64 `json:"focal"`
	Baseline         float64 `json:"baseline"`
	ValidDisparities int     `json:"valid_disparities"`
	Consistent       int     `json:"consistent"`
	DisparityMin     float64 `json:"disparity_min"`
	DisparityMax     float64 `json:"disparity_max"`
	Points           int     `json:"points"`
	Frame            string  `json:"frame"`
	DepthMin         float64 `json:"depth_min"`
	DepthMax         float64 `json:"depth_max"`
	DepthMean        float64 `json:"depth_mean"`
	DepthStdDev      float64 `json:"depth_stddev"`
	// Centroid is the mean point position in the rectified left camera frame.
	Centroid [3]float64 `json:"centroid"`
}
