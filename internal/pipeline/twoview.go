package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/raster"
	"github.com/MeKo-Tech/twoview/internal/triangulate"
)

// ErrMissingImage is returned when a view carries no image.
var ErrMissingImage = errors.New("pipeline: view has no image")

// TwoView reconstructs a colored point cloud from two calibrated views.
func (p *Pipeline) TwoView(ctx context.Context, left, right View) (*Result, error) {
	return p.TwoViewWithProgress(ctx, left, right, nil)
}

// TwoViewWithProgress is TwoView with cb receiving one report per finished disparity row, in
// both search directions.
func (p *Pipeline) TwoViewWithProgress(ctx context.Context, left, right View, cb ProgressCallback) (res *Result, err error) {
	defer func() {
		observePair(err)
		if cb != nil {
			if err != nil {
				cb.OnError(0, err)
			} else {
				cb.OnComplete()
			}
		}
	}()

	if left.Image == nil || right.Image == nil {
		return nil, ErrMissingImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res = &Result{Name: pairName(left, right)}
	clock := newStageClock(&res.Processing)

	pair, err := p.rectifier.Rectify(raster.FromImage(left.Image), raster.FromImage(right.Image), left.Camera, right.Camera)
	if err != nil {
		return nil, fmt.Errorf("rectify %s: %w", res.Name, err)
	}
	res.Rectified = pair
	clock.lap(stageRectify)

	matchL, matchR := pair.Left, pair.Right
	if p.cfg.Grayscale {
		matchL, matchR = matchL.Gray(), matchR.Gray()
	}
	dcfg := p.cfg.Disparity
	dcfg.Progress = chainProgress(dcfg.Progress, rowProgress(cb))

	disp, err := disparity.Compute(ctx, matchL, matchR, dcfg)
	if err != nil {
		return nil, fmt.Errorf("disparity %s: %w", res.Name, err)
	}
	res.Disparity = disp
	clock.lap(stageDisparity)

	// Padding pixels with no source data carry no depth.
	mask := disp.Consistency
	if w, h := pair.Left.Width(), pair.Left.Height(); len(pair.LeftCoverage) == w*h {
		if mask, err = mask.And(disparity.MaskFromCoverage(w, h, pair.LeftCoverage)); err != nil {
			return nil, fmt.Errorf("coverage %s: %w", res.Name, err)
		}
	}

	geom := triangulate.GeometryOf(pair)
	raw, err := triangulate.Triangulate(disp.LeftToRight, mask, geom, pair.Left)
	if err != nil {
		return nil, fmt.Errorf("triangulate %s: %w", res.Name, err)
	}
	res.Raw = raw
	clock.lap(stageTriangulate)

	cloud, stats, err := p.filter.Apply(raw, mask)
	if err != nil {
		return nil, fmt.Errorf("post-filter %s: %w", res.Name, err)
	}
	res.FilterStats = stats
	res.Summary = summarize(pair.Left.Width(), pair.Left.Height(), geom, disp, cloud)
	if p.cfg.OutputFrame == pointcloud.FrameWorld {
		cloud = cloud.ToWorld(pair.LeftCamera)
	}
	res.Cloud = cloud
	res.Summary.Frame = string(cloud.Frame)
	clock.lap(stageFilter)

	clock.finish()
	p.profiler.Record(res.Processing, cloud.Size())
	observePoints(stats)

	slog.Info("Two-view reconstruction completed",
		"pair", res.Name,
		"width", res.Summary.Width,
		"height", res.Summary.Height,
		"baseline", geom.Baseline,
		"points", cloud.Size(),
		"dropped", stats.Dropped(),
		"frame", res.Summary.Frame,
		"duration_ms", time.Duration(res.Processing.TotalNs).Milliseconds())
	return res, nil
}

func pairName(left, right View) string {
	switch {
	case left.Name == "" && right.Name == "":
		return "pair"
	case right.Name == "":
		return left.Name
	default:
		return left.Name + "+" + right.Name
	}
}

func chainProgress(a, b disparity.ProgressFunc) disparity.ProgressFunc {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return func(done, total int) {
			a(done, total)
			b(done, total)
		}
	}
}

// summarize measures the cloud in the rectified left camera frame.
func summarize(w, h int, geom triangulate.Geometry, disp *disparity.Result, cloud *pointcloud.PointCloud) Summary {
	s := Summary{
		Width:            w,
		Height:           h,
		Focal:            geom.Intrinsics.Fx,
		Baseline:         geom.Baseline,
		ValidDisparities: disp.LeftToRight.ValidCount(),
		Consistent:       disp.Consistency.Count(),
		Points:           cloud.Size(),
		Frame:            string(cloud.Frame),
	}
	if lo, hi, ok := disp.LeftToRight.Range(); ok {
		s.DisparityMin, s.DisparityMax = lo, hi
	}
	if cloud.Size() == 0 {
		return s
	}
	c := cloud.Centroid()
	s.Centroid = [3]float64{c.X, c.Y, c.Z}
	depths := make([]float64, cloud.Size())
	for i, pt := range cloud.Points {
		depths[i] = pt.Position.Z
	}
	s.DepthMin, s.DepthMax = floats.Min(depths), floats.Max(depths)
	if len(depths) < 2 {
		s.DepthMean = depths[0]
		return s
	}
	s.DepthMean, s.DepthStdDev = stat.MeanStdDev(depths, nil)
	return s
}
