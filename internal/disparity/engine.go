// Package disparity implements scanline block matching on rectified image pairs.
//
// Disparity is left minus right: the match of left pixel (x, y) sits at (x−d, y) in the right
// image, d ≥ 0. The search runs in both directions and a consistency mask keeps the pixels where
// the two estimates agree.
package disparity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/twoview/internal/kernel"
	"github.com/MeKo-Tech/twoview/internal/mempool"
	"github.com/MeKo-Tech/twoview/internal/raster"
)

// Result holds both directional maps and their consistency mask.
type Result struct {
	LeftToRight *Map
	RightToLeft *Map
	Consistency *Mask
}

// direction is the sign of the candidate offset in the other image.
type direction int

const (
	leftToRight direction = -1 // left reference, right candidates at x−d
	rightToLeft direction = 1  // right reference, left candidates at x+d
)

// Compute runs the left→right and right→left searches concurrently and merges them into a
// consistency mask.
func Compute(ctx context.Context, left, right *raster.Image, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkPair(left, right); err != nil {
		return nil, err
	}
	start := time.Now()
	progress := newTracker(cfg.Progress, 2*left.Height())

	var l2r, r2l *Map
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := search(gctx, left, right, leftToRight, cfg, progress)
		l2r = m
		return err
	})
	g.Go(func() error {
		m, err := search(gctx, right, left, rightToLeft, cfg, progress)
		r2l = m
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mask := Consistency(l2r, r2l, cfg.ConsistencyTolerance)
	slog.Debug("Disparity computed",
		"kernel", cfg.Kernel.String(),
		"width", left.Width(),
		"height", left.Height(),
		"max_disparity", cfg.MaxDisparity,
		"valid", l2r.ValidCount(),
		"consistent", mask.Count(),
		"duration_ms", time.Since(start).Milliseconds())

	return &Result{LeftToRight: l2r, RightToLeft: r2l, Consistency: mask}, nil
}

// LeftToRight computes the disparity of every left pixel against the right image.
func LeftToRight(ctx context.Context, left, right *raster.Image, cfg Config) (*Map, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkPair(left, right); err != nil {
		return nil, err
	}
	return search(ctx, left, right, leftToRight, cfg, newTracker(cfg.Progress, left.Height()))
}

// RightToLeft computes the disparity of every right pixel against the left image.
func RightToLeft(ctx context.Context, left, right *raster.Image, cfg Config) (*Map, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkPair(left, right); err != nil {
		return nil, err
	}
	return search(ctx, right, left, rightToLeft, cfg, newTracker(cfg.Progress, right.Height()))
}

// Consistency marks left pixels whose disparity d maps to a right pixel (x−round(d), y) carrying
// a valid disparity within tol of d.
func Consistency(l2r, r2l *Map, tol float64) *Mask {
	mask := NewMask(l2r.Width, l2r.Height)
	for y := range l2r.Height {
		for x := range l2r.Width {
			d := l2r.At(x, y)
			if d < 0 {
				continue
			}
			back := r2l.At(x-int(math.Round(d)), y)
			if back < 0 {
				continue
			}
			mask.Data[y*mask.Width+x] = math.Abs(d-back) <= tol
		}
	}
	return mask
}

func checkPair(left, right *raster.Image) error {
	if left == nil || right == nil {
		return fmt.Errorf("disparity: %w: nil image", raster.ErrShape)
	}
	if !left.SameShape(right) {
		return fmt.Errorf("disparity: %w: left %dx%dx%d, right %dx%dx%d", raster.ErrShape,
			left.Width(), left.Height(), left.Channels(), right.Width(), right.Height(), right.Channels())
	}
	return nil
}

// search fills a map for ref, scanning candidates in other along dir. Rows are independent and
// run on a bounded errgroup.
func search(ctx context.Context, ref, other *raster.Image, dir direction, cfg Config, progress *tracker) (*Map, error) {
	w, h := ref.Width(), ref.Height()
	out := NewMap(w, h)
	half := cfg.PatchSize / 2

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for y := range h {
		if gctx.Err() != nil {
			break
		}
		if y < half || y >= h-half {
			progress.step()
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			searchRow(ref, other, y, dir, cfg, out)
			progress.step()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// searchRow matches every full-patch pixel of row y. Candidate patches whose window would leave
// the image are skipped; since candidates move monotonically away from x the scan stops at the
// first one.
func searchRow(ref, other *raster.Image, y int, dir direction, cfg Config, out *Map) {
	k := cfg.Kernel
	w := ref.Width()
	half := cfg.PatchSize / 2

	refRow, refBuf := prepareRow(k, ref, y, cfg.PatchSize, false)
	defer mempool.PutFloat64(refBuf)
	otherRow, otherBuf := prepareRow(k, other, y, cfg.PatchSize, true)
	defer mempool.PutFloat64(otherBuf)

	costs := make([]float64, cfg.MaxDisparity+1)
	for x := half; x < w-half; x++ {
		best, bestCost, n := -1, 0.0, 0
		for d := 0; d <= cfg.MaxDisparity; d++ {
			xc := x + int(dir)*d
			if xc < 0 || xc >= w {
				break
			}
			c := k.CostPrepared(refRow[x], otherRow[xc])
			costs[d] = c
			n = d + 1
			if best < 0 || c < bestCost {
				best, bestCost = d, c
			}
		}
		if best < 0 {
			continue
		}
		d := float64(best)
		if cfg.Subpixel {
			d = refine(costs[:n], best)
		}
		out.set(x, y, d)
	}
}

// prepareRow extracts and prepares the patch centered on every full-patch pixel of row y. With
// padded set, every pixel of the row gets a patch, zero outside the image. The returned buffer
// backs the patches and belongs to mempool.
func prepareRow(k kernel.Kernel, img *raster.Image, y, size int, padded bool) ([]kernel.Prepared, []float64) {
	w := img.Width()
	n := size * size * img.Channels()
	buf := mempool.GetFloat64(w * n)
	row := make([]kernel.Prepared, w)
	for x := range w {
		seg := buf[x*n : (x+1)*n]
		if padded {
			img.PaddedPatch(x, y, size, seg)
		} else if !img.Patch(x, y, size, seg) {
			continue
		}
		row[x] = k.Prepare(kernel.Patch{Data: seg, Channels: img.Channels()}, seg)
	}
	return row, buf
}

// refine fits a parabola through the costs around the integer minimum d and returns the vertex.
// The offset is clamped to half a pixel; endpoints and flat or concave neighborhoods keep d.
func refine(costs []float64, d int) float64 {
	if d <= 0 || d >= len(costs)-1 {
		return float64(d)
	}
	c0, c1, c2 := costs[d-1], costs[d], costs[d+1]
	den := c0 - 2*c1 + c2
	if den <= 0 {
		return float64(d)
	}
	off := 0.5 * (c0 - c2) / den
	off = math.Max(-0.5, math.Min(0.5, off))
	return float64(d) + off
}

// tracker counts finished rows across concurrent searches.
type tracker struct {
	fn    ProgressFunc
	total int
	done  atomic.Int64
}

func newTracker(fn ProgressFunc, total int) *tracker {
	return &tracker{fn: fn, total: total}
}

func (t *tracker) step() {
	n := t.done.Add(1)
	if t.fn != nil {
		t.fn(int(n), t.total)
	}
}
