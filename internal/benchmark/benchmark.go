// Package benchmark times the disparity search of the matching costs on synthetic random-dot
// pairs with a known disparity.
package benchmark

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/MeKo-Tech/twoview/internal/common"
	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/kernel"
	"github.com/MeKo-Tech/twoview/internal/raster"
)

// Case is one named workload.
type Case struct {
	Name   string
	Pixels int // pixels processed per call, for throughput
	Func   func() error
}

// Suite manages multiple benchmarks.
type Suite struct {
	cases   []Case
	results []common.BenchmarkResult
	mu      sync.Mutex
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add adds a benchmark to the suite.
func (s *Suite) Add(name string, pixels int, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append(s.cases, Case{Name: name, Pixels: pixels, Func: fn})
}

// Run runs a single benchmark with the specified number of iterations.
func (s *Suite) Run(name string, iterations int) common.BenchmarkResult {
	s.mu.Lock()
	var c Case
	found := false
	for _, cs := range s.cases {
		if cs.Name == name {
			c, found = cs, true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return common.BenchmarkResult{Name: name, Error: fmt.Errorf("benchmark '%s' not found", name)}
	}
	return common.Run(c.Name, iterations, c.Pixels, c.Func)
}

// RunAll runs all benchmarks in order and keeps the results.
func (s *Suite) RunAll(iterations int) []common.BenchmarkResult {
	s.mu.Lock()
	cases := append([]Case(nil), s.cases...)
	s.mu.Unlock()

	results := make([]common.BenchmarkResult, 0, len(cases))
	for _, c := range cases {
		results = append(results, common.Run(c.Name, iterations, c.Pixels, c.Func))
	}

	s.mu.Lock()
	s.results = results
	s.mu.Unlock()
	return results
}

// Results returns the last RunAll results.
func (s *Suite) Results() []common.BenchmarkResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// Fprint writes the last results, one per line.
func (s *Suite) Fprint(w io.Writer) {
	for _, r := range s.Results() {
		_, _ = fmt.Fprintln(w, r.String())
	}
}

// Comparison relates one result to a baseline run of the same workload size.
type Comparison struct {
	Name     string
	Baseline string
	Speedup  float64 // baseline time / time; above 1 is faster
	MemoryKB int64   // allocation per iteration minus the baseline's
}

// Compare relates r to baseline. Failed runs compare with a zero speedup.
func Compare(baseline, r common.BenchmarkResult) Comparison {
	c := Comparison{Name: r.Name, Baseline: baseline.Name}
	if baseline.Error != nil || r.Error != nil {
		return c
	}
	if per := r.PerIteration(); per > 0 {
		c.Speedup = float64(baseline.PerIteration()) / float64(per)
	}
	c.MemoryKB = (clampInt64(r.AllocatedPerIteration()) - clampInt64(baseline.AllocatedPerIteration())) / 1024
	return c
}

func (c Comparison) String() string {
	if c.Speedup == 0 {
		return fmt.Sprintf("%s vs %s: n/a", c.Name, c.Baseline)
	}
	rel := fmt.Sprintf("%.2fx faster", c.Speedup)
	if c.Speedup < 1 {
		rel = fmt.Sprintf("%.2fx slower", 1/c.Speedup)
	}
	return fmt.Sprintf("%s vs %s: %s, mem %+d KB/op", c.Name, c.Baseline, rel, c.MemoryKB)
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// StereoOptions describes the synthetic pair and the search of a StereoSuite.
type StereoOptions struct {
	Width, Height int
	Channels      int
	Shift         int // true disparity
	Seed          uint64
	Disparity     disparity.Config
	Kernels       []kernel.Kernel
}

// DefaultStereoOptions benchmarks every kernel on a 256×192 RGB pair shifted by 8 pixels.
func DefaultStereoOptions() StereoOptions {
	d := disparity.DefaultConfig()
	d.MaxDisparity = 16
	return StereoOptions{
		Width:     256,
		Height:    192,
		Channels:  3,
		Shift:     8,
		Seed:      1,
		Disparity: d,
		Kernels:   []kernel.Kernel{kernel.SSD, kernel.SAD, kernel.ZNCC},
	}
}

// StereoSuite is a suite with one disparity search per kernel. It remembers the last map of each
// kernel so accuracy can be reported next to the timings.
type StereoSuite struct {
	*Suite
	opts StereoOptions

	mu   sync.Mutex
	last map[string]*disparity.Result
}

// NewStereoSuite validates opts and registers one case per kernel, named after the kernel.
func NewStereoSuite(ctx context.Context, opts StereoOptions) (*StereoSuite, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.Shift < 0 {
		return nil, fmt.Errorf("invalid synthetic pair %dx%d with shift %d", opts.Width, opts.Height, opts.Shift)
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if len(opts.Kernels) == 0 {
		return nil, fmt.Errorf("no kernels to benchmark")
	}

	left, right := raster.RandomDotPair(opts.Width, opts.Height, opts.Channels, opts.Shift, opts.Seed)
	ss := &StereoSuite{Suite: NewSuite(), opts: opts, last: make(map[string]*disparity.Result)}
	for _, k := range opts.Kernels {
		cfg := opts.Disparity
		cfg.Kernel = k
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		name := k.String()
		ss.Add(name, opts.Width*opts.Height, func() error {
			res, err := disparity.Compute(ctx, left, right, cfg)
			if err != nil {
				return err
			}
			ss.mu.Lock()
			ss.last[name] = res
			ss.mu.Unlock()
			return nil
		})
	}
	return ss, nil
}

// Accuracy reports the consistent pixels of the last run of a kernel and the share of them
// within half a pixel of the true disparity.
func (ss *StereoSuite) Accuracy(name string) (consistent int, share float64, ok bool) {
	ss.mu.Lock()
	res := ss.last[name]
	ss.mu.Unlock()
	if res == nil {
		return 0, 0, false
	}

	hits := 0
	m := res.LeftToRight
	for y := range m.Height {
		for x := range m.Width {
			if !res.Consistency.At(x, y) {
				continue
			}
			consistent++
			if math.Abs(m.At(x, y)-float64(ss.opts.Shift)) <= 0.5 {
				hits++
			}
		}
	}
	if consistent == 0 {
		return 0, 0, true
	}
	return consistent, float64(hits) / float64(consistent), true
}
