package benchmark

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/twoview/internal/common"
	"github.com/MeKo-Tech/twoview/internal/kernel"
)

func TestSuiteRun(t *testing.T) {
	suite := NewSuite()

	suite.Add("success_test", 100, func() error {
		time.Sleep(1 * time.Millisecond)
		return nil
	})
	suite.Add("error_test", 0, func() error {
		return errors.New("test error")
	})

	result := suite.Run("success_test", 5)
	assert.Equal(t, "success_test", result.Name)
	assert.Equal(t, 5, result.Iterations)
	require.NoError(t, result.Error)
	assert.Positive(t, result.Duration)
	assert.Positive(t, result.Throughput())

	result = suite.Run("error_test", 3)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "test error")

	result = suite.Run("non_existent", 1)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "not found")
}

func TestSuiteRunAll(t *testing.T) {
	suite := NewSuite()
	suite.Add("fast_test", 0, func() error {
		time.Sleep(1 * time.Millisecond)
		return nil
	})
	suite.Add("slow_test", 0, func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	results := suite.RunAll(3)
	require.Len(t, results, 2)
	assert.Equal(t, results, suite.Results())

	fast, slow := results[0], results[1]
	assert.Equal(t, "fast_test", fast.Name)
	assert.Equal(t, "slow_test", slow.Name)
	assert.Equal(t, 3, fast.Iterations)
	require.NoError(t, fast.Error)
	require.NoError(t, slow.Error)
	assert.Greater(t, slow.Duration, fast.Duration)

	var buf bytes.Buffer
	suite.Fprint(&buf)
	assert.Contains(t, buf.String(), "fast_test: 3 iterations")
	assert.Contains(t, buf.String(), "slow_test: 3 iterations")
}

func TestCompare(t *testing.T) {
	base := common.BenchmarkResult{Name: "ssd", Iterations: 1, Duration: 20 * time.Millisecond}
	fast := common.BenchmarkResult{Name: "sad", Iterations: 1, Duration: 10 * time.Millisecond}
	slow := common.BenchmarkResult{Name: "zncc", Iterations: 2, Duration: 80 * time.Millisecond}

	c := Compare(base, fast)
	assert.InDelta(t, 2.0, c.Speedup, 1e-9)
	assert.Contains(t, c.String(), "2.00x faster")

	c = Compare(base, slow)
	assert.InDelta(t, 0.5, c.Speedup, 1e-9)
	assert.Contains(t, c.String(), "2.00x slower")

	failed := common.BenchmarkResult{Name: "broken", Error: errors.New("boom")}
	c = Compare(base, failed)
	assert.Zero(t, c.Speedup)
	assert.Contains(t, c.String(), "n/a")
}

func TestStereoSuite(t *testing.T) {
	opts := DefaultStereoOptions()
	opts.Width, opts.Height = 48, 24
	opts.Shift = 3
	opts.Disparity.MaxDisparity = 6
	opts.Kernels = []kernel.Kernel{kernel.SSD, kernel.ZNCC}

	ss, err := NewStereoSuite(context.Background(), opts)
	require.NoError(t, err)

	_, _, ok := ss.Accuracy("ssd")
	assert.False(t, ok, "no run yet")

	results := ss.RunAll(1)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Error)
		consistent, share, ok := ss.Accuracy(r.Name)
		require.True(t, ok)
		assert.Positive(t, consistent)
		assert.Greater(t, share, 0.5, r.Name)
	}
}

func TestNewStereoSuite_Invalid(t *testing.T) {
	opts := DefaultStereoOptions()
	opts.Width = 0
	_, err := NewStereoSuite(context.Background(), opts)
	require.Error(t, err)

	opts = DefaultStereoOptions()
	opts.Kernels = nil
	_, err = NewStereoSuite(context.Background(), opts)
	require.Error(t, err)

	opts = DefaultStereoOptions()
	opts.Disparity.PatchSize = 4
	_, err = NewStereoSuite(context.Background(), opts)
	assert.ErrorContains(t, err, "patch_size")
}

func BenchmarkStereoSuiteSSD(b *testing.B) {
	opts := DefaultStereoOptions()
	opts.Kernels = []kernel.Kernel{kernel.SSD}
	ss, err := NewStereoSuite(context.Background(), opts)
	require.NoError(b, err)
	b.ResetTimer()
	for range b.N {
		ss.Run("ssd", 1)
	}
}
