// Package common holds benchmark results and memory statistics shared by the benchmark suites.
package common

import (
	"fmt"
	"runtime"
	"time"
)

// MemoryStats is the subset of runtime.MemStats reported by benchmarks.
type MemoryStats struct {
	Alloc         uint64
	TotalAlloc    uint64
	Sys           uint64
	Mallocs       uint64
	NumGC         uint32
	GCCPUFraction float64
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Alloc:         m.Alloc,
		TotalAlloc:    m.TotalAlloc,
		Sys:           m.Sys,
		Mallocs:       m.Mallocs,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
	}
}

// String returns a formatted string representation of memory stats.
func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d (%.2f%% CPU)",
		m.Alloc/1024,
		m.TotalAlloc/1024,
		m.Sys/1024,
		m.NumGC,
		m.GCCPUFraction*100)
}

// BenchmarkResult holds the outcome of Run.
type BenchmarkResult struct {
	Name         string
	Iterations   int
	Pixels       int // pixels processed per iteration, 0 if not applicable
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Error        error
}

// PerIteration is the mean wall time of one iteration.
func (br BenchmarkResult) PerIteration() time.Duration {
	if br.Iterations <= 0 {
		return 0
	}
	return br.Duration / time.Duration(br.Iterations)
}

// Throughput is the processing rate in megapixels per second.
func (br BenchmarkResult) Throughput() float64 {
	per := br.PerIteration()
	if per <= 0 || br.Pixels <= 0 {
		return 0
	}
	return float64(br.Pixels) / 1e6 / per.Seconds()
}

// AllocatedPerIteration is the mean number of bytes allocated by one iteration.
func (br BenchmarkResult) AllocatedPerIteration() uint64 {
	if br.Iterations <= 0 || br.MemoryAfter.TotalAlloc < br.MemoryBefore.TotalAlloc {
		return 0
	}
	return (br.MemoryAfter.TotalAlloc - br.MemoryBefore.TotalAlloc) / uint64(br.Iterations)
}

// String returns a formatted string representation of the benchmark result.
func (br BenchmarkResult) String() string {
	if br.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", br.Name, br.Error)
	}
	s := fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, alloc: %d KB/op",
		br.Name, br.Iterations, br.PerIteration(), br.Duration, br.AllocatedPerIteration()/1024)
	if tp := br.Throughput(); tp > 0 {
		s += fmt.Sprintf(", %.2f Mpx/s", tp)
	}
	return s
}

// Run calls fn once to warm up and then iterations times under the timer. The first error stops
// the run and is stored in the result.
func Run(name string, iterations, pixels int, fn func() error) BenchmarkResult {
	br := BenchmarkResult{Name: name, Pixels: pixels}
	if iterations <= 0 {
		br.Error = fmt.Errorf("iterations must be positive, got %d", iterations)
		return br
	}
	if err := fn(); err != nil {
		br.Error = err
		return br
	}

	runtime.GC()
	br.MemoryBefore = GetMemoryStats()
	start := time.Now()
	for range iterations {
		if err := fn(); err != nil {
			br.Error = err
			return br
		}
		br.Iterations++
	}
	br.Duration = time.Since(start)
	br.MemoryAfter = GetMemoryStats()
	return br
}
