package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// ParallelConfig holds configuration for multi-pair processing.
type ParallelConfig struct {
	MaxWorkers       int              // pairs processed concurrently (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // optional, one report per finished pair
	ErrorHandler     func(int, Job, error)
}

// DefaultParallelConfig processes one pair per CPU.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// Job is one pair of a batch.
type Job struct {
	Name  string
	Left  View
	Right View
	Hints Hints
}

type jobResult struct {
	index  int
	result *Result
	err    error
}

// ProcessPairs reconstructs every job with a worker pool and returns results in job order. A
// failed job leaves a nil entry; the first error is returned alongside the other results.
func (p *Pipeline) ProcessPairs(ctx context.Context, jobs []Job) ([]*Result, error) {
	if len(jobs) == 0 {
		return nil, errors.New("no pairs provided")
	}
	cfg := p.cfg.Parallel
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(jobs))

	if cfg.ProgressCallback != nil {
		cfg.ProgressCallback.OnStart(len(jobs))
		defer cfg.ProgressCallback.OnComplete()
	}

	queue := make(chan int, len(jobs))
	results := make(chan jobResult, len(jobs))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go p.worker(ctx, jobs, queue, results, &wg)
	}

	go func() {
		defer close(queue)
		for i := range jobs {
			select {
			case queue <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*Result, len(jobs))
	errs := make(map[int]error)
	done := 0
	for r := range results {
		ordered[r.index] = r.result
		if r.err != nil {
			errs[r.index] = r.err
			if cfg.ProgressCallback != nil {
				cfg.ProgressCallback.OnError(r.index, r.err)
			}
		}
		done++
		if cfg.ProgressCallback != nil {
			cfg.ProgressCallback.OnProgress(done, len(jobs))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstErr error
	for i := range jobs {
		err, ok := errs[i]
		if !ok {
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("pair %d (%s): %w", i, jobs[i].Name, err)
		}
		if cfg.ErrorHandler != nil {
			cfg.ErrorHandler(i, jobs[i], err)
		}
	}
	return ordered, firstErr
}

func (p *Pipeline) worker(ctx context.Context, jobs []Job, queue <-chan int, results chan<- jobResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case i, ok := <-queue:
			if !ok {
				return
			}
			res, err := p.runJob(ctx, jobs[i])
			select {
			case results <- jobResult{index: i, result: res, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) runJob(ctx context.Context, job Job) (*Result, error) {
	jp, err := p.WithHints(job.Hints)
	if err != nil {
		return nil, err
	}
	res, err := jp.TwoView(ctx, job.Left, job.Right)
	if err != nil {
		return nil, err
	}
	if job.Name != "" {
		res.Name = job.Name
	}
	return res, nil
}

// ParallelStats summarizes a batch run.
type ParallelStats struct {
	TotalPairs       int           `json:"total_pairs"`
	ProcessedPairs   int           `json:"processed_pairs"`
	FailedPairs      int           `json:"failed_pairs"`
	TotalPoints      int           `json:"total_points"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerPair   time.Duration `json:"average_per_pair_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats derives batch statistics from ProcessPairs results.
func CalculateParallelStats(results []*Result, duration time.Duration, workers int) ParallelStats {
	s := ParallelStats{TotalPairs: len(results), WorkerCount: workers, TotalDuration: duration}
	for _, r := range results {
		if r == nil {
			s.FailedPairs++
			continue
		}
		s.ProcessedPairs++
		s.TotalPoints += r.Summary.Points
	}
	if s.ProcessedPairs > 0 && duration > 0 {
		s.AveragePerPair = duration / time.Duration(s.ProcessedPairs)
		s.ThroughputPerSec = float64(s.ProcessedPairs) / duration.Seconds()
	}
	return s
}
