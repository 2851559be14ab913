// Package batch reconstructs many scene files with one pipeline.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/twoview/internal/dataset"
	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

// ErrNoScenes is returned when discovery finds nothing to process.
var ErrNoScenes = errors.New("no scene files found")

// ProcessBatch discovers scene files under paths, reconstructs them in parallel and writes the
// requested per-pair outputs.
func ProcessBatch(ctx context.Context, paths []string, cfg *Config) (*Result, error) {
	files, err := dataset.Discover(paths, cfg.Recursive)
	if err != nil {
		return nil, fmt.Errorf("failed to discover scene files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoScenes
	}

	entries := make([]Entry, 0, len(files))
	var jobs []pipeline.Job
	var jobEntry []int
	for _, f := range files {
		sc, err := dataset.Load(f, cfg.Views[0], cfg.Views[1])
		if err != nil {
			if !cfg.ContinueOnError {
				return nil, err
			}
			slog.Warn("Skipping scene", "file", f, "error", err)
			entries = append(entries, Entry{Name: filepath.Base(f), Source: f, Error: err.Error()})
			continue
		}
		jobEntry = append(jobEntry, len(entries))
		entries = append(entries, Entry{Name: sc.Name, Source: f})
		jobs = append(jobs, sc.Job())
	}
	if len(jobs) == 0 {
		return &Result{Entries: entries}, nil
	}

	pcfg := cfg.Pipeline
	if cfg.ShowProgress && !cfg.Quiet {
		pcfg.Parallel.ProgressCallback = pipeline.NewConsoleProgressCallback(os.Stderr, "Reconstructing: ").
			WithUpdateInterval(cfg.ProgressInterval)
	}
	var mu sync.Mutex
	pcfg.Parallel.ErrorHandler = func(i int, _ pipeline.Job, err error) {
		mu.Lock()
		defer mu.Unlock()
		entries[jobEntry[i]].Error = err.Error()
	}
	pl, err := pipeline.New(pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = pl.Close() }()

	start := time.Now()
	results, err := pl.ProcessPairs(ctx, jobs)
	duration := time.Since(start)
	if err != nil && (!cfg.ContinueOnError || results == nil) {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	stems := make(map[string]int)
	for i, res := range results {
		e := &entries[jobEntry[i]]
		e.Result = res
		if res == nil {
			continue
		}
		if err := writeOutputs(e, res, cfg, uniqueStem(stems, e.Name)); err != nil {
			return nil, err
		}
	}

	return &Result{Entries: entries, Duration: duration, WorkerCount: pcfg.Parallel.MaxWorkers}, nil
}

// writeOutputs stores the cloud and the disparity image of one pair.
func writeOutputs(e *Entry, res *pipeline.Result, cfg *Config, stem string) error {
	if cfg.CloudDir != "" {
		path := filepath.Join(cfg.CloudDir, stem+cfg.CloudFormat.Extension())
		if err := os.MkdirAll(cfg.CloudDir, 0o750); err != nil {
			return err
		}
		if err := pointcloud.WriteFile(path, res.Cloud, cfg.CloudFormat); err != nil {
			return fmt.Errorf("write cloud for %s: %w", e.Name, err)
		}
		e.Cloud = path
	}
	if cfg.DisparityDir != "" {
		path := filepath.Join(cfg.DisparityDir, stem+"_disparity.png")
		img := res.Disparity.LeftToRight.Image(float64(cfg.Pipeline.Disparity.MaxDisparity))
		if err := utils.SaveImage(path, img); err != nil {
			return fmt.Errorf("write disparity for %s: %w", e.Name, err)
		}
	}
	return nil
}

// uniqueStem returns the file stem of name, suffixed with a counter when an earlier scene of the
// batch already used it.
func uniqueStem(used map[string]int, name string) string {
	stem := fileStem(name)
	used[stem]++
	if n := used[stem]; n > 1 {
		return fmt.Sprintf("%s_%d", stem, n)
	}
	return stem
}

// fileStem turns a scene name into a safe file name.
func fileStem(name string) string {
	stem := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if stem == "" {
		return "scene"
	}
	return stem
}
