package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
)

// Config holds all configuration for batch reconstruction.
type Config struct {
	Pipeline pipeline.Config

	// Scene discovery
	Recursive bool
	Views     [2]int // left and right view of Middlebury parameter files

	// Outputs
	Format       string // text, json or csv
	OutputFile   string
	CloudDir     string // one point cloud per pair when set
	CloudFormat  pointcloud.Format
	DisparityDir string // one disparity PNG per pair when set

	ContinueOnError bool

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ProgressInterval time.Duration
}

// DefaultConfig uses the default pipeline, views 0 and 1 and text output.
func DefaultConfig() *Config {
	return &Config{
		Pipeline:         pipeline.DefaultConfig(),
		Views:            [2]int{0, 1},
		Format:           "text",
		CloudFormat:      pointcloud.PLYBinary,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// Entry is the outcome of one scene.
type Entry struct {
	Name   string           `json:"name"`
	Source string           `json:"source"`
	Result *pipeline.Result `json:"result,omitempty"`
	Cloud  string           `json:"cloud,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Result holds the result of batch processing.
type Result struct {
	Entries     []Entry
	Duration    time.Duration
	WorkerCount int
}

// Results returns the pipeline results in entry order, nil for failed scenes.
func (r *Result) Results() []*pipeline.Result {
	out := make([]*pipeline.Result, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Result
	}
	return out
}

// Stats computes throughput statistics.
func (r *Result) Stats() pipeline.ParallelStats {
	return pipeline.CalculateParallelStats(r.Results(), r.Duration, r.WorkerCount)
}

// FormatResults formats the batch results in the given format.
func (r *Result) FormatResults(format string) (string, error) {
	return formatBatchResults(r.Entries, format)
}

// SaveResults writes the formatted results to outputFile, or to w when outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if outputFile == "" {
		_, err = fmt.Fprint(w, output)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if !quiet {
		_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
	}
	return nil
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	s := r.Stats()
	p := message.NewPrinter(language.English)
	_, _ = p.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = p.Fprintf(w, "  Pairs: %d\n", s.TotalPairs)
	_, _ = p.Fprintf(w, "  Processed: %d\n", s.ProcessedPairs)
	_, _ = p.Fprintf(w, "  Failed: %d\n", s.FailedPairs)
	_, _ = p.Fprintf(w, "  Points: %d\n", s.TotalPoints)
	_, _ = p.Fprintf(w, "  Workers: %d\n", s.WorkerCount)
	_, _ = p.Fprintf(w, "  Duration: %v\n", s.TotalDuration.Round(time.Millisecond))
	_, _ = p.Fprintf(w, "  Avg per pair: %v\n", s.AveragePerPair.Round(time.Millisecond))
	_, _ = p.Fprintf(w, "  Throughput: %.2f pairs/sec\n", s.ThroughputPerSec)
}
