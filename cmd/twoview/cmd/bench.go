package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/twoview/internal/benchmark"
	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/kernel"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the disparity search on a synthetic pair",
	Long: `Time the two-directional disparity search of every matching cost on a random-dot pair
with a known uniform disparity, and report the share of consistent pixels that recovered it.

Examples:
  twoview bench
  twoview bench --width 640 --height 480 --kernels zncc --iterations 5 --format json`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	d := disparity.DefaultConfig()
	f := benchCmd.Flags()
	f.Int("width", 256, "synthetic image width")
	f.Int("height", 192, "synthetic image height")
	f.Int("shift", 8, "true disparity of the synthetic pair")
	f.Int("max-disparity", 16, "largest disparity searched")
	f.Int("patch-size", d.PatchSize, "odd patch side length")
	f.Int("iterations", 3, "timed iterations per kernel")
	f.Int("disparity-workers", d.Workers, "row workers (0 = all CPUs)")
	f.StringSlice("kernels", kernel.Names(), "matching costs to benchmark")
	f.StringP("format", "f", "text", "output format: text or json")
}

// benchRow is one kernel's line of the json report.
type benchRow struct {
	Kernel     string  `json:"kernel"`
	Iterations int     `json:"iterations"`
	PerIterMs  float64 `json:"per_iteration_ms"`
	MPixPerSec float64 `json:"mpx_per_sec"`
	AllocKBPer uint64  `json:"alloc_kb_per_iteration"`
	Consistent int     `json:"consistent"`
	Accuracy   float64 `json:"accuracy"`
	Error      string  `json:"error,omitempty"`
}

func runBench(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	iterations, _ := flags.GetInt("iterations")
	names, _ := flags.GetStringSlice("kernels")
	format, _ := flags.GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format: %s", format)
	}

	opts := benchmark.DefaultStereoOptions()
	opts.Width, _ = flags.GetInt("width")
	opts.Height, _ = flags.GetInt("height")
	opts.Shift, _ = flags.GetInt("shift")
	opts.Disparity.MaxDisparity, _ = flags.GetInt("max-disparity")
	opts.Disparity.PatchSize, _ = flags.GetInt("patch-size")
	opts.Disparity.Workers, _ = flags.GetInt("disparity-workers")
	opts.Kernels = opts.Kernels[:0]
	for _, name := range names {
		k, err := kernel.Parse(name)
		if err != nil {
			return err
		}
		opts.Kernels = append(opts.Kernels, k)
	}

	suite, err := benchmark.NewStereoSuite(cmd.Context(), opts)
	if err != nil {
		return err
	}
	slog.Debug("Running benchmarks", "kernels", names, "iterations", iterations,
		"width", opts.Width, "height", opts.Height)
	results := suite.RunAll(iterations)

	rows := make([]benchRow, 0, len(results))
	for _, br := range results {
		row := benchRow{
			Kernel:     br.Name,
			Iterations: br.Iterations,
			PerIterMs:  float64(br.PerIteration().Microseconds()) / 1000,
			MPixPerSec: br.Throughput(),
			AllocKBPer: br.AllocatedPerIteration() / 1024,
		}
		if br.Error != nil {
			row.Error = br.Error.Error()
		} else {
			row.Consistent, row.Accuracy, _ = suite.Accuracy(br.Name)
		}
		rows = append(rows, row)
	}

	w := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	for i, br := range results {
		_, _ = fmt.Fprintln(w, br.String())
		if br.Error == nil {
			_, _ = fmt.Fprintf(w, "  consistent: %d, accuracy: %.1f%%\n", rows[i].Consistent, rows[i].Accuracy*100)
		}
		if i > 0 {
			_, _ = fmt.Fprintf(w, "  %s\n", benchmark.Compare(results[0], br))
		}
	}
	return nil
}
