package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/twoview/internal/batch"
	"github.com/MeKo-Tech/twoview/internal/config"
)

// batchCmd reconstructs many scenes in parallel.
var batchCmd = &cobra.Command{
	Use:   "batch <scene|dir>...",
	Short: "Reconstruct many scenes in parallel",
	Long: `Reconstruct every scene file found in the given files and directories.

Rig files (*.yaml, *.yml) and Middlebury parameter files (*_par.txt) are picked up; for the
latter --views selects the pair. Scenes run on a pool of --workers goroutines.

Examples:
  twoview batch scenes/ --recursive --cloud-dir clouds/
  twoview batch a/rig.yaml b/rig.yaml --format json --output results.json
  twoview batch dino_par.txt temple_par.txt --views 2,3 --continue-on-error --stats`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatchCommand,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	keys := addStageFlags(batchCmd)
	d := config.DefaultConfig()
	f := batchCmd.Flags()
	f.IntP("workers", "w", d.Batch.Workers, "scenes processed in parallel")
	f.BoolP("recursive", "r", d.Batch.Recursive, "search directories recursively")
	f.Bool("continue-on-error", d.Batch.ContinueOnError, "keep going when a scene fails")
	f.IntSlice("views", d.Batch.Views, "view indices of Middlebury parameter files")
	f.StringP("format", "f", d.Output.Format, "results format: text, json or csv")
	f.StringP("output", "o", d.Output.File, "write results to this file instead of stdout")
	f.String("cloud-dir", "", "write one point cloud per scene to this directory")
	f.String("cloud-format", d.Output.CloudFormat, "ply, ply-binary, pcd or pcd-binary")
	f.String("disparity-dir", "", "write one disparity PNG per scene to this directory")
	f.Bool("progress", false, "show a progress bar on stderr")
	f.BoolP("quiet", "q", false, "suppress informational output")
	f.Bool("stats", false, "print processing statistics")

	keys["batch.workers"] = "workers"
	keys["batch.recursive"] = "recursive"
	keys["batch.continue_on_error"] = "continue-on-error"
	keys["batch.views"] = "views"
	keys["output.format"] = "format"
	keys["output.file"] = "output"
	keys["output.cloud_format"] = "cloud-format"
	bindConfig(batchCmd, keys)
}

// configToBatchConfig maps the resolved configuration and the output-only flags to batch.Config.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) (*batch.Config, error) {
	bc := batch.DefaultConfig()

	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return nil, err
	}
	bc.Pipeline = pcfg

	i, j, err := cfg.ViewPair()
	if err != nil {
		return nil, err
	}
	bc.Views = [2]int{i, j}
	if bc.CloudFormat, err = cfg.CloudFormat(); err != nil {
		return nil, err
	}

	bc.Recursive = cfg.Batch.Recursive
	bc.ContinueOnError = cfg.Batch.ContinueOnError
	bc.Format = cfg.Output.Format
	bc.OutputFile = cfg.Output.File

	flags := cmd.Flags()
	bc.CloudDir, _ = flags.GetString("cloud-dir")
	bc.DisparityDir, _ = flags.GetString("disparity-dir")
	bc.ShowProgress, _ = flags.GetBool("progress")
	bc.Quiet, _ = flags.GetBool("quiet")
	return bc, nil
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	bc, err := configToBatchConfig(GetConfig(), cmd)
	if err != nil {
		return err
	}

	slog.Debug("Starting batch", "paths", len(args), "workers", bc.Pipeline.Parallel.MaxWorkers,
		"recursive", bc.Recursive)
	result, err := batch.ProcessBatch(cmd.Context(), args, bc)
	if err != nil {
		return err
	}

	if err := result.SaveResults(cmd.OutOrStdout(), bc.Format, bc.OutputFile, bc.Quiet); err != nil {
		return err
	}
	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		result.PrintStats(cmd.OutOrStdout(), bc.Quiet)
	}

	failed := 0
	for _, e := range result.Entries {
		if e.Error != "" {
			failed++
		}
	}
	if failed > 0 && !bc.ContinueOnError {
		return fmt.Errorf("%d of %d scenes failed", failed, len(result.Entries))
	}
	return nil
}
