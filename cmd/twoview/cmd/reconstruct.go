package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/twoview/internal/batch"
	"github.com/MeKo-Tech/twoview/internal/config"
	"github.com/MeKo-Tech/twoview/internal/dataset"
	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/triangulate"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct <scene>",
	Short: "Reconstruct a point cloud from one calibrated pair",
	Long: `Reconstruct a colored point cloud from a calibrated pair.

The scene is a YAML rig file or a Middlebury *_par.txt parameter file; for the latter
--views selects the two views. The cloud is written in the format given by --cloud-format,
or the one implied by the --output extension.

Examples:
  twoview reconstruct scene/rig.yaml --output cloud.ply
  twoview reconstruct temple_par.txt --views 3,4 --cloud-format pcd
  twoview reconstruct scene/rig.yaml --format json --disparity-out disp.png`,
	Args: cobra.ExactArgs(1),
	RunE: runReconstruct,
}

func init() {
	rootCmd.AddCommand(reconstructCmd)

	keys := addStageFlags(reconstructCmd)
	f := reconstructCmd.Flags()
	d := config.DefaultConfig()
	f.StringP("output", "o", "", "point cloud file (default <scene>.<ext>)")
	f.String("cloud-format", d.Output.CloudFormat, "ply, ply-binary, pcd or pcd-binary")
	f.StringP("format", "f", d.Output.Format, "summary format: text, json or csv")
	f.IntSlice("views", d.Batch.Views, "view indices of a Middlebury parameter file")
	f.String("disparity-out", "", "also write the left disparity map as PNG")
	f.String("depth-out", "", "also write the depth map as 16-bit PNG (inverse depth, nearest white)")
	f.Bool("progress", false, "show matching progress on stderr")

	keys["output.cloud_format"] = "cloud-format"
	keys["output.format"] = "format"
	keys["batch.views"] = "views"
	bindConfig(reconstructCmd, keys)
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	i, j, err := cfg.ViewPair()
	if err != nil {
		return err
	}
	scene, err := dataset.Load(args[0], i, j)
	if err != nil {
		return err
	}

	pcfg, err := cfg.ToPipelineConfig()
	if err != nil {
		return err
	}
	p, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	if p, err = p.WithHints(scene.Hints); err != nil {
		return err
	}

	var cb pipeline.ProgressCallback = pipeline.NoOpProgressCallback{}
	if show, _ := cmd.Flags().GetBool("progress"); show {
		cb = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), scene.Name)
	}

	slog.Debug("Reconstructing scene", "scene", scene.Name, "left", scene.Left.Name, "right", scene.Right.Name)
	res, err := p.TwoViewWithProgress(cmd.Context(), scene.Left, scene.Right, cb)
	if err != nil {
		return fmt.Errorf("reconstruct %s: %w", scene.Name, err)
	}

	cloudPath, format, err := cloudTarget(cmd, cfg, scene.Name)
	if err != nil {
		return err
	}
	if err := pointcloud.WriteFile(cloudPath, res.Cloud, format); err != nil {
		return err
	}
	slog.Info("Point cloud written", "path", cloudPath, "points", res.Cloud.Size(), "format", format.String())

	if out, _ := cmd.Flags().GetString("disparity-out"); out != "" {
		if err := utils.SaveImage(out, res.Disparity.LeftToRight.Image(float64(p.Config().Disparity.MaxDisparity))); err != nil {
			return err
		}
	}

	if out, _ := cmd.Flags().GetString("depth-out"); out != "" {
		if err := writeDepth(out, res); err != nil {
			return err
		}
	}

	summary := &batch.Result{Entries: []batch.Entry{{
		Name: scene.Name, Source: scene.Source, Result: res, Cloud: cloudPath,
	}}}
	return summary.SaveResults(cmd.OutOrStdout(), cfg.Output.Format, "", true)
}

// cloudTarget resolves the cloud path and format. An explicit --cloud-format wins over the
// extension of --output.
func cloudTarget(cmd *cobra.Command, cfg *config.Config, name string) (string, pointcloud.Format, error) {
	path, _ := cmd.Flags().GetString("output")
	if path != "" && !cmd.Flags().Changed("cloud-format") {
		if f, err := pointcloud.FormatFromPath(path); err == nil {
			return path, f, nil
		}
	}
	format, err := cfg.CloudFormat()
	if err != nil {
		return "", 0, err
	}
	if path == "" {
		path = strings.ReplaceAll(name, string(filepath.Separator), "_") + format.Extension()
	}
	return path, format, nil
}

// writeDepth saves the depth of every consistent left pixel.
func writeDepth(path string, res *pipeline.Result) error {
	disp := res.Disparity.LeftToRight
	masked := disparity.NewMap(disp.Width, disp.Height)
	for i, d := range disp.Data {
		if res.Disparity.Consistency.Data[i] {
			masked.Data[i] = d
		}
	}
	depth, err := triangulate.DepthMap(masked, triangulate.GeometryOf(res.Rectified))
	if err != nil {
		return err
	}
	return utils.SaveImage(path, triangulate.DepthImage(depth, disp.Width, disp.Height))
}
