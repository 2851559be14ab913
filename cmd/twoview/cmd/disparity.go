package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/MeKo-Tech/twoview/internal/config"
	"github.com/MeKo-Tech/twoview/internal/dataset"
	"github.com/MeKo-Tech/twoview/internal/disparity"
	"github.com/MeKo-Tech/twoview/internal/raster"
	"github.com/MeKo-Tech/twoview/internal/rectify"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

var disparityCmd = &cobra.Command{
	Use:   "disparity <scene>",
	Short: "Compute the disparity maps of a calibrated pair",
	Long: `Rectify a calibrated pair and compute its disparity maps without triangulating.

The left-to-right map is written as an 8-bit PNG scaled by the disparity bound; invalid
pixels are black. The right-to-left map and the left-right consistency mask are optional.

Examples:
  twoview disparity scene/rig.yaml
  twoview disparity temple_par.txt --views 0,1 --output d.png --mask-output mask.png`,
	Args: cobra.ExactArgs(1),
	RunE: runDisparity,
}

func init() {
	rootCmd.AddCommand(disparityCmd)

	keys := addStageFlags(disparityCmd)
	f := disparityCmd.Flags()
	f.StringP("output", "o", "disparity.png", "left-to-right disparity PNG")
	f.String("right-output", "", "also write the right-to-left disparity PNG")
	f.String("mask-output", "", "also write the consistency mask PNG")
	f.IntSlice("views", config.DefaultConfig().Batch.Views, "view indices of a Middlebury parameter file")
	keys["batch.views"] = "views"
	bindConfig(disparityCmd, keys)
}

func runDisparity(cmd *cobra.Command, args []string) error {
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
	dcfg := pcfg.Disparity
	if scene.Hints.MaxDisparity > 0 {
		dcfg.MaxDisparity = scene.Hints.MaxDisparity
	}

	rect, err := rectify.New(pcfg.Rectify)
	if err != nil {
		return err
	}
	pair, err := rect.Rectify(raster.FromImage(scene.Left.Image), raster.FromImage(scene.Right.Image),
		scene.Left.Camera, scene.Right.Camera)
	if err != nil {
		return err
	}
	left, right := pair.Left, pair.Right
	if pcfg.Grayscale {
		left, right = left.Gray(), right.Gray()
	}

	slog.Debug("Computing disparity", "scene", scene.Name, "width", left.Width(), "height", left.Height(),
		"max_disparity", dcfg.MaxDisparity, "kernel", dcfg.Kernel.String())
	res, err := disparity.Compute(cmd.Context(), left, right, dcfg)
	if err != nil {
		return fmt.Errorf("disparity %s: %w", scene.Name, err)
	}

	maxD := float64(dcfg.MaxDisparity)
	outputs := []struct {
		flag string
		save func(string) error
	}{
		{"output", func(p string) error { return utils.SaveImage(p, res.LeftToRight.Image(maxD)) }},
		{"right-output", func(p string) error { return utils.SaveImage(p, res.RightToLeft.Image(maxD)) }},
		{"mask-output", func(p string) error { return utils.SaveImage(p, res.Consistency.Image()) }},
	}
	for _, o := range outputs {
		path, _ := cmd.Flags().GetString(o.flag)
		if path == "" {
			continue
		}
		if err := o.save(path); err != nil {
			return err
		}
		slog.Info("Wrote image", "path", path)
	}

	printDisparityStats(cmd, res, left.Width()*left.Height())
	return nil
}

func printDisparityStats(cmd *cobra.Command, res *disparity.Result, pixels int) {
	p := message.NewPrinter(language.English)
	w := cmd.OutOrStdout()
	_, _ = p.Fprintf(w, "Pixels: %d\n", pixels)
	_, _ = p.Fprintf(w, "Valid (left-to-right): %d\n", res.LeftToRight.ValidCount())
	_, _ = p.Fprintf(w, "Valid (right-to-left): %d\n", res.RightToLeft.ValidCount())
	_, _ = p.Fprintf(w, "Consistent: %d\n", res.Consistency.Count())
	if lo, hi, ok := res.LeftToRight.Range(); ok {
		_, _ = p.Fprintf(w, "Range: %.2f .. %.2f px\n", lo, hi)
	}
}
