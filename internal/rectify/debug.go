package rectify

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/twoview/internal/utils"
)

// epipolarStep is the row spacing of the guide lines drawn over the debug image.
const epipolarStep = 16

// dumpPairPNG writes the rectified views side by side with horizontal guide lines. Matching
// features should sit on the same line in both halves.
func dumpPairPNG(dir string, p *Pair) error {
	path := filepath.Join(dir, fmt.Sprintf("rect_pair_%d.png", time.Now().UnixNano()))
	return utils.SaveImage(path, SideBySide(p))
}

// SideBySide renders the pair as one image with epipolar guide lines.
func SideBySide(p *Pair) *image.NRGBA {
	left := p.Left.ToNRGBA()
	right := p.Right.ToNRGBA()
	gap := 10
	w := left.Bounds().Dx()
	h := left.Bounds().Dy()

	canvas := imaging.New(2*w+gap, h, color.Black)
	canvas = imaging.Paste(canvas, left, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, right, image.Pt(w+gap, 0))

	line := color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	for y := epipolarStep / 2; y < h; y += epipolarStep {
		for x := range canvas.Bounds().Dx() {
			if x >= w && x < w+gap {
				continue
			}
			canvas.SetNRGBA(x, y, line)
		}
	}
	return canvas
}
