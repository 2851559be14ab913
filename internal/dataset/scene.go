// Package dataset loads calibrated stereo scenes from YAML rig files and Middlebury multi-view
// parameter files.
package dataset

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/utils"
)

var (
	// ErrFormat is wrapped by every parse failure.
	ErrFormat = errors.New("dataset: malformed file")
	// ErrViewIndex reports an unusable view selection.
	ErrViewIndex = errors.New("dataset: invalid view indices")
)

// rotationTolerance bounds how far a stored rotation may be from orthonormal before it is
// rejected instead of re-orthonormalized.
const rotationTolerance = 1e-3

// Scene is a calibrated pair ready for the pipeline.
type Scene struct {
	Name   string
	Source string
	Left   pipeline.View
	Right  pipeline.View
	Hints  pipeline.Hints
}

// Job converts the scene into a batch job.
func (s *Scene) Job() pipeline.Job {
	return pipeline.Job{Name: s.Name, Left: s.Left, Right: s.Right, Hints: s.Hints}
}

// IsRig reports whether path names a YAML rig file.
func IsRig(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// IsPar reports whether path names a Middlebury parameter file.
func IsPar(path string) bool {
	return strings.HasSuffix(strings.ToLower(filepath.Base(path)), "_par.txt")
}

// Load reads a rig file, or views i and j of a Middlebury parameter file.
func Load(path string, i, j int) (*Scene, error) {
	switch {
	case IsRig(path):
		return LoadRig(path)
	case IsPar(path):
		return LoadMiddlebury(path, i, j)
	default:
		return nil, fmt.Errorf("%w: %s is neither a .yaml rig nor a *_par.txt file", ErrFormat, path)
	}
}

func loadImage(dir, name string) (image.Image, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: missing image path", ErrFormat)
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, name)
	}
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return img, nil
}

func rotation(vals []float64) (*mat.Dense, error) {
	m := mat.NewDense(3, 3, append([]float64(nil), vals...))
	if !camera.IsRotation(m, rotationTolerance) {
		return nil, fmt.Errorf("%w: rotation is not orthonormal", camera.ErrInvalidCamera)
	}
	r, ok := camera.Orthonormalize(m)
	if !ok {
		return nil, fmt.Errorf("%w: rotation SVD failed", camera.ErrInvalidCamera)
	}
	return r, nil
}

func sceneName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, "_par")
}

func viewName(image, fallback string) string {
	if image == "" {
		return fallback
	}
	base := filepath.Base(image)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Discover expands files and directories into scene files. Directories are searched for rig
// and parameter files; recursive descends into subdirectories.
func Discover(args []string, recursive bool) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if !recursive && path != arg {
					return filepath.SkipDir
				}
				return nil
			}
			if IsRig(path) || IsPar(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
