package dataset

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/postfilter"
)

// Rig is the YAML description of a calibrated stereo pair.
//
//	name: scene
//	max_disparity: 64
//	z_range: [0.5, 3.0]
//	left:
//	  image: left.png
//	  intrinsics: {fx: 700, fy: 700, cx: 320, cy: 240}
//	  rotation: [1, 0, 0, 0, 1, 0, 0, 0, 1]
//	  translation: [0, 0, 0]
//	right:
//	  ...
type Rig struct {
	Name         string    `yaml:"name"`
	MaxDisparity int       `yaml:"max_disparity,omitempty"`
	ZRange       []float64 `yaml:"z_range,omitempty"`
	Left         ViewSpec  `yaml:"left"`
	Right        ViewSpec  `yaml:"right"`
}

// ViewSpec describes one view of a rig. Rotation is row-major world→camera.
type ViewSpec struct {
	Image       string            `yaml:"image"`
	Intrinsics  camera.Intrinsics `yaml:"intrinsics"`
	Rotation    []float64         `yaml:"rotation"`
	Translation []float64         `yaml:"translation"`
}

// ParseRig decodes a rig document. Unknown keys are rejected.
func ParseRig(r io.Reader) (*Rig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var rig Rig
	if err := dec.Decode(&rig); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty rig file", ErrFormat)
		}
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return &rig, nil
}

// Cameras builds both validated cameras.
func (r *Rig) Cameras() (left, right camera.Camera, err error) {
	if left, err = r.Left.Camera(); err != nil {
		return camera.Camera{}, camera.Camera{}, fmt.Errorf("left view: %w", err)
	}
	if right, err = r.Right.Camera(); err != nil {
		return camera.Camera{}, camera.Camera{}, fmt.Errorf("right view: %w", err)
	}
	return left, right, nil
}

// Hints returns the optional disparity bound and depth range.
func (r *Rig) Hints() (pipeline.Hints, error) {
	h := pipeline.Hints{MaxDisparity: r.MaxDisparity}
	switch len(r.ZRange) {
	case 0:
	case 2:
		z := postfilter.ZRange{Min: r.ZRange[0], Max: r.ZRange[1]}
		if err := z.Validate(); err != nil {
			return pipeline.Hints{}, err
		}
		h.ZRange = &z
	default:
		return pipeline.Hints{}, fmt.Errorf("%w: z_range needs 2 values, got %d", ErrFormat, len(r.ZRange))
	}
	if r.MaxDisparity < 0 {
		return pipeline.Hints{}, fmt.Errorf("%w: negative max_disparity %d", ErrFormat, r.MaxDisparity)
	}
	return h, nil
}

// Camera builds the view's camera. A missing rotation means identity.
func (v ViewSpec) Camera() (camera.Camera, error) {
	var rot mat.Matrix = camera.Eye(3)
	if len(v.Rotation) > 0 {
		if len(v.Rotation) != 9 {
			return camera.Camera{}, fmt.Errorf("%w: rotation needs 9 values, got %d", ErrFormat, len(v.Rotation))
		}
		r, err := rotation(v.Rotation)
		if err != nil {
			return camera.Camera{}, err
		}
		rot = r
	}
	var t r3.Vector
	switch len(v.Translation) {
	case 0:
	case 3:
		t = r3.Vector{X: v.Translation[0], Y: v.Translation[1], Z: v.Translation[2]}
	default:
		return camera.Camera{}, fmt.Errorf("%w: translation needs 3 values, got %d", ErrFormat, len(v.Translation))
	}
	return camera.New(v.Intrinsics, rot, t)
}

// LoadRig reads a rig file and both images. Image paths are relative to the rig file.
func LoadRig(path string) (*Scene, error) {
	f, err := os.Open(path) //nolint:gosec // G304: rig path comes from the command line
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rig, err := ParseRig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	left, err := loadImage(dir, rig.Left.Image)
	if err != nil {
		return nil, err
	}
	right, err := loadImage(dir, rig.Right.Image)
	if err != nil {
		return nil, err
	}
	sc, err := rig.Scene(left, right)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = sceneName(path)
	}
	sc.Source = path
	return sc, nil
}

// Scene combines the rig with already decoded images, as received by the HTTP server.
func (r *Rig) Scene(left, right image.Image) (*Scene, error) {
	camL, camR, err := r.Cameras()
	if err != nil {
		return nil, err
	}
	hints, err := r.Hints()
	if err != nil {
		return nil, err
	}
	return &Scene{
		Name:  r.Name,
		Left:  pipeline.View{Name: viewName(r.Left.Image, "left"), Image: left, Camera: camL},
		Right: pipeline.View{Name: viewName(r.Right.Image, "right"), Image: right, Camera: camR},
		Hints: hints,
	}, nil
}
