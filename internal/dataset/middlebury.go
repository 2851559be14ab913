package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/twoview/internal/camera"
	"github.com/MeKo-Tech/twoview/internal/pipeline"
)

// parFields is the number of values after the image name: K, R and t.
const parFields = 9 + 9 + 3

// ParView is one calibrated view of a Middlebury multi-view parameter file.
type ParView struct {
	Image  string
	Camera camera.Camera
}

// ParsePar reads a Middlebury *_par.txt file: a view count on the first line, then one line per
// view holding the image name, K, R (both row-major) and t. Rotations are re-orthonormalized
// since the files carry them to limited precision.
func ParsePar(r io.Reader) ([]ParView, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var (
		views []ParView
		count = -1
		line  int
	)
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if count < 0 {
			n, err := strconv.Atoi(fields[0])
			if err != nil || n < 0 || len(fields) != 1 {
				return nil, fmt.Errorf("%w: line %d: want view count, got %q", ErrFormat, line, sc.Text())
			}
			count = n
			continue
		}
		v, err := parseParLine(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		views = append(views, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: empty parameter file", ErrFormat)
	}
	if len(views) != count {
		return nil, fmt.Errorf("%w: header announces %d views, found %d", ErrFormat, count, len(views))
	}
	return views, nil
}

func parseParLine(fields []string) (ParView, error) {
	if len(fields) != 1+parFields {
		return ParView{}, fmt.Errorf("%w: want image name and %d numbers, got %d fields", ErrFormat, parFields, len(fields))
	}
	vals := make([]float64, parFields)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return ParView{}, fmt.Errorf("%w: %q is not a number", ErrFormat, f)
		}
		vals[i] = v
	}
	k, err := camera.IntrinsicsFromMatrix(mat.NewDense(3, 3, vals[0:9]))
	if err != nil {
		return ParView{}, err
	}
	rot, err := rotation(vals[9:18])
	if err != nil {
		return ParView{}, err
	}
	cam, err := camera.New(k, rot, r3.Vector{X: vals[18], Y: vals[19], Z: vals[20]})
	if err != nil {
		return ParView{}, err
	}
	return ParView{Image: fields[0], Camera: cam}, nil
}

// LoadMiddlebury reads the parameter file and the images of views i (left) and j (right).
func LoadMiddlebury(parPath string, i, j int) (*Scene, error) {
	f, err := os.Open(parPath) //nolint:gosec // G304: parameter file path comes from the command line
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	views, err := ParsePar(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", parPath, err)
	}
	if i == j || i < 0 || j < 0 || i >= len(views) || j >= len(views) {
		return nil, fmt.Errorf("%w: views %d,%d of %d", ErrViewIndex, i, j, len(views))
	}

	dir := filepath.Dir(parPath)
	left, err := loadImage(dir, views[i].Image)
	if err != nil {
		return nil, err
	}
	right, err := loadImage(dir, views[j].Image)
	if err != nil {
		return nil, err
	}
	return &Scene{
		Name:   fmt.Sprintf("%s[%d,%d]", sceneName(parPath), i, j),
		Source: parPath,
		Left:   pipeline.View{Name: viewName(views[i].Image, "left"), Image: left, Camera: views[i].Camera},
		Right:  pipeline.View{Name: viewName(views[j].Image, "right"), Image: right, Camera: views[j].Camera},
	}, nil
}
