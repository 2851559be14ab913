package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Format is a point cloud file encoding.
type Format int

const (
	PLYASCII Format = iota
	PLYBinary
	PCDASCII
	PCDBinary
)

func (f Format) String() string {
	switch f {
	case PLYASCII:
		return "ply"
	case PLYBinary:
		return "ply-binary"
	case PCDASCII:
		return "pcd"
	case PCDBinary:
		return "pcd-binary"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	if f == PCDASCII || f == PCDBinary {
		return ".pcd"
	}
	return ".ply"
}

// ParseFormat maps a format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ply", "ply-ascii":
		return PLYASCII, nil
	case "ply-binary", "plyb":
		return PLYBinary, nil
	case "pcd", "pcd-ascii":
		return PCDASCII, nil
	case "pcd-binary", "pcdb":
		return PCDBinary, nil
	default:
		return 0, fmt.Errorf("unknown point cloud format %q", name)
	}
}

// FormatFromPath picks a format from a file extension; binary variants must be requested explicitly.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ply":
		return PLYASCII, nil
	case ".pcd":
		return PCDASCII, nil
	default:
		return 0, fmt.Errorf("cannot infer point cloud format from %q", path)
	}
}

// Write encodes pc in the given format.
func Write(w io.Writer, pc *PointCloud, f Format) error {
	bw := bufio.NewWriter(w)
	var err error
	switch f {
	case PLYASCII, PLYBinary:
		err = writePLY(bw, pc, f == PLYBinary)
	case PCDASCII, PCDBinary:
		err = writePCD(bw, pc, f == PCDBinary)
	default:
		return fmt.Errorf("unsupported point cloud format %v", f)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFile writes pc to path, creating parent directories.
func WriteFile(path string, pc *PointCloud, f Format) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	file, err := os.Create(path) //nolint:gosec // G304: output path chosen by the caller
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(file, pc, f)
}

func writePLY(w *bufio.Writer, pc *PointCloud, binaryData bool) error {
	encoding := "ascii"
	if binaryData {
		encoding = "binary_little_endian"
	}
	if _, err := fmt.Fprintf(w, "ply\n"+
		"format %s 1.0\n"+
		"comment frame %s\n"+
		"element vertex %d\n"+
		"property float x\n"+
		"property float y\n"+
		"property float z\n"+
		"property uchar red\n"+
		"property uchar green\n"+
		"property uchar blue\n"+
		"end_header\n", encoding, pc.Frame, pc.Size()); err != nil {
		return err
	}

	buf := make([]byte, 15)
	for _, p := range pc.Points {
		v, c := p.Position, p.Color
		if !binaryData {
			if _, err := fmt.Fprintf(w, "%f %f %f %d %d %d\n", v.X, v.Y, v.Z, c.R, c.G, c.B); err != nil {
				return err
			}
			continue
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v.X)))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(v.Y)))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(v.Z)))
		buf[12], buf[13], buf[14] = c.R, c.G, c.B
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func writePCD(w *bufio.Writer, pc *PointCloud, binaryData bool) error {
	data := "ascii"
	if binaryData {
		data = "binary"
	}
	if _, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS x y z rgb\n"+
		"SIZE 4 4 4 4\n"+
		"TYPE F F F I\n"+
		"COUNT 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n", pc.Size(), pc.Size(), data); err != nil {
		return err
	}

	buf := make([]byte, 16)
	for _, p := range pc.Points {
		v := p.Position
		rgb := packRGB(p)
		if !binaryData {
			if _, err := fmt.Fprintf(w, "%f %f %f %d\n", v.X, v.Y, v.Z, rgb); err != nil {
				return err
			}
			continue
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v.X)))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(v.Y)))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(v.Z)))
		binary.LittleEndian.PutUint32(buf[12:], rgb)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// packRGB packs a color the way PCL stores rgb fields: 0x00RRGGBB.
func packRGB(p Point) uint32 {
	return uint32(p.Color.R)<<16 | uint32(p.Color.G)<<8 | uint32(p.Color.B)
}
