package utils

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedImage(t *testing.T) {
	assert.True(t, IsSupportedImage("a/b/left.PNG"))
	assert.True(t, IsSupportedImage("view.jpeg"))
	assert.True(t, IsSupportedImage("scan.bmp"))
	assert.False(t, IsSupportedImage("cloud.ply"))
	assert.False(t, IsSupportedImage("noext"))
}

func TestSaveAndLoadImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	img.SetNRGBA(1, 2, color.NRGBA{R: 200, G: 10, B: 5, A: 255})

	path := filepath.Join(t.TempDir(), "nested", "out.png")
	require.NoError(t, SaveImage(path, img))

	loaded, meta, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 4, meta.Width)
	assert.Equal(t, 3, meta.Height)
	assert.Positive(t, meta.SizeBytes)

	r, g, b, _ := loaded.At(1, 2).RGBA()
	assert.Equal(t, uint32(200), r>>8)
	assert.Equal(t, uint32(10), g>>8)
	assert.Equal(t, uint32(5), b>>8)
}

func TestLoadImage_Errors(t *testing.T) {
	var ipe *ImageProcessingError

	_, _, err := LoadImage("")
	require.Error(t, err)
	assert.True(t, errors.As(err, &ipe))

	_, _, err = LoadImage("cloud.ply")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")

	_, _, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	require.True(t, errors.As(err, &ipe))
	assert.Equal(t, "load", ipe.Operation)
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))

	img, err := DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())

	_, err = DecodeImage(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
}

func TestInvalidConfigurationError(t *testing.T) {
	err := InvalidConfig("patch_size", 4, "must be odd")
	var ice *InvalidConfigurationError
	require.True(t, errors.As(err, &ice))
	assert.Equal(t, "patch_size", ice.Field)
	assert.Equal(t, "invalid configuration: patch_size = 4 (must be odd)", err.Error())
}
