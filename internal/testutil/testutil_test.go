package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(CreateTempDir(t), "clouds", "nested")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir), "existing directories are fine")

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileExists(t *testing.T) {
	dir := CreateTempDir(t)
	path := filepath.Join(dir, "scene.ply")
	assert.False(t, FileExists(path))

	require.NoError(t, os.WriteFile(path, []byte("ply\n"), 0o600))
	assert.True(t, FileExists(path))
	assert.False(t, FileExists(dir), "directories are not files")
}
