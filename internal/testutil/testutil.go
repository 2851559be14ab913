// Package testutil builds synthetic stereo scenes and scene files for tests.
package testutil

import (
	"os"
	"testing"
)

// CreateTempDir returns a scene directory removed when t finishes.
func CreateTempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether path names a regular file, such as a written cloud or disparity map.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
