package server

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/testutil"
)

func newTestServer(t *testing.T, rl RateLimitConfig) *Server {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.Parallel.MaxWorkers = 2
	s, err := NewServer(Config{
		CORSOrigin:     "*",
		MaxUploadMB:    5,
		TimeoutSec:     30,
		PipelineConfig: cfg,
		RateLimit:      rl,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func smallFixture(t *testing.T) testutil.StereoFixture {
	t.Helper()
	opts := testutil.DefaultFixtureOptions()
	opts.Width, opts.Height = 32, 32
	return testutil.WriteStereoFixture(t, testutil.CreateTempDir(t), opts)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// fixtureFiles maps the multipart file fields to the fixture's files.
func fixtureFiles(fx testutil.StereoFixture) map[string]string {
	return map[string]string{"left": fx.LeftPath, "right": fx.RightPath, "rig": fx.RigPath}
}

// stereoForm encodes files (field → path) and plain fields as multipart/form-data.
func stereoForm(t *testing.T, files, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, path := range files {
		fw, err := mw.CreateFormFile(field, filepath.Base(path))
		require.NoError(t, err)
		_, err = fw.Write(readFile(t, path))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

// coincidentRig describes two cameras at the same center.
const coincidentRig = `name: coincident
left:
  intrinsics: {fx: 100, fy: 100, cx: 16, cy: 16}
  translation: [0, 0, 0]
right:
  intrinsics: {fx: 100, fy: 100, cx: 16, cy: 16}
  translation: [0, 0, 0]
`
