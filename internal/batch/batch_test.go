package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/twoview/internal/pipeline"
	"github.com/MeKo-Tech/twoview/internal/pointcloud"
	"github.com/MeKo-Tech/twoview/internal/testutil"
)

func smallFixture(t *testing.T) testutil.StereoFixture {
	t.Helper()
	opts := testutil.DefaultFixtureOptions()
	opts.Width, opts.Height = 32, 32
	return testutil.WriteStereoFixture(t, testutil.CreateTempDir(t), opts)
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Pipeline.Disparity.MaxDisparity = 8
	cfg.Pipeline.Parallel.MaxWorkers = 2
	cfg.Quiet = true
	return cfg
}

func TestProcessBatch(t *testing.T) {
	fx := smallFixture(t)
	out := testutil.CreateTempDir(t)
	cfg := quietConfig()
	cfg.CloudDir = filepath.Join(out, "clouds")
	cfg.DisparityDir = filepath.Join(out, "disparity")
	cfg.CloudFormat = pointcloud.PCDASCII

	res, err := ProcessBatch(context.Background(), []string{fx.Dir}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	rig, par := res.Entries[0], res.Entries[1]
	assert.Equal(t, "synthetic-checkerboard", rig.Name)
	assert.Equal(t, fx.RigPath, rig.Source)
	assert.Equal(t, "scene[0,1]", par.Name)
	for _, e := range res.Entries {
		require.NotNil(t, e.Result, e.Name)
		assert.Empty(t, e.Error)
		assert.Positive(t, e.Result.Summary.Points)
		assert.True(t, testutil.FileExists(e.Cloud), e.Cloud)
		assert.Equal(t, ".pcd", filepath.Ext(e.Cloud))
	}
	assert.True(t, testutil.FileExists(filepath.Join(cfg.DisparityDir, "scene_0_1__disparity.png")))
	assert.Equal(t, 2, res.WorkerCount)

	stats := res.Stats()
	assert.Equal(t, 2, stats.ProcessedPairs)
	assert.Zero(t, stats.FailedPairs)
}

func TestProcessBatch_NoScenes(t *testing.T) {
	_, err := ProcessBatch(context.Background(), []string{testutil.CreateTempDir(t)}, quietConfig())
	assert.ErrorIs(t, err, ErrNoScenes)

	_, err = ProcessBatch(context.Background(), []string{"/nonexistent/dir"}, quietConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestProcessBatch_ContinueOnError(t *testing.T) {
	fx := smallFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(fx.Dir, "broken.yaml"), []byte("name: [\n"), 0o600))

	cfg := quietConfig()
	_, err := ProcessBatch(context.Background(), []string{fx.Dir}, cfg)
	require.Error(t, err)

	cfg.ContinueOnError = true
	res, err := ProcessBatch(context.Background(), []string{fx.Dir}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "broken.yaml", res.Entries[0].Name)
	assert.NotEmpty(t, res.Entries[0].Error)
	assert.Nil(t, res.Entries[0].Result)
	assert.NotNil(t, res.Entries[1].Result)
	assert.Equal(t, 1, res.Stats().FailedPairs)
}

func TestProcessBatch_PairFailureIsRecorded(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	opts := testutil.DefaultFixtureOptions()
	opts.Width, opts.Height = 32, 32
	fx := testutil.WriteStereoFixture(t, dir, opts)
	// Same camera for both views: rectification fails for this scene only.
	rig, err := os.ReadFile(fx.RigPath)
	require.NoError(t, err)
	degenerate := strings.ReplaceAll(string(rig), "translation: [-0.2, 0, 0]", "translation: [0, 0, 0]")
	require.NotEqual(t, string(rig), degenerate)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "same.yaml"), []byte(degenerate), 0o600))

	cfg := quietConfig()
	cfg.ContinueOnError = true
	res, err := ProcessBatch(context.Background(), []string{fx.RigPath, filepath.Join(dir, "same.yaml")}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.NotNil(t, res.Entries[0].Result)
	assert.Nil(t, res.Entries[1].Result)
	assert.Contains(t, res.Entries[1].Error, "degenerate")

	cfg.ContinueOnError = false
	_, err = ProcessBatch(context.Background(), []string{fx.RigPath, filepath.Join(dir, "same.yaml")}, cfg)
	assert.Error(t, err)
}

func sampleEntries() []Entry {
	return []Entry{
		{
			Name:   "a",
			Source: "/data/a.yaml",
			Cloud:  "/out/a.ply",
			Result: &pipeline.Result{
				Name: "a",
				Summary: pipeline.Summary{
					Width: 64, Height: 48, Baseline: 0.2, Focal: 100,
					ValidDisparities: 2500, Consistent: 2400, Points: 2345,
					DepthMin: 4.5, DepthMax: 5.5, DepthMean: 5,
				},
			},
		},
		{Name: "b", Source: "/data/b_par.txt", Error: "boom"},
	}
}

func TestFormatBatchResults(t *testing.T) {
	text, err := formatBatchResults(sampleEntries(), "text")
	require.NoError(t, err)
	assert.Contains(t, text, "# a (/data/a.yaml)")
	assert.Contains(t, text, "points: 2,345")
	assert.Contains(t, text, "cloud: /out/a.ply")
	assert.Contains(t, text, "# b (/data/b_par.txt)")
	assert.Contains(t, text, "error: boom")

	js, err := formatBatchResults(sampleEntries(), "json")
	require.NoError(t, err)
	var decoded struct {
		Pairs []Entry `json:"pairs"`
	}
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	require.Len(t, decoded.Pairs, 2)
	assert.Equal(t, 2345, decoded.Pairs[0].Result.Summary.Points)
	assert.Equal(t, "boom", decoded.Pairs[1].Error)

	csvOut, err := formatBatchResults(sampleEntries(), "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(csvOut), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "name,source,points"))
	assert.Contains(t, lines[1], "a,/data/a.yaml,2345,2500,2400,4.5000,5.5000,5.0000")
	assert.True(t, strings.HasSuffix(lines[2], ",boom"))

	_, err = formatBatchResults(nil, "xml")
	assert.Error(t, err)
}

func TestSaveResultsAndStats(t *testing.T) {
	r := &Result{Entries: sampleEntries(), WorkerCount: 1}

	var buf bytes.Buffer
	require.NoError(t, r.SaveResults(&buf, "text", "", false))
	assert.Contains(t, buf.String(), "# a")

	path := filepath.Join(testutil.CreateTempDir(t), "out.json")
	buf.Reset()
	require.NoError(t, r.SaveResults(&buf, "json", path, false))
	assert.Contains(t, buf.String(), "Results written to")
	assert.True(t, testutil.FileExists(path))

	buf.Reset()
	r.PrintStats(&buf, false)
	assert.Contains(t, buf.String(), "Pairs: 2")
	assert.Contains(t, buf.String(), "Failed: 1")
	assert.Contains(t, buf.String(), "Points: 2,345")

	buf.Reset()
	r.PrintStats(&buf, true)
	assert.Empty(t, buf.String())

	assert.Error(t, r.SaveResults(&buf, "xml", "", true))
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "scene_0_3_", fileStem("scene[0,3]"))
	assert.Equal(t, "temple-ring_v2.x", fileStem("temple-ring_v2.x"))
	assert.Equal(t, "scene", fileStem(""))
}

func TestUniqueStem(t *testing.T) {
	used := map[string]int{}
	assert.Equal(t, "rig", uniqueStem(used, "rig"))
	assert.Equal(t, "rig_2", uniqueStem(used, "rig"))
	assert.Equal(t, "scene_0_1_", uniqueStem(used, "scene[0,1]"))
	assert.Equal(t, "rig_3", uniqueStem(used, "rig"))
}
