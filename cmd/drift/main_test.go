package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basekick-labs/drift/internal/archive"
	"github.com/basekick-labs/drift/internal/catalog"
	"github.com/basekick-labs/drift/internal/config"
	"github.com/basekick-labs/drift/internal/metrics"
	"github.com/basekick-labs/drift/internal/progress"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/ragged/raggedtest"
	"github.com/basekick-labs/drift/internal/schema"
	"github.com/basekick-labs/drift/internal/storage"
	"github.com/basekick-labs/drift/internal/verify"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Log:    config.LogConfig{Level: "disabled", Format: "json"},
		Source: config.SourceConfig{Pattern: "drifter_*.nc*", StagingDir: t.TempDir()},
		Build:  config.BuildConfig{Workers: 2, OnError: "fail"},
		Archive: config.ArchiveConfig{
			Formats:      []string{"parquet", "csv"},
			Output:       "gdp/test",
			Compression:  "zstd",
			RowGroupSize: 16,
		},
		Storage:  config.StorageConfig{Backend: "local", LocalPath: filepath.Join(dir, "data")},
		Catalog:  config.CatalogConfig{Enabled: true, Path: filepath.Join(dir, "drift.db")},
		Metadata: config.MetadataConfig{PublisherName: "Test Lab"},
	}
}

func testSources() []ragged.Source {
	a := raggedtest.Drifter(101, []float64{1e9, 1e9 + 3600, 1e9 + 7200}, []float64{1, 2, 3})
	b := raggedtest.Drifter(202, []float64{2e9, 2e9 + 3600}, []float64{4, -1e34})
	return raggedtest.Sources(a, b)
}

func TestPipelineRun(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	backend, err := storage.NewLocalBackend(cfg.Storage.LocalPath, zerolog.Nop())
	require.NoError(t, err)
	cat, err := catalog.Open(cfg.Catalog.Path, zerolog.Nop())
	require.NoError(t, err)
	defer cat.Close()

	var out bytes.Buffer
	p := &pipeline{
		cfg:      cfg,
		backend:  backend,
		catalog:  cat,
		metrics:  metrics.NewBuild(),
		observer: progress.Nop{},
		verify:   true,
		tempDir:  t.TempDir(),
		out:      &out,
		logger:   zerolog.Nop(),
	}

	res, err := p.run(ctx, testSources())
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)
	assert.Contains(t, out.String(), "2 trajectories, 5 observations, 0 skipped")

	for _, key := range []string{"gdp/test.parquet", "gdp/test.csv"} {
		ok, err := backend.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}

	b, err := cat.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Trajectories)
	assert.Equal(t, int64(5), b.Observations)
	assert.Equal(t, "fail", b.Policy)
	assert.Equal(t, []string{"drifter_0.nc", "drifter_1.nc"}, b.Sources)
	assert.Len(t, b.Outputs, 2)
}

func TestPipelineSkipsMalformed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Build.OnError = "skip"
	cfg.Catalog.Enabled = false

	backend, err := storage.NewLocalBackend(cfg.Storage.LocalPath, zerolog.Nop())
	require.NoError(t, err)

	sources := testSources()
	bad := raggedtest.Drifter(303, []float64{3e9}, []float64{7}).Without("longitude")
	sources = append(sources, &raggedtest.Source{ID: "drifter_bad.nc", Rec: bad})

	m := metrics.NewBuild()
	var out bytes.Buffer
	p := &pipeline{cfg: cfg, backend: backend, metrics: m, observer: progress.Nop{}, tempDir: t.TempDir(), out: &out, logger: zerolog.Nop()}

	_, err = p.run(context.Background(), sources)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Skipped())
	assert.Contains(t, out.String(), "2 trajectories, 5 observations, 1 skipped")
}

func TestPipelineFailFast(t *testing.T) {
	cfg := testConfig(t)
	backend, err := storage.NewLocalBackend(cfg.Storage.LocalPath, zerolog.Nop())
	require.NoError(t, err)

	sources := testSources()
	bad := raggedtest.Drifter(303, []float64{3e9}, []float64{7}).Without("time")
	sources = append(sources, &raggedtest.Source{ID: "drifter_bad.nc", Rec: bad})

	p := &pipeline{cfg: cfg, backend: backend, metrics: metrics.NewBuild(), observer: progress.Nop{}, tempDir: t.TempDir(), out: &bytes.Buffer{}, logger: zerolog.Nop()}
	_, err = p.run(context.Background(), sources)
	require.Error(t, err)

	objs, err := backend.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, objs, "nothing is written when the build fails")
}

func assertNoObjects(t *testing.T, backend storage.Backend) {
	t.Helper()
	objs, err := backend.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, objs, "nothing is left behind when the build fails")
}

// rejectingBackend fails every upload to one key.
type rejectingBackend struct {
	*storage.LocalBackend
	key string
}

func (b *rejectingBackend) WriteReader(ctx context.Context, path string, r io.Reader, size int64) error {
	if path == b.key {
		return errors.New("quota exceeded")
	}
	return b.LocalBackend.WriteReader(ctx, path, r, size)
}

// staleBackend serves fixed bytes when one key is read back.
type staleBackend struct {
	*storage.LocalBackend
	key  string
	data []byte
}

func (b *staleBackend) ReadTo(ctx context.Context, path string, w io.Writer) error {
	if path == b.key {
		_, err := w.Write(b.data)
		return err
	}
	return b.LocalBackend.ReadTo(ctx, path, w)
}

func TestPipelineUploadFailureRemovesOutputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.Enabled = false
	local, err := storage.NewLocalBackend(cfg.Storage.LocalPath, zerolog.Nop())
	require.NoError(t, err)

	// parquet is stored first, then the csv upload fails
	backend := &rejectingBackend{LocalBackend: local, key: "gdp/test.csv"}
	p := &pipeline{cfg: cfg, backend: backend, metrics: metrics.NewBuild(), observer: progress.Nop{}, tempDir: t.TempDir(), out: &bytes.Buffer{}, logger: zerolog.Nop()}

	res, err := p.run(context.Background(), testSources())
	require.Error(t, err)
	assert.Nil(t, res)
	assertNoObjects(t, local)
}

func TestPipelineVerifyMismatchRemovesOutputs(t *testing.T) {
	ctx := context.Background()

	// archive of a single drifter, served back in place of the real one
	cfg := testConfig(t)
	cfg.Archive.Formats = []string{archive.FormatParquet}
	cfg.Catalog.Enabled = false
	other, err := storage.NewLocalBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	p := &pipeline{cfg: cfg, backend: other, metrics: metrics.NewBuild(), observer: progress.Nop{}, tempDir: t.TempDir(), out: &bytes.Buffer{}, logger: zerolog.Nop()}
	_, err = p.run(ctx, testSources()[:1])
	require.NoError(t, err)
	var stale bytes.Buffer
	require.NoError(t, other.ReadTo(ctx, "gdp/test.parquet", &stale))

	local, err := storage.NewLocalBackend(cfg.Storage.LocalPath, zerolog.Nop())
	require.NoError(t, err)
	p = &pipeline{
		cfg:      cfg,
		backend:  &staleBackend{LocalBackend: local, key: "gdp/test.parquet", data: stale.Bytes()},
		metrics:  metrics.NewBuild(),
		observer: progress.Nop{},
		verify:   true,
		tempDir:  t.TempDir(),
		out:      &bytes.Buffer{},
		logger:   zerolog.Nop(),
	}

	res, err := p.run(ctx, testSources())
	require.ErrorIs(t, err, verify.ErrMismatch)
	assert.Nil(t, res)
	assertNoObjects(t, local)
}

func TestPipelineCatalogFailureRemovesOutputs(t *testing.T) {
	cfg := testConfig(t)
	backend, err := storage.NewLocalBackend(cfg.Storage.LocalPath, zerolog.Nop())
	require.NoError(t, err)
	cat, err := catalog.Open(cfg.Catalog.Path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, cat.Close())

	p := &pipeline{cfg: cfg, backend: backend, catalog: cat, metrics: metrics.NewBuild(), observer: progress.Nop{}, tempDir: t.TempDir(), out: &bytes.Buffer{}, logger: zerolog.Nop()}
	res, err := p.run(context.Background(), testSources())
	require.Error(t, err)
	assert.Nil(t, res)
	assertNoObjects(t, backend)
}

func TestBuildCmdApply(t *testing.T) {
	cfg := testConfig(t)
	c := &BuildCmd{Output: "custom", Formats: []string{"nc,pq"}, Workers: 3, OnError: "skip"}
	require.NoError(t, c.apply(cfg))
	assert.Equal(t, "custom", cfg.Archive.Output)
	assert.Equal(t, []string{"netcdf", "parquet"}, cfg.Archive.Formats)
	assert.Equal(t, 3, cfg.Build.Workers)
	assert.Equal(t, "skip", cfg.Build.OnError)

	bad := &BuildCmd{OnError: "retry"}
	assert.Error(t, bad.apply(testConfig(t)))
}

func TestArchiveOptionsMetadata(t *testing.T) {
	p := &pipeline{cfg: testConfig(t)}
	opts := p.archiveOptions()
	assert.Equal(t, "Test Lab", opts.Metadata.PublisherName)
	assert.Equal(t, "CF-1.6", opts.Metadata.Conventions)
	assert.Equal(t, int64(16), opts.Parquet.RowGroupSize)
}

func TestInspect(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, inspect(context.Background(), &out, testSources()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "SOURCE"))
	assert.Contains(t, lines[1], "drifter_0.nc")
	assert.Contains(t, lines[1], "101")
	assert.Contains(t, lines[1], "Pacific Gyre")
	assert.Regexp(t, `^TOTAL\s+5`, lines[3])
}

func TestPrintSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printSchema(&out, schema.GDP(), "obs"))
	s := out.String()
	assert.Contains(t, s, "longitude")
	assert.Contains(t, s, "variable:longitude")
	assert.Contains(t, s, "drogue_status")
	assert.NotContains(t, s, "deploy_date")

	assert.Error(t, printSchema(&out, schema.GDP(), "time"))
}

func TestPrintBuilds(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printBuilds(&out, []*catalog.Build{{ID: "abc", Trajectories: 2, Observations: 5}}))
	assert.Contains(t, out.String(), "abc")

	out.Reset()
	printBuild(&out, &catalog.Build{ID: "abc", Outputs: []string{"file:///a.nc"}, Sources: []string{"x", "y"}})
	assert.Contains(t, out.String(), "file:///a.nc")
	assert.Contains(t, out.String(), "2 files")
}
