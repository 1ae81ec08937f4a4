package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves into an empty directory so no drift.toml or .env is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(oldWd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "drifter_*.nc*", cfg.Source.Pattern)
	assert.Equal(t, int64(512*1024*1024), cfg.Source.MaxFileSize)
	assert.Equal(t, "fail", cfg.Build.OnError)
	assert.Equal(t, getDefaultWorkers(), cfg.Build.Workers)
	assert.Equal(t, []string{FormatNetCDF}, cfg.Archive.Formats)
	assert.Equal(t, int64(4096), cfg.Archive.RowGroupSize)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.True(t, cfg.Catalog.Enabled)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxDelay)
	assert.Empty(t, cfg.Metadata.Title)
}

func TestGetDefaultWorkers(t *testing.T) {
	workers := getDefaultWorkers()
	assert.GreaterOrEqual(t, workers, 1)
	assert.LessOrEqual(t, workers, 32)
	if runtime.NumCPU() <= 32 {
		assert.Equal(t, runtime.NumCPU(), workers)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DRIFT_BUILD_WORKERS", "3")
	t.Setenv("DRIFT_BUILD_ON_ERROR", "skip")
	t.Setenv("DRIFT_ARCHIVE_FORMATS", "parquet,csv")
	t.Setenv("DRIFT_SOURCE_MAX_FILE_SIZE", "2GB")
	t.Setenv("DRIFT_STORAGE_BACKEND", "s3")
	t.Setenv("DRIFT_STORAGE_S3_BUCKET", "gdp")
	t.Setenv("DRIFT_RETRY_DELAY", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Build.Workers)
	assert.Equal(t, "skip", cfg.Build.OnError)
	assert.Equal(t, []string{FormatParquet, FormatCSV}, cfg.Archive.Formats)
	assert.Equal(t, int64(2*1024*1024*1024), cfg.Source.MaxFileSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)

	sc := cfg.StorageFor(cfg.Source.Backend)
	assert.Equal(t, "s3", sc.Backend)
	assert.Equal(t, "gdp", sc.S3.Bucket)
	assert.Equal(t, 250*time.Millisecond, sc.Retry.RetryDelay)

	assert.Equal(t, "local", cfg.StorageFor("local").Backend)
}

func TestLoad_File(t *testing.T) {
	dir := chdirTemp(t)

	toml := `
[build]
workers = 2
on_error = "skip"

[archive]
formats = ["nc", "parquet", "netcdf"]
output = "out/gdp"

[metadata]
title = "Test collection"
`
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(toml), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Build.Workers)
	assert.Equal(t, []string{FormatNetCDF, FormatParquet}, cfg.Archive.Formats)
	assert.Equal(t, "out/gdp", cfg.Archive.Output)
	assert.Equal(t, "Test collection", cfg.Metadata.Title)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_SearchPath(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "drift.toml"), []byte("[log]\nlevel = \"debug\"\n"), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DRIFT_ARCHIVE_OUTPUT=from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("DRIFT_ARCHIVE_OUTPUT") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Archive.Output)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Build:   BuildConfig{Workers: 1, OnError: "fail"},
			Archive: ArchiveConfig{Formats: []string{"netcdf"}, RowGroupSize: 10},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad on_error", func(c *Config) { c.Build.OnError = "retry" }},
		{"zero workers", func(c *Config) { c.Build.Workers = 0 }},
		{"zero row group", func(c *Config) { c.Archive.RowGroupSize = 0 }},
		{"unknown format", func(c *Config) { c.Archive.Formats = []string{"hdf5"} }},
		{"no format", func(c *Config) { c.Archive.Formats = nil }},
		{"bad stream compression", func(c *Config) { c.Archive.StreamCompression = "lz4" }},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats([]string{" NetCDF , pq", "csv", "nc"})
	require.NoError(t, err)
	assert.Equal(t, []string{FormatNetCDF, FormatParquet, FormatCSV}, got)

	_, err = ParseFormats([]string{"", " , "})
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"100B", 100, false},
		{"1KB", 1024, false},
		{"512MB", 512 * 1024 * 1024, false},
		{"1.5gb", 1536 * 1024 * 1024, false},
		{"2TB", 2 * 1024 * 1024 * 1024 * 1024, false},
		{" 10 MB ", 10 * 1024 * 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1PB", 0, true},
		{"-1MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
