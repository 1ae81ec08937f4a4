package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basekick-labs/drift/internal/archive"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/ragged/raggedtest"
	"github.com/basekick-labs/drift/internal/storage"
)

func writeArchive(t *testing.T, dir string) (string, *ragged.Array) {
	t.Helper()
	a := raggedtest.Drifter(101, []float64{1e9, 1e9 + 3600, 1e9 + 7200}, []float64{1, 2, 3})
	b := raggedtest.Drifter(202, []float64{2e9, 2e9 + 3600}, []float64{4, -1e34})
	arr, err := ragged.Build(context.Background(), raggedtest.Sources(a, b), ragged.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	path := filepath.Join(dir, "gdp.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	attrs := archive.GlobalAttributes(arr, archive.DefaultMetadata(), "test", time.Now())
	require.NoError(t, archive.WriteParquet(f, arr, attrs, archive.DefaultParquetOptions(), zerolog.Nop()))
	require.NoError(t, f.Close())
	return path, arr
}

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := New(Config{ThreadCount: 1}, nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func TestVerifyArchive(t *testing.T) {
	path, arr := writeArchive(t, t.TempDir())
	v := newVerifier(t)

	r, err := v.Verify(context.Background(), path, ExpectArray(arr))
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Trajectories)
	assert.Equal(t, int64(5), r.Observations)
	require.NotEmpty(t, r.Fields)
	for _, f := range r.Fields {
		assert.Equal(t, int64(5), f.Observations, f.Name)
		assert.Zero(t, f.Mismatches, f.Name)
	}
}

func TestVerifyMismatch(t *testing.T) {
	path, _ := writeArchive(t, t.TempDir())
	v := newVerifier(t)

	r, err := v.Verify(context.Background(), path, Expect{Trajectories: 3, Observations: 5})
	assert.ErrorIs(t, err, ErrMismatch)
	require.NotNil(t, r)
	assert.Contains(t, err.Error(), "2 trajectories, want 3")
}

func TestVerifyObject(t *testing.T) {
	dir := t.TempDir()
	path, arr := writeArchive(t, dir)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	backend, err := storage.NewLocalBackend(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, backend.Write(context.Background(), "out/gdp.parquet", data))

	v := newVerifier(t)
	r, err := v.VerifyObject(context.Background(), backend, "out/gdp.parquet", t.TempDir(), ExpectArray(arr))
	require.NoError(t, err)
	assert.Equal(t, backend.URI("out/gdp.parquet"), r.Path)
}

func TestCompare(t *testing.T) {
	r := &Report{
		Path:         "x.parquet",
		Trajectories: 2,
		Observations: 5,
		Fields: []FieldReport{
			{Name: "longitude", Observations: 5},
			{Name: "time", Observations: 4, Mismatches: 1},
		},
	}
	err := r.Compare(Expect{Trajectories: 2, Observations: 5})
	require.ErrorIs(t, err, ErrMismatch)
	assert.Contains(t, err.Error(), "time has 4 observations, want 5")
	assert.Contains(t, err.Error(), "time differs from rowsize in 1 trajectories")
	assert.NotContains(t, err.Error(), "longitude")

	r.Fields = r.Fields[:1]
	assert.NoError(t, r.Compare(Expect{Trajectories: 2, Observations: 5}))
}

func TestValidateParquetFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content []byte
		wantErr string
	}{
		{"too small", []byte("PAR1"), "too small"},
		{"bad header", []byte("XXXX0000000000PAR1"), "magic header"},
		{"bad footer", []byte("PAR10000000000XXXX"), "magic footer"},
		{"valid", []byte("PAR10000000000PAR1"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, tt.content, 0644))
			err := ValidateParquetFile(path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEscapeSQLString(t *testing.T) {
	assert.Equal(t, "simple_value", escapeSQLString("simple_value"))
	assert.Equal(t, "value''with''quotes", escapeSQLString("value'with'quotes"))
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
