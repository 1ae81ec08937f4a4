// Package verify cross-checks a written Parquet archive against the
// ragged layout it was built from, using DuckDB.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/schema"
	"github.com/basekick-labs/drift/internal/storage"
	"github.com/rs/zerolog"
)

// ErrMismatch is returned when an archive disagrees with its build.
var ErrMismatch = errors.New("archive mismatch")

// FieldReport holds the checks of one observation field.
type FieldReport struct {
	Name string
	// Observations is the total length of the field's lists.
	Observations int64
	// Mismatches counts trajectories whose list length differs from rowsize.
	Mismatches int64
}

// Report is the outcome of checking one archive.
type Report struct {
	Path         string
	Trajectories int64
	Observations int64 // sum of rowsize
	Fields       []FieldReport
}

// Expect holds the dimensions an archive must have.
type Expect struct {
	Trajectories int
	Observations int64
}

// ExpectArray returns the dimensions of a.
func ExpectArray(a *ragged.Array) Expect {
	return Expect{Trajectories: a.NumTrajectories(), Observations: int64(a.NumObservations())}
}

// Compare returns an ErrMismatch listing every failed check.
func (r *Report) Compare(exp Expect) error {
	var problems []string
	if r.Trajectories != int64(exp.Trajectories) {
		problems = append(problems, fmt.Sprintf("%d trajectories, want %d", r.Trajectories, exp.Trajectories))
	}
	if r.Observations != exp.Observations {
		problems = append(problems, fmt.Sprintf("sum(rowsize) = %d, want %d", r.Observations, exp.Observations))
	}
	for _, f := range r.Fields {
		if f.Observations != exp.Observations {
			problems = append(problems, fmt.Sprintf("%s has %d observations, want %d", f.Name, f.Observations, exp.Observations))
		}
		if f.Mismatches != 0 {
			problems = append(problems, fmt.Sprintf("%s differs from rowsize in %d trajectories", f.Name, f.Mismatches))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrMismatch, r.Path, strings.Join(problems, "; "))
	}
	return nil
}

// Verifier runs archive checks.
type Verifier struct {
	db     *duckDB
	schema *schema.Schema
	logger zerolog.Logger
}

// New opens an in-memory DuckDB for checking archives of s.
func New(cfg Config, s *schema.Schema, logger zerolog.Logger) (*Verifier, error) {
	if s == nil {
		s = schema.GDP()
	}
	logger = logger.With().Str("component", "verify").Logger()
	db, err := openDuckDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Verifier{db: db, schema: s, logger: logger}, nil
}

// Close releases the DuckDB connection.
func (v *Verifier) Close() error {
	return v.db.close()
}

// Check queries the Parquet archive at path.
func (v *Verifier) Check(ctx context.Context, path string) (*Report, error) {
	if err := ValidateParquetFile(path); err != nil {
		return nil, err
	}

	from := fmt.Sprintf("read_parquet('%s')", escapeSQLString(path))
	r := &Report{Path: path}

	query := fmt.Sprintf("SELECT count(*), CAST(coalesce(sum(rowsize), 0) AS BIGINT) FROM %s", from)
	if err := v.db.queryRow(ctx, query, &r.Trajectories, &r.Observations); err != nil {
		return nil, err
	}

	for _, f := range v.schema.Fields() {
		if f.Dim != schema.Observation {
			continue
		}
		col := quoteIdent(f.Name)
		query := fmt.Sprintf(
			"SELECT CAST(coalesce(sum(len(%[1]s)), 0) AS BIGINT), "+
				"count(*) FILTER (WHERE len(%[1]s) IS DISTINCT FROM rowsize) FROM %[2]s",
			col, from)
		fr := FieldReport{Name: f.Name}
		if err := v.db.queryRow(ctx, query, &fr.Observations, &fr.Mismatches); err != nil {
			return nil, err
		}
		r.Fields = append(r.Fields, fr)
	}

	v.logger.Debug().
		Str("path", path).
		Int64("trajectories", r.Trajectories).
		Int64("observations", r.Observations).
		Msg("Archive checked")
	return r, nil
}

// Verify checks the archive at path against exp.
func (v *Verifier) Verify(ctx context.Context, path string, exp Expect) (*Report, error) {
	r, err := v.Check(ctx, path)
	if err != nil {
		return nil, err
	}
	return r, r.Compare(exp)
}

// VerifyObject downloads key from backend into dir and verifies it.
func (v *Verifier) VerifyObject(ctx context.Context, backend storage.Backend, key, dir string, exp Expect) (*Report, error) {
	tmp, err := os.CreateTemp(dir, ".drift-verify-*.parquet")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := backend.ReadTo(ctx, key, tmp); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	r, err := v.Verify(ctx, tmp.Name(), exp)
	if r != nil {
		r.Path = backend.URI(key)
	}
	return r, err
}

// ValidateParquetFile checks the Parquet magic bytes at both ends of path.
func ValidateParquetFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	// Parquet files need at least 12 bytes (4 byte header + 4 byte footer + 4 byte metadata length)
	if stat.Size() < 12 {
		return fmt.Errorf("file too small to be valid parquet (%d bytes)", stat.Size())
	}

	magic := make([]byte, 4)
	if _, err := io.ReadFull(file, magic); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if string(magic) != "PAR1" {
		return fmt.Errorf("invalid parquet magic header: got %q", magic)
	}

	if _, err := file.Seek(-4, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to footer: %w", err)
	}
	if _, err := io.ReadFull(file, magic); err != nil {
		return fmt.Errorf("failed to read footer: %w", err)
	}
	if string(magic) != "PAR1" {
		return fmt.Errorf("invalid parquet magic footer: got %q", magic)
	}

	return nil
}
