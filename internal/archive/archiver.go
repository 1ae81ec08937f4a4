package archive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/basekick-labs/drift/internal/metrics"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/storage"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatNetCDF  = "netcdf"
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// Extension returns the file suffix of a format.
func Extension(format string) string {
	switch format {
	case FormatNetCDF:
		return ".nc"
	case FormatParquet:
		return ".parquet"
	case FormatCSV:
		return ".csv"
	default:
		return "." + format
	}
}

// Options configures an Archiver.
type Options struct {
	Formats []string
	// Output is the object key of every archive without extension.
	Output  string
	Parquet ParquetOptions
	// StreamCompression wraps netCDF and CSV output in gzip or zstd.
	// Parquet output is compressed internally and never wrapped.
	StreamCompression string
	Metadata          Metadata
	// TempDir holds the archives while they are written. Empty uses
	// the system temp directory.
	TempDir string
}

// Output describes one written archive.
type Output struct {
	Format string
	Path   string
	URI    string
	Size   int64
}

// Result is the outcome of Archiver.Write.
type Result struct {
	ID      string
	Created time.Time
	Outputs []Output
}

// Archiver serializes ragged arrays and stores them on a backend.
type Archiver struct {
	backend storage.Backend
	opts    Options
	metrics *metrics.Build
	logger  zerolog.Logger
	now     func() time.Time
}

// New returns an Archiver writing to backend.
func New(backend storage.Backend, opts Options, m *metrics.Build, logger zerolog.Logger) (*Archiver, error) {
	if backend == nil {
		return nil, fmt.Errorf("archive: storage backend is required")
	}
	if len(opts.Formats) == 0 {
		opts.Formats = []string{FormatNetCDF}
	}
	for _, f := range opts.Formats {
		switch f {
		case FormatNetCDF, FormatParquet, FormatCSV:
		default:
			return nil, fmt.Errorf("archive: unknown format %q", f)
		}
	}
	if opts.Output == "" {
		opts.Output = "gdp_v2.00"
	}
	switch opts.StreamCompression {
	case "", "none", "gzip", "zstd":
	default:
		return nil, fmt.Errorf("archive: unsupported stream compression %q (valid: none, gzip, zstd)", opts.StreamCompression)
	}
	if _, err := ParquetCodec(opts.Parquet.Compression); err != nil {
		return nil, err
	}
	return &Archiver{
		backend: backend,
		opts:    opts,
		metrics: m,
		logger:  logger.With().Str("component", "archive").Logger(),
		now:     time.Now,
	}, nil
}

// Write serializes a in every configured format and stores the results.
// Either every format is stored or, on error, the outputs stored so far
// are deleted again.
func (ar *Archiver) Write(ctx context.Context, a *ragged.Array) (*Result, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	res := &Result{ID: uuid.NewString(), Created: ar.now().UTC()}
	attrs := GlobalAttributes(a, ar.opts.Metadata, res.ID, res.Created)

	for _, format := range ar.opts.Formats {
		if err := ctx.Err(); err != nil {
			ar.Discard(ctx, res)
			return nil, err
		}
		out, err := ar.writeOne(ctx, format, a, attrs)
		if err != nil {
			ar.Discard(ctx, res)
			return nil, fmt.Errorf("failed to write %s archive: %w", format, err)
		}
		res.Outputs = append(res.Outputs, out)
		ar.metrics.RecordArchive(out.Size)
		ar.logger.Info().
			Str("format", format).
			Str("uri", out.URI).
			Int64("size", out.Size).
			Msg("Archive written")
	}
	return res, nil
}

// Discard deletes the stored outputs of res. It runs even when ctx is
// cancelled. Every output is attempted; the first error is returned.
func (ar *Archiver) Discard(ctx context.Context, res *Result) error {
	if res == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	var first error
	for _, o := range res.Outputs {
		if err := ar.backend.Delete(ctx, o.Path); err != nil {
			ar.logger.Error().Err(err).Str("uri", o.URI).Msg("Failed to remove archive")
			if first == nil {
				first = fmt.Errorf("failed to remove %s: %w", o.Path, err)
			}
			continue
		}
		ar.logger.Warn().Str("uri", o.URI).Msg("Removed archive of failed build")
	}
	res.Outputs = nil
	return first
}

// Key returns the object key of a format's archive.
func (ar *Archiver) Key(format string) string {
	key := ar.opts.Output + Extension(format)
	if format != FormatParquet {
		switch ar.opts.StreamCompression {
		case "gzip":
			key += ".gz"
		case "zstd":
			key += ".zst"
		}
	}
	return key
}

func (ar *Archiver) writeOne(ctx context.Context, format string, a *ragged.Array, attrs []Attribute) (Output, error) {
	tmp, err := os.CreateTemp(ar.opts.TempDir, ".drift-archive-*"+Extension(format))
	if err != nil {
		return Output{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	switch format {
	case FormatNetCDF:
		// the netCDF writer owns the file by path
		tmp.Close()
		err = WriteNetCDF(tmpPath, a, attrs)
	case FormatParquet:
		err = writeBuffered(tmp, func(w io.Writer) error {
			return WriteParquet(w, a, attrs, ar.opts.Parquet, ar.logger)
		})
		tmp.Close()
	case FormatCSV:
		err = writeBuffered(tmp, func(w io.Writer) error { return WriteCSV(w, a) })
		tmp.Close()
	}
	if err != nil {
		return Output{}, err
	}

	path := tmpPath
	if format != FormatParquet && ar.opts.StreamCompression != "" && ar.opts.StreamCompression != "none" {
		path, err = compressFile(tmpPath, ar.opts.StreamCompression)
		if err != nil {
			return Output{}, err
		}
		defer os.Remove(path)
	}

	key := ar.Key(format)
	size, err := ar.upload(ctx, key, path)
	if err != nil {
		return Output{}, err
	}
	return Output{Format: format, Path: key, URI: ar.backend.URI(key), Size: size}, nil
}

func (ar *Archiver) upload(ctx context.Context, key, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if err := ar.backend.WriteReader(ctx, key, f, info.Size()); err != nil {
		return 0, fmt.Errorf("failed to store %s: %w", key, err)
	}
	return info.Size(), nil
}

func writeBuffered(f *os.File, write func(io.Writer) error) error {
	bw := bufio.NewWriterSize(f, 1<<20)
	if err := write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// compressFile writes a gzip or zstd copy of src next to it and returns
// its path.
func compressFile(src, codec string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := src + "." + strings.TrimPrefix(codec, ".")
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}

	var enc io.WriteCloser
	switch codec {
	case "gzip":
		enc = gzip.NewWriter(out)
	case "zstd":
		enc, err = zstd.NewWriter(out)
		if err != nil {
			out.Close()
			os.Remove(dst)
			return "", err
		}
	}

	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to compress archive: %w", err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to compress archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}
