package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/drift/internal/nested"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/rs/zerolog"
)

// ParquetOptions configures the Parquet writer.
type ParquetOptions struct {
	Compression      string // snappy, gzip, zstd or none
	CompressionLevel int    // 0 uses the codec default
	RowGroupSize     int64  // trajectories per row group
	Dictionary       bool
	Statistics       bool
}

// DefaultParquetOptions returns zstd compression with statistics.
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression:  "zstd",
		RowGroupSize: 4096,
		Dictionary:   true,
		Statistics:   true,
	}
}

// ParquetCodec maps a compression name to a Parquet codec.
func ParquetCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "snappy", "":
		return compress.Codecs.Snappy, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported parquet compression %q (valid: snappy, gzip, zstd, none)", name)
	}
}

// WriteParquet writes a to w as one Parquet row per trajectory, with
// observation fields as large_list columns. Global attributes become
// schema metadata and field attributes become field metadata.
func WriteParquet(w io.Writer, a *ragged.Array, attrs []Attribute, opts ParquetOptions, logger zerolog.Logger) error {
	codec, err := ParquetCodec(opts.Compression)
	if err != nil {
		return err
	}

	view, err := nested.New(a, nested.ZeroCopy)
	if err != nil {
		return err
	}

	keys := make([]string, len(attrs))
	vals := make([]string, len(attrs))
	for i, at := range attrs {
		keys[i], vals[i] = at.Name, at.Value
	}
	meta := arrow.NewMetadata(keys, vals)

	record, err := view.Arrow(memory.DefaultAllocator, &meta)
	if err != nil {
		return fmt.Errorf("failed to build Arrow record: %w", err)
	}
	defer record.Release()

	writerOpts := []parquet.WriterProperty{
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(opts.Dictionary),
		parquet.WithStats(opts.Statistics),
		parquet.WithDataPageVersion(parquet.DataPageV2),
	}
	if opts.CompressionLevel != 0 {
		writerOpts = append(writerOpts, parquet.WithCompressionLevel(opts.CompressionLevel))
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.WithMaxRowGroupLength(opts.RowGroupSize))
	}
	writerProps := parquet.NewWriterProperties(writerOpts...)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(record.Schema(), w, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}

	logger.Debug().
		Int("columns", len(record.Schema().Fields())).
		Int64("rows", record.NumRows()).
		Str("compression", codec.String()).
		Msg("Wrote Parquet archive")

	return nil
}
