package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec is the compression of a staged input.
type Codec string

const (
	CodecNone Codec = ""
	CodecGzip Codec = "gzip"
	CodecZstd Codec = "zstd"
)

// DetectCodec picks the codec from the file suffix.
func DetectCodec(name string) Codec {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return CodecGzip
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return CodecZstd
	default:
		return CodecNone
	}
}

// StripCodec removes the compression suffix from name.
func StripCodec(name string) string {
	switch DetectCodec(name) {
	case CodecGzip:
		return name[:len(name)-len(".gz")]
	case CodecZstd:
		if strings.HasSuffix(strings.ToLower(name), ".zstd") {
			return name[:len(name)-len(".zstd")]
		}
		return name[:len(name)-len(".zst")]
	default:
		return name
	}
}

// Decompress copies src to dst through codec. More than limit output
// bytes is ErrTooLarge; a limit of 0 disables the check.
func Decompress(dst io.Writer, src io.Reader, codec Codec, limit int64) (int64, error) {
	var r io.Reader
	switch codec {
	case CodecNone:
		r = src
	case CodecGzip:
		zr, err := gzip.NewReader(src)
		if err != nil {
			return 0, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case CodecZstd:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return 0, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return 0, fmt.Errorf("unknown codec %q", codec)
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(dst, r)
	if err != nil {
		return n, fmt.Errorf("decompress %s: %w", codec, err)
	}
	if limit > 0 && n > limit {
		return n, fmt.Errorf("%w: more than %d bytes after decompression", ErrTooLarge, limit)
	}
	return n, nil
}
