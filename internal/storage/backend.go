package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// Backend stores source files and build outputs (local disk, S3, Azure Blob).
type Backend interface {
	// Write writes a small object in one call
	Write(ctx context.Context, path string, data []byte) error

	// WriteReader streams an object; size may be -1 when unknown
	WriteReader(ctx context.Context, path string, reader io.Reader, size int64) error

	// ReadTo streams the object at path into writer
	ReadTo(ctx context.Context, path string, writer io.Writer) error

	// List lists every object under prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes an object; deleting a missing object is not an error
	Delete(ctx context.Context, path string) error

	// Exists reports whether an object exists
	Exists(ctx context.Context, path string) (bool, error)

	// Close releases any resources held by the backend
	Close() error

	// Type returns the backend identifier ("local", "s3", "azure")
	Type() string

	// URI returns a human readable location for path, used in logs and
	// the build catalog
	URI(path string) string
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// contentType returns the MIME type used when uploading path.
func contentType(p string) string {
	name := strings.ToLower(path.Base(p))
	switch {
	case strings.HasSuffix(name, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(name, ".nc"):
		return "application/x-netcdf"
	case strings.HasSuffix(name, ".csv"):
		return "text/csv"
	case strings.HasSuffix(name, ".prom"), strings.HasSuffix(name, ".txt"):
		return "text/plain"
	case strings.HasSuffix(name, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".zst"):
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}

// keyspace maps backend paths to object keys under an optional prefix.
type keyspace struct {
	prefix string // without leading or trailing slash
}

func newKeyspace(prefix string) keyspace {
	return keyspace{prefix: strings.Trim(prefix, "/")}
}

// key returns the object key for p. An empty p yields the prefix itself
// followed by a slash, which is what listing the whole keyspace needs.
func (k keyspace) key(p string) string {
	p = strings.TrimLeft(p, "/")
	if k.prefix == "" {
		return p
	}
	return k.prefix + "/" + p
}

// rel strips the prefix from an object key.
func (k keyspace) rel(key string) string {
	if k.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, k.prefix+"/")
}
