package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/basekick-labs/drift/internal/ragged"
)

// ErrTooLarge is returned for inputs above the configured size limit.
var ErrTooLarge = errors.New("input exceeds max_file_size")

// File is a local uncompressed netCDF file.
type File struct {
	Path    string
	Label   string // name reported for the record; defaults to the base name of Path
	MaxSize int64  // 0 disables the check
}

func (f File) Name() string {
	if f.Label != "" {
		return f.Label
	}
	return filepath.Base(f.Path)
}

func (f File) Open(ctx context.Context) (ragged.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.MaxSize > 0 {
		info, err := os.Stat(f.Path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f.Path, err)
		}
		if info.Size() > f.MaxSize {
			return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, f.Path, info.Size(), f.MaxSize)
		}
	}
	return OpenNetCDF(f.Path)
}
