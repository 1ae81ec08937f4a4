package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LocalBackend stores objects as files under a base directory. Object
// paths always resolve inside that directory.
type LocalBackend struct {
	root   string
	logger zerolog.Logger
}

// NewLocalBackend creates the base directory if needed.
func NewLocalBackend(basePath string, logger zerolog.Logger) (*LocalBackend, error) {
	root, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", basePath, err)
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &LocalBackend{
		root:   root,
		logger: logger.With().Str("component", "local-storage").Logger(),
	}, nil
}

// resolve maps an object path to a file under the root. Parent
// references are collapsed at the root, so "../../x" is "x".
func (b *LocalBackend) resolve(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("invalid path %q: contains NUL", p)
	}
	rel := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")
	if rel == "" {
		return b.root, nil
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid path %q: escapes base directory", p)
	}
	return filepath.Join(b.root, filepath.FromSlash(rel)), nil
}

func (b *LocalBackend) Write(ctx context.Context, path string, data []byte) error {
	return b.WriteReader(ctx, path, bytes.NewReader(data), int64(len(data)))
}

// WriteReader copies reader into a hidden temp file next to path and
// renames it into place. A size other than -1 must match the bytes read.
func (b *LocalBackend) WriteReader(ctx context.Context, path string, reader io.Reader, size int64) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".drift-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp.Name())
		}
	}()

	written, err := io.Copy(tmp, reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("short write for %s: wrote %d of %d bytes", path, written, size)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	committed = true

	b.logger.Debug().Str("path", path).Int64("size", written).Msg("Wrote file")
	return nil
}

func (b *LocalBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	f, err := os.Open(full)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(writer, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// List walks prefix recursively. Hidden files, including in-flight temp
// files, are skipped.
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	start, err := b.resolve(prefix)
	if err != nil {
		return nil, err
	}

	objects := []ObjectInfo{}
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{
			Path:         filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return objects, nil
}

// Delete removes the file at path; a missing file is not an error.
func (b *LocalBackend) Delete(ctx context.Context, path string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	b.logger.Debug().Str("path", path).Msg("Deleted file")
	return nil
}

func (b *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	full, err := b.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}

func (b *LocalBackend) Close() error { return nil }

// GetFullPath returns the file backing path, or "" for an invalid path.
func (b *LocalBackend) GetFullPath(path string) string {
	full, err := b.resolve(path)
	if err != nil {
		return ""
	}
	return full
}

// GetBasePath returns the base directory.
func (b *LocalBackend) GetBasePath() string {
	return b.root
}

func (b *LocalBackend) Type() string { return "local" }

func (b *LocalBackend) URI(path string) string {
	if full := b.GetFullPath(path); full != "" {
		return "file://" + full
	}
	return "file://" + b.root
}
