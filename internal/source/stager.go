package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/basekick-labs/drift/internal/metrics"
	"github.com/basekick-labs/drift/internal/ragged"
	"github.com/basekick-labs/drift/internal/storage"
)

// StagingPass is reported to the observer while files are staged.
const StagingPass ragged.Pass = "staging"

// StagerOptions configures a Stager.
type StagerOptions struct {
	Backend  storage.Backend // required for StageRemote
	Dir      string          // parent of the staging directory; "" uses the OS temp dir
	Workers  int
	MaxSize  int64
	Metrics  *metrics.Build
	Observer ragged.Observer
	Logger   zerolog.Logger
}

// Stager materializes inputs as local uncompressed files the netCDF
// reader can open. Everything it writes lives in one directory removed
// by Close.
type Stager struct {
	backend  storage.Backend
	dir      string
	workers  int
	maxSize  int64
	metrics  *metrics.Build
	observer ragged.Observer
	logger   zerolog.Logger

	closeOnce sync.Once
}

// NewStager creates the staging directory.
func NewStager(opts StagerOptions) (*Stager, error) {
	dir, err := os.MkdirTemp(opts.Dir, "drift-staging-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Stager{
		backend:  opts.Backend,
		dir:      dir,
		workers:  workers,
		maxSize:  opts.MaxSize,
		metrics:  opts.Metrics,
		observer: opts.Observer,
		logger:   opts.Logger.With().Str("component", "stager").Logger(),
	}, nil
}

// Dir returns the staging directory.
func (s *Stager) Dir() string {
	return s.dir
}

// List returns the objects under prefix matching pattern, sorted by path.
func (s *Stager) List(ctx context.Context, prefix, pattern string) ([]storage.ObjectInfo, error) {
	if s.backend == nil {
		return nil, fmt.Errorf("stager has no storage backend")
	}
	objects, err := s.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.backend.URI(prefix), err)
	}
	return Select(objects, pattern)
}

// StageRemote downloads every object under prefix matching pattern and
// returns one source per object, in path order.
func (s *Stager) StageRemote(ctx context.Context, prefix, pattern string) ([]ragged.Source, error) {
	objects, err := s.List(ctx, prefix, pattern)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("prefix", s.backend.URI(prefix)).
		Str("pattern", pattern).
		Int("files", len(objects)).
		Msg("Staging drifter files")

	return s.stage(ctx, len(objects), func(ctx context.Context, i int) (ragged.Source, error) {
		return s.fetch(ctx, i, objects[i])
	})
}

// StageLocal returns sources for local files. Uncompressed files are used
// in place; compressed files are decompressed into the staging directory.
func (s *Stager) StageLocal(ctx context.Context, paths []string) ([]ragged.Source, error) {
	return s.stage(ctx, len(paths), func(ctx context.Context, i int) (ragged.Source, error) {
		p := paths[i]
		codec := DetectCodec(p)
		if codec == CodecNone {
			return File{Path: p, MaxSize: s.maxSize}, nil
		}

		in, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		defer in.Close()

		dst := s.target(i, filepath.Base(p))
		n, err := s.writeFile(dst, func(w io.Writer) (int64, error) {
			return Decompress(w, in, codec, s.maxSize)
		})
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", p, err)
		}
		s.metrics.RecordStaged(n)
		return File{Path: dst, Label: p}, nil
	})
}

// stage runs fn for every index with at most s.workers in flight. The
// first error cancels the remaining work.
func (s *Stager) stage(ctx context.Context, n int, fn func(context.Context, int) (ragged.Source, error)) ([]ragged.Source, error) {
	start := time.Now()
	out := make([]ragged.Source, n)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.observer != nil {
		s.observer.Start(StagingPass, n)
		defer s.observer.Finish(StagingPass)
	}

	sem := semaphore.NewWeighted(int64(s.workers))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)

			src, err := fn(ctx, i)
			if s.observer != nil {
				s.observer.Done(StagingPass)
			}
			if err != nil {
				s.metrics.IncStagingErrors()
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			out[i] = src
		}(i)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("files", n).
		Dur("elapsed", time.Since(start)).
		Msg("Staging complete")
	return out, nil
}

// target names the staged copy of input i; the index prefix keeps
// identical base names from different prefixes apart.
func (s *Stager) target(i int, name string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%06d_%s", i, StripCodec(name)))
}

func (s *Stager) fetch(ctx context.Context, i int, obj storage.ObjectInfo) (ragged.Source, error) {
	codec := DetectCodec(obj.Path)
	if codec == CodecNone && s.maxSize > 0 && obj.Size > s.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, obj.Path, obj.Size, s.maxSize)
	}

	dst := s.target(i, path.Base(obj.Path))
	n, err := s.writeFile(dst, func(w io.Writer) (int64, error) {
		if codec == CodecNone {
			lw := &limitWriter{w: w, limit: s.maxSize}
			err := s.backend.ReadTo(ctx, obj.Path, lw)
			return lw.n, err
		}

		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(s.backend.ReadTo(ctx, obj.Path, pw))
		}()
		n, err := Decompress(w, pr, codec, s.maxSize)
		pr.CloseWithError(err)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", s.backend.URI(obj.Path), err)
	}

	s.metrics.RecordStaged(n)
	s.logger.Debug().
		Str("object", obj.Path).
		Str("file", dst).
		Int64("bytes", n).
		Msg("Staged file")

	return File{Path: dst, Label: obj.Path}, nil
}

// writeFile creates dst and fills it with write, removing it on failure.
func (s *Stager) writeFile(dst string, write func(io.Writer) (int64, error)) (int64, error) {
	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return n, err
	}
	return n, nil
}

// Close removes the staging directory and everything in it.
func (s *Stager) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = os.RemoveAll(s.dir)
		s.logger.Debug().Str("dir", s.dir).Msg("Removed staging directory")
	})
	return err
}

// limitWriter fails once more than limit bytes are written; a limit of
// 0 disables the check.
type limitWriter struct {
	w     io.Writer
	limit int64
	n     int64
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.limit > 0 && l.n+int64(len(p)) > l.limit {
		return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.limit)
	}
	n, err := l.w.Write(p)
	l.n += int64(n)
	return n, err
}
