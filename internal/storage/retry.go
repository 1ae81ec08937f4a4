package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig controls transient failure handling for remote backends.
type RetryConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// DefaultRetryConfig returns 3 retries with 100ms exponential backoff
// capped at 5s.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		RetryMaxDelay: 5 * time.Second,
	}
}

// RetryBackend wraps a Backend and retries failed operations with
// exponential backoff. Streams are retried only when they can be rewound.
type RetryBackend struct {
	backend Backend
	cfg     RetryConfig
	logger  zerolog.Logger
}

// NewRetryBackend wraps backend. A nil cfg uses DefaultRetryConfig.
func NewRetryBackend(backend Backend, cfg *RetryConfig, logger zerolog.Logger) *RetryBackend {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryBackend{
		backend: backend,
		cfg:     *cfg,
		logger:  logger.With().Str("component", "storage-retry").Str("backend", backend.Type()).Logger(),
	}
}

// Unwrap returns the wrapped backend.
func (r *RetryBackend) Unwrap() Backend {
	return r.backend
}

func (r *RetryBackend) do(ctx context.Context, op, path string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		delay := r.cfg.RetryDelay * time.Duration(1<<uint(attempt))
		if delay > r.cfg.RetryMaxDelay {
			delay = r.cfg.RetryMaxDelay
		}

		r.logger.Warn().
			Err(err).
			Str("op", op).
			Str("path", path).
			Int("attempt", attempt+1).
			Int("max_retries", r.cfg.MaxRetries).
			Dur("retry_delay", delay).
			Msg("Storage operation failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("storage %s failed after %d retries: %w", op, r.cfg.MaxRetries, lastErr)
}

func (r *RetryBackend) Write(ctx context.Context, path string, data []byte) error {
	return r.do(ctx, "write", path, func() error {
		return r.backend.Write(ctx, path, data)
	})
}

// WriteReader retries only when reader is an io.Seeker; otherwise a single
// attempt is made since consumed bytes cannot be replayed.
func (r *RetryBackend) WriteReader(ctx context.Context, path string, reader io.Reader, size int64) error {
	seeker, ok := reader.(io.Seeker)
	if !ok {
		return r.backend.WriteReader(ctx, path, reader, size)
	}

	first := true
	return r.do(ctx, "write", path, func() error {
		if !first {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind %s: %w", path, err)
			}
		}
		first = false
		return r.backend.WriteReader(ctx, path, reader, size)
	})
}

// ReadTo retries only when writer can be truncated back to empty.
func (r *RetryBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	type truncater interface {
		io.Seeker
		Truncate(size int64) error
	}
	t, ok := writer.(truncater)
	if !ok {
		return r.backend.ReadTo(ctx, path, writer)
	}

	first := true
	return r.do(ctx, "read", path, func() error {
		if !first {
			if err := t.Truncate(0); err != nil {
				return fmt.Errorf("reset %s: %w", path, err)
			}
			if _, err := t.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("reset %s: %w", path, err)
			}
		}
		first = false
		return r.backend.ReadTo(ctx, path, writer)
	})
}

func (r *RetryBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := r.do(ctx, "list", prefix, func() error {
		var err error
		out, err = r.backend.List(ctx, prefix)
		return err
	})
	return out, err
}

func (r *RetryBackend) Delete(ctx context.Context, path string) error {
	return r.do(ctx, "delete", path, func() error {
		return r.backend.Delete(ctx, path)
	})
}

func (r *RetryBackend) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.do(ctx, "exists", path, func() error {
		var err error
		exists, err = r.backend.Exists(ctx, path)
		return err
	})
	return exists, err
}

func (r *RetryBackend) Close() error {
	return r.backend.Close()
}

func (r *RetryBackend) Type() string {
	return r.backend.Type()
}

func (r *RetryBackend) URI(path string) string {
	return r.backend.URI(path)
}
