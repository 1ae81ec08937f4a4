package storage

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Config selects and configures a Backend.
type Config struct {
	Backend   string // "local", "s3" or "azure"
	LocalPath string
	S3        S3Config
	Azure     AzureBlobConfig
	Retry     *RetryConfig
}

// New builds the configured backend. Remote backends are wrapped in a
// RetryBackend.
func New(cfg Config, logger zerolog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", "local":
		path := cfg.LocalPath
		if path == "" {
			path = "."
		}
		return NewLocalBackend(path, logger)
	case "s3", "minio":
		s3cfg := cfg.S3
		b, err := NewS3Backend(&s3cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewRetryBackend(b, cfg.Retry, logger), nil
	case "azure", "azblob":
		azcfg := cfg.Azure
		b, err := NewAzureBlobBackend(&azcfg, logger)
		if err != nil {
			return nil, err
		}
		return NewRetryBackend(b, cfg.Retry, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
