package config

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/basekick-labs/drift/internal/storage"
)

// Config holds all configuration for drift
type Config struct {
	Log      LogConfig
	Source   SourceConfig
	Build    BuildConfig
	Archive  ArchiveConfig
	Storage  StorageConfig
	Catalog  CatalogConfig
	Metadata MetadataConfig
	Retry    RetryConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type SourceConfig struct {
	Backend     string // Storage backend holding the drifter files; empty means storage.backend
	Prefix      string // Prefix listed for drifter files
	Pattern     string // Glob matched against the base name (default: drifter_*.nc*)
	MaxFileSize int64  // Largest accepted input file in bytes, after decompression
	StagingDir  string // Local directory for staged remote files (default: OS temp dir)
}

type BuildConfig struct {
	Workers int    // Concurrent records in the sizing and fill passes (default: CPU count)
	OnError string // "fail" or "skip"
}

type ArchiveConfig struct {
	Formats           []string // netcdf, parquet, csv
	Output            string   // Object path prefix for outputs, without extension
	Compression       string   // Parquet codec: snappy, gzip, zstd, none
	CompressionLevel  int      // Codec level for zstd/gzip (0 = codec default)
	RowGroupSize      int64    // Parquet rows (trajectories) per row group
	StreamCompression string   // netCDF and CSV stream compression: none, gzip, zstd
}

type StorageConfig struct {
	Backend   string
	LocalPath string
	Prefix    string // Key prefix for the s3 and azure backends
	// S3/MinIO configuration
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // Custom endpoint for MinIO (e.g., "http://localhost:9000")
	S3AccessKey string // AWS access key (or use AWS_ACCESS_KEY_ID env var)
	S3SecretKey string // AWS secret key (or use AWS_SECRET_ACCESS_KEY env var)
	S3UseSSL    bool   // Use HTTPS for S3 connections
	S3PathStyle bool   // Use path-style addressing (required for MinIO)
	// Azure Blob Storage configuration
	AzureConnectionString   string
	AzureAccountName        string
	AzureAccountKey         string
	AzureSASToken           string
	AzureContainer          string
	AzureEndpoint           string // Custom endpoint (for Azurite testing)
	AzureUseManagedIdentity bool
}

type CatalogConfig struct {
	Enabled bool
	Path    string // SQLite database path
}

// MetadataConfig overrides archive provenance attributes. Empty values
// keep the built-in GDP defaults.
type MetadataConfig struct {
	Title           string
	Summary         string
	PublisherName   string
	PublisherEmail  string
	PublisherURL    string
	Institution     string
	ContributorName string
	ContributorRole string
	Licence         string
}

type RetryConfig struct {
	MaxRetries int
	Delay      time.Duration
	MaxDelay   time.Duration
}

// Load reads configuration from defaults, an optional drift.toml, an
// optional .env file and DRIFT_* environment variables. A non-empty path
// names the config file explicitly; it must then exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DRIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("drift")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/drift/")
		v.AddConfigPath("$HOME/.drift/")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			// Config file not found is OK, use defaults
		}
	}

	maxFileSize, err := ParseSize(v.GetString("source.max_file_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid source.max_file_size: %w", err)
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Source: SourceConfig{
			Backend:     v.GetString("source.backend"),
			Prefix:      v.GetString("source.prefix"),
			Pattern:     v.GetString("source.pattern"),
			MaxFileSize: maxFileSize,
			StagingDir:  v.GetString("source.staging_dir"),
		},
		Build: BuildConfig{
			Workers: v.GetInt("build.workers"),
			OnError: v.GetString("build.on_error"),
		},
		Archive: ArchiveConfig{
			Formats:           v.GetStringSlice("archive.formats"),
			Output:            v.GetString("archive.output"),
			Compression:       v.GetString("archive.compression"),
			CompressionLevel:  v.GetInt("archive.compression_level"),
			RowGroupSize:      v.GetInt64("archive.row_group_size"),
			StreamCompression: v.GetString("archive.stream_compression"),
		},
		Storage: StorageConfig{
			Backend:     v.GetString("storage.backend"),
			LocalPath:   v.GetString("storage.local_path"),
			Prefix:      v.GetString("storage.prefix"),
			S3Bucket:    v.GetString("storage.s3_bucket"),
			S3Region:    v.GetString("storage.s3_region"),
			S3Endpoint:  v.GetString("storage.s3_endpoint"),
			S3AccessKey: v.GetString("storage.s3_access_key"),
			S3SecretKey: v.GetString("storage.s3_secret_key"),
			S3UseSSL:    v.GetBool("storage.s3_use_ssl"),
			S3PathStyle: v.GetBool("storage.s3_path_style"),

			AzureConnectionString:   v.GetString("storage.azure_connection_string"),
			AzureAccountName:        v.GetString("storage.azure_account_name"),
			AzureAccountKey:         v.GetString("storage.azure_account_key"),
			AzureSASToken:           v.GetString("storage.azure_sas_token"),
			AzureContainer:          v.GetString("storage.azure_container"),
			AzureEndpoint:           v.GetString("storage.azure_endpoint"),
			AzureUseManagedIdentity: v.GetBool("storage.azure_use_managed_identity"),
		},
		Catalog: CatalogConfig{
			Enabled: v.GetBool("catalog.enabled"),
			Path:    v.GetString("catalog.path"),
		},
		Metadata: MetadataConfig{
			Title:           v.GetString("metadata.title"),
			Summary:         v.GetString("metadata.summary"),
			PublisherName:   v.GetString("metadata.publisher_name"),
			PublisherEmail:  v.GetString("metadata.publisher_email"),
			PublisherURL:    v.GetString("metadata.publisher_url"),
			Institution:     v.GetString("metadata.institution"),
			ContributorName: v.GetString("metadata.contributor_name"),
			ContributorRole: v.GetString("metadata.contributor_role"),
			Licence:         v.GetString("metadata.licence"),
		},
		Retry: RetryConfig{
			MaxRetries: v.GetInt("retry.max_retries"),
			Delay:      v.GetDuration("retry.delay"),
			MaxDelay:   v.GetDuration("retry.max_delay"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("source.backend", "")
	v.SetDefault("source.prefix", "raw")
	v.SetDefault("source.pattern", "drifter_*.nc*")
	v.SetDefault("source.max_file_size", "512MB")
	v.SetDefault("source.staging_dir", "")

	v.SetDefault("build.workers", getDefaultWorkers())
	v.SetDefault("build.on_error", "fail")

	v.SetDefault("archive.formats", []string{"netcdf"})
	v.SetDefault("archive.output", "gdp_v2.00")
	v.SetDefault("archive.compression", "zstd")
	v.SetDefault("archive.compression_level", 0)
	v.SetDefault("archive.row_group_size", 4096)
	v.SetDefault("archive.stream_compression", "none")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_path", "./data")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_use_ssl", true)
	v.SetDefault("storage.s3_path_style", false)
	v.SetDefault("storage.azure_use_managed_identity", false)

	v.SetDefault("catalog.enabled", true)
	v.SetDefault("catalog.path", "./data/drift.db")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.delay", "100ms")
	v.SetDefault("retry.max_delay", "5s")
}

func getDefaultWorkers() int {
	workers := runtime.NumCPU()
	if workers > 32 {
		return 32
	}
	return workers
}

// Validate checks values that cannot be corrected with a default.
func (cfg *Config) Validate() error {
	switch cfg.Build.OnError {
	case "fail", "skip":
	default:
		return fmt.Errorf("invalid build.on_error %q (use fail or skip)", cfg.Build.OnError)
	}
	if cfg.Build.Workers < 1 {
		return fmt.Errorf("build.workers must be at least 1, got %d", cfg.Build.Workers)
	}
	if cfg.Archive.RowGroupSize < 1 {
		return fmt.Errorf("archive.row_group_size must be positive, got %d", cfg.Archive.RowGroupSize)
	}
	formats, err := ParseFormats(cfg.Archive.Formats)
	if err != nil {
		return err
	}
	cfg.Archive.Formats = formats
	switch cfg.Archive.StreamCompression {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("invalid archive.stream_compression %q (use none, gzip or zstd)", cfg.Archive.StreamCompression)
	}
	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}
	return nil
}

// StorageFor converts the storage section into a backend config. An
// empty backend keeps storage.backend.
func (cfg *Config) StorageFor(backend string) storage.Config {
	s := cfg.Storage
	if backend == "" {
		backend = s.Backend
	}
	return storage.Config{
		Backend:   backend,
		LocalPath: s.LocalPath,
		S3: storage.S3Config{
			Bucket:    s.S3Bucket,
			Region:    s.S3Region,
			Endpoint:  s.S3Endpoint,
			AccessKey: s.S3AccessKey,
			SecretKey: s.S3SecretKey,
			UseSSL:    s.S3UseSSL,
			PathStyle: s.S3PathStyle,
			Prefix:    s.Prefix,
		},
		Azure: storage.AzureBlobConfig{
			ConnectionString:   s.AzureConnectionString,
			AccountName:        s.AzureAccountName,
			AccountKey:         s.AzureAccountKey,
			SASToken:           s.AzureSASToken,
			UseManagedIdentity: s.AzureUseManagedIdentity,
			ContainerName:      s.AzureContainer,
			Endpoint:           s.AzureEndpoint,
			Prefix:             s.Prefix,
		},
		Retry: &storage.RetryConfig{
			MaxRetries:    cfg.Retry.MaxRetries,
			RetryDelay:    cfg.Retry.Delay,
			RetryMaxDelay: cfg.Retry.MaxDelay,
		},
	}
}
