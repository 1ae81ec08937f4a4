package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

const (
	// archive uploads are split into 16MB parts, five in flight
	uploadPartSize    = 16 * 1024 * 1024
	uploadConcurrency = 5
)

// S3Config holds S3 backend configuration
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // Custom endpoint for MinIO (e.g., "http://localhost:9000")
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool   // Path-style addressing (required for MinIO)
	Prefix    string // Key prefix every object path is placed under
}

// S3Backend stores objects in an S3 or MinIO bucket. Object paths are
// relative to the configured key prefix.
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	keys     keyspace
	logger   zerolog.Logger
}

// NewS3Backend creates a new S3/MinIO backend
func NewS3Backend(cfg *S3Config, logger zerolog.Logger) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	log := logger.With().Str("component", "s3-storage").Str("bucket", cfg.Bucket).Logger()

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if creds := staticS3Credentials(cfg); creds != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
		log.Info().Msg("Using static credentials for S3")
	} else {
		log.Info().Msg("Using default credential chain for S3")
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	if endpoint != "" {
		log.Info().Str("endpoint", endpoint).Msg("Using custom S3 endpoint")
	}

	b := &S3Backend{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
			u.Concurrency = uploadConcurrency
		}),
		bucket: cfg.Bucket,
		keys:   newKeyspace(cfg.Prefix),
		logger: log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		log.Warn().Err(err).Msg("Could not verify bucket exists")
	} else {
		log.Info().Str("prefix", b.keys.prefix).Msg("Connected to S3 bucket")
	}
	return b, nil
}

// staticS3Credentials returns a static provider when an access key pair
// is configured or present in the AWS_* environment, nil otherwise.
func staticS3Credentials(cfg *S3Config) aws.CredentialsProvider {
	access, secret := cfg.AccessKey, cfg.SecretKey
	if access == "" {
		access = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if secret == "" {
		secret = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if access == "" || secret == "" {
		return nil
	}
	return credentials.NewStaticCredentialsProvider(access, secret, "")
}

// normalizeEndpoint adds a scheme to a bare host:port endpoint.
func normalizeEndpoint(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func (b *S3Backend) Write(ctx context.Context, path string, data []byte) error {
	return b.WriteReader(ctx, path, bytes.NewReader(data), int64(len(data)))
}

// WriteReader uploads reader through the transfer manager, which sends
// a single PutObject for small bodies and a multipart upload otherwise.
func (b *S3Backend) WriteReader(ctx context.Context, path string, reader io.Reader, size int64) error {
	start := time.Now()
	key := b.keys.key(path)

	out, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType(path)),
	})
	if err != nil {
		b.logger.Error().Err(err).Str("key", key).Int64("size", size).Msg("S3 upload failed")
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	b.logger.Debug().
		Str("key", key).
		Int64("size", size).
		Bool("multipart", out.UploadID != "").
		Dur("duration", time.Since(start)).
		Msg("Uploaded to S3")
	return nil
}

func (b *S3Backend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	key := b.keys.key(path)
	obj, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get %s from S3: %w", key, err)
	}
	defer obj.Body.Close()

	if _, err := io.Copy(writer, obj.Body); err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return nil
}

// List returns the objects under prefix with paths relative to the
// backend prefix.
func (b *S3Backend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.keys.key(prefix)),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, ObjectInfo{
				Path:         b.keys.rel(key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

func (b *S3Backend) Delete(ctx context.Context, path string) error {
	key := b.keys.key(path)
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete %s from S3: %w", key, err)
	}
	b.logger.Debug().Str("key", key).Msg("Deleted from S3")
	return nil
}

func (b *S3Backend) Exists(ctx context.Context, path string) (bool, error) {
	key := b.keys.key(path)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case isS3NotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s in S3: %w", key, err)
	}
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	var noKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noKey)
}

func (b *S3Backend) Close() error { return nil }

func (b *S3Backend) Type() string { return "s3" }

func (b *S3Backend) URI(path string) string {
	return fmt.Sprintf("s3://%s/%s", b.bucket, b.keys.key(path))
}
