package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/rs/zerolog"
)

// AzureBlobConfig holds Azure Blob Storage backend configuration.
// Exactly one authentication method is used, tried in field order.
type AzureBlobConfig struct {
	ConnectionString   string
	AccountName        string
	AccountKey         string
	SASToken           string
	UseManagedIdentity bool

	ContainerName string
	Endpoint      string // Custom endpoint (for Azurite testing)
	Prefix        string // Blob name prefix every object path is placed under
}

func (cfg *AzureBlobConfig) serviceURL() string {
	if cfg.Endpoint != "" {
		return strings.TrimSuffix(cfg.Endpoint, "/")
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
}

// AzureBlobBackend stores objects as block blobs in one container.
type AzureBlobBackend struct {
	client    *azblob.Client
	container string
	keys      keyspace
	logger    zerolog.Logger
}

// NewAzureBlobBackend creates a new Azure Blob Storage backend
func NewAzureBlobBackend(cfg *AzureBlobConfig, logger zerolog.Logger) (*AzureBlobBackend, error) {
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("Azure container name is required")
	}
	log := logger.With().Str("component", "azure-storage").Str("container", cfg.ContainerName).Logger()

	client, method, err := newAzureClient(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("auth", method).Msg("Created Azure Blob Storage client")

	b := &AzureBlobBackend{
		client:    client,
		container: cfg.ContainerName,
		keys:      newKeyspace(cfg.Prefix),
		logger:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.containerClient().GetProperties(ctx, nil); err != nil {
		log.Warn().Err(err).Msg("Could not verify container exists")
	} else {
		log.Info().Str("prefix", b.keys.prefix).Msg("Connected to Azure Blob Storage container")
	}
	return b, nil
}

// newAzureClient builds a client from the first usable authentication
// method and returns that method's name.
func newAzureClient(cfg *AzureBlobConfig) (*azblob.Client, string, error) {
	switch {
	case cfg.ConnectionString != "":
		c, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		return c, "connection-string", wrapAzureAuth("connection string", err)

	case cfg.AccountName != "" && cfg.AccountKey != "":
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, "", wrapAzureAuth("shared key", err)
		}
		c, err := azblob.NewClientWithSharedKeyCredential(cfg.serviceURL(), cred, nil)
		return c, "shared-key", wrapAzureAuth("shared key", err)

	case cfg.AccountName != "" && cfg.SASToken != "":
		url := cfg.serviceURL() + "?" + strings.TrimPrefix(cfg.SASToken, "?")
		c, err := azblob.NewClientWithNoCredential(url, nil)
		return c, "sas-token", wrapAzureAuth("SAS token", err)

	case cfg.AccountName != "" && cfg.UseManagedIdentity:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, "", wrapAzureAuth("managed identity", err)
		}
		c, err := azblob.NewClient(cfg.serviceURL(), cred, nil)
		return c, "managed-identity", wrapAzureAuth("managed identity", err)
	}
	return nil, "", fmt.Errorf("no Azure authentication configured: set a connection string, " +
		"or an account name with an account key, SAS token or managed identity")
}

func wrapAzureAuth(method string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to create Azure client with %s: %w", method, err)
}

func (b *AzureBlobBackend) containerClient() *container.Client {
	return b.client.ServiceClient().NewContainerClient(b.container)
}

func (b *AzureBlobBackend) Write(ctx context.Context, path string, data []byte) error {
	return b.WriteReader(ctx, path, bytes.NewReader(data), int64(len(data)))
}

// WriteReader streams reader into a block blob in 8MB blocks.
func (b *AzureBlobBackend) WriteReader(ctx context.Context, path string, reader io.Reader, size int64) error {
	start := time.Now()
	name := b.keys.key(path)

	_, err := b.client.UploadStream(ctx, b.container, name, reader, &azblob.UploadStreamOptions{
		BlockSize:   8 * 1024 * 1024,
		Concurrency: uploadConcurrency,
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType(path))},
	})
	if err != nil {
		b.logger.Error().Err(err).Str("blob", name).Int64("size", size).Msg("Azure upload failed")
		return fmt.Errorf("failed to upload %s to Azure Blob Storage: %w", name, err)
	}

	b.logger.Debug().
		Str("blob", name).
		Int64("size", size).
		Dur("duration", time.Since(start)).
		Msg("Uploaded to Azure Blob Storage")
	return nil
}

func (b *AzureBlobBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	name := b.keys.key(path)
	resp, err := b.client.DownloadStream(ctx, b.container, name, nil)
	if err != nil {
		return fmt.Errorf("failed to get %s from Azure Blob Storage: %w", name, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("failed to download %s: %w", name, err)
	}
	return nil
}

// List returns the blobs under prefix with paths relative to the
// backend prefix.
func (b *AzureBlobBackend) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	pager := b.client.NewListBlobsFlatPager(b.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(b.keys.key(prefix)),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list Azure blobs: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := ObjectInfo{Path: b.keys.rel(*item.Name)}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					info.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					info.LastModified = *p.LastModified
				}
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

// Delete removes a blob; a missing blob is not an error.
func (b *AzureBlobBackend) Delete(ctx context.Context, path string) error {
	name := b.keys.key(path)
	_, err := b.client.DeleteBlob(ctx, b.container, name, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("failed to delete %s from Azure Blob Storage: %w", name, err)
	}
	b.logger.Debug().Str("blob", name).Msg("Deleted from Azure Blob Storage")
	return nil
}

func (b *AzureBlobBackend) Exists(ctx context.Context, path string) (bool, error) {
	name := b.keys.key(path)
	_, err := b.containerClient().NewBlobClient(name).GetProperties(ctx, nil)
	switch {
	case err == nil:
		return true, nil
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s in Azure Blob Storage: %w", name, err)
	}
}

func (b *AzureBlobBackend) Close() error { return nil }

func (b *AzureBlobBackend) Type() string { return "azure" }

func (b *AzureBlobBackend) URI(path string) string {
	return fmt.Sprintf("azure://%s/%s", b.container, b.keys.key(path))
}
