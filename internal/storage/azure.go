package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/jittakal/kafbulk/pkg/event"
	"github.com/jittakal/kafbulk/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*AzureWriter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// connectionString builds an account key connection string. Endpoint
// overrides the public cloud suffix, e.g. for Azurite.
func (c AzureConfig) connectionString() string {
	if c.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			c.AccountName, c.AccountKey, c.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		c.AccountName, c.AccountKey)
}

type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureWriter implements storage.Writer for Azure Blob Storage.
type AzureWriter struct {
	*batchEncoder
	client        blobUploader
	containerName string
}

// NewAzureWriter creates a new Azure Blob storage writer.
func NewAzureWriter(
	cfg AzureConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure container name is required")
	}

	client, err := azblob.NewClientFromConnectionString(cfg.connectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	be, err := newBatchEncoder("azure", format, compression, logger, metrics)
	if err != nil {
		return nil, err
	}

	be.logger.Info("Azure writer created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"format", format,
		"compression", compression,
	)

	return &AzureWriter{
		batchEncoder:  be,
		client:        client,
		containerName: cfg.ContainerName,
	}, nil
}

// Write uploads records as one blob under dir. dir may be a bare prefix or
// a wasbs://container/prefix URI.
func (w *AzureWriter) Write(ctx context.Context, records []event.Record, dir string) (storage.Object, error) {
	start := time.Now()

	buf, enc, key, err := w.encode(records, trimBucketURI(dir, "wasbs://"))
	if err != nil {
		return storage.Object{}, err
	}
	size := int64(buf.Len())

	contentType := enc.ContentType()
	_, err = w.client.UploadBuffer(ctx, w.containerName, key, buf.Bytes(), &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return storage.Object{}, w.fail("upload", key, fmt.Errorf("failed to upload to Azure Blob: %w", err))
	}

	return w.written(key, len(records), size, start), nil
}

// Close closes the Azure writer.
func (w *AzureWriter) Close() error {
	w.logger.Info("Azure writer closed")
	return nil
}
