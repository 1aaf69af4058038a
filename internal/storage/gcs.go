package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/kafbulk/pkg/event"
	pkgstorage "github.com/jittakal/kafbulk/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Writer = (*GCSWriter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// clientOptions resolves the authentication method. Explicit JSON wins over
// a credentials file; with neither, application default credentials apply.
func (c GCSConfig) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	switch {
	case c.UseDefaultCredential:
	case c.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	case c.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	return opts
}

// GCSWriter implements storage.Writer for Google Cloud Storage.
type GCSWriter struct {
	*batchEncoder
	client *storage.Client
	bucket string
}

// NewGCSWriter creates a new Google Cloud Storage writer.
func NewGCSWriter(
	ctx context.Context,
	cfg GCSConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	be, err := newBatchEncoder("gcs", format, compression, logger, metrics)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	be.logger.Info("GCS writer created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"format", format,
		"compression", compression,
	)

	return &GCSWriter{batchEncoder: be, client: client, bucket: cfg.Bucket}, nil
}

// Write uploads records as one object under dir. dir may be a bare prefix or
// a gs://bucket/prefix URI.
func (w *GCSWriter) Write(ctx context.Context, records []event.Record, dir string) (pkgstorage.Object, error) {
	start := time.Now()

	buf, enc, key, err := w.encode(records, trimBucketURI(dir, "gs://"))
	if err != nil {
		return pkgstorage.Object{}, err
	}

	ow := w.client.Bucket(w.bucket).Object(key).NewWriter(ctx)
	ow.ContentType = enc.ContentType()

	size, err := buf.WriteTo(ow)
	if err != nil {
		_ = ow.Close()
		return pkgstorage.Object{}, w.fail("upload", key, fmt.Errorf("failed to write to GCS: %w", err))
	}

	// Close finalizes the upload.
	if err := ow.Close(); err != nil {
		return pkgstorage.Object{}, w.fail("close", key, fmt.Errorf("failed to close GCS writer: %w", err))
	}

	return w.written(key, len(records), size, start), nil
}

// Close closes the GCS client.
func (w *GCSWriter) Close() error {
	w.logger.Info("closing GCS writer")
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}
