package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jittakal/kafbulk/pkg/event"
	pkgstorage "github.com/jittakal/kafbulk/pkg/storage"
)

// Backend names.
const (
	BackendFile  = "file"
	BackendS3    = "s3"
	BackendAzure = "azure"
	BackendGCS   = "gcs"
)

// Config selects and configures one storage backend.
type Config struct {
	Backend     string
	Format      event.FileFormat
	Compression string
	File        FileConfig
	S3          S3Config
	Azure       AzureConfig
	GCS         GCSConfig
}

// NewWriter creates the writer for the configured backend.
func NewWriter(ctx context.Context, cfg Config, logger *slog.Logger, metrics MetricsCollector) (pkgstorage.Writer, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileWriter(cfg.File, cfg.Format, cfg.Compression, logger, metrics)
	case BackendS3:
		return NewS3Writer(ctx, cfg.S3, cfg.Format, cfg.Compression, logger, metrics)
	case BackendAzure:
		return NewAzureWriter(cfg.Azure, cfg.Format, cfg.Compression, logger, metrics)
	case BackendGCS:
		return NewGCSWriter(ctx, cfg.GCS, cfg.Format, cfg.Compression, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
