package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jittakal/kafbulk/pkg/event"
	"github.com/jittakal/kafbulk/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*S3Writer)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// uploader is the subset of manager.Uploader used by S3Writer.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Writer implements storage.Writer for AWS S3 with multipart upload
// and optional server-side encryption.
type S3Writer struct {
	*batchEncoder
	uploader    uploader
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
}

// NewS3Writer creates a new S3 storage writer.
func NewS3Writer(
	ctx context.Context,
	cfg S3Config,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	up := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5
	})

	w, err := newS3Writer(cfg, up, format, compression, logger, metrics)
	if err != nil {
		return nil, err
	}

	w.logger.Info("S3 writer created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"format", format,
		"compression", compression,
		"sse_enabled", cfg.SSEEnabled,
	)
	return w, nil
}

func newS3Writer(
	cfg S3Config,
	up uploader,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	be, err := newBatchEncoder("s3", format, compression, logger, metrics)
	if err != nil {
		return nil, err
	}
	return &S3Writer{
		batchEncoder: be,
		uploader:     up,
		bucket:       cfg.Bucket,
		sseEnabled:   cfg.SSEEnabled,
		sseKMSKeyID:  cfg.SSEKMSKeyID,
	}, nil
}

// Write uploads records as one object under dir. dir may be a bare key
// prefix or an s3://bucket/prefix URI.
func (w *S3Writer) Write(ctx context.Context, records []event.Record, dir string) (storage.Object, error) {
	start := time.Now()

	buf, enc, key, err := w.encode(records, trimBucketURI(dir, "s3://"))
	if err != nil {
		return storage.Object{}, err
	}
	size := int64(buf.Len())

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        buf,
		ContentType: aws.String(enc.ContentType()),
	}
	if w.sseEnabled {
		if w.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(w.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	if _, err := w.uploader.Upload(ctx, input); err != nil {
		return storage.Object{}, w.fail("upload", key, fmt.Errorf("failed to upload to S3: %w", err))
	}

	return w.written(key, len(records), size, start), nil
}

// Close closes the S3 writer.
func (w *S3Writer) Close() error {
	w.logger.Info("closing S3 writer")
	return nil
}

// trimBucketURI strips scheme://bucket/ from dir, leaving the key prefix.
func trimBucketURI(dir, scheme string) string {
	if !strings.HasPrefix(dir, scheme) {
		return dir
	}
	parts := strings.SplitN(strings.TrimPrefix(dir, scheme), "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}
