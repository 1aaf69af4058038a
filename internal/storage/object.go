// Package storage implements object storage writers for record batches.
package storage

import (
	"bytes"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/jittakal/kafbulk/internal/encoder"
	apperrors "github.com/jittakal/kafbulk/internal/errors"
	pkgencoder "github.com/jittakal/kafbulk/pkg/encoder"
	"github.com/jittakal/kafbulk/pkg/event"
	pkgstorage "github.com/jittakal/kafbulk/pkg/storage"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncObjectsWritten(backend, format, status string)
	ObserveObjectSize(backend, format string, size float64)
	ObserveWriteDuration(backend string, duration float64)
	IncStorageErrors(backend, operation string)
}

// objectName returns a collision-free object name for a batch written at now.
// Format: batch_YYYYMMDDTHHMMSSZ_<uuid><ext>
func objectName(now time.Time, ext string) string {
	return fmt.Sprintf("batch_%s_%s%s", now.UTC().Format("20060102T150405Z"), uuid.NewString(), ext)
}

// objectKey joins a routed directory and an object name into a key without a
// leading slash.
func objectKey(dir, name string) string {
	key := path.Join(dir, name)
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	return key
}

// batchEncoder holds what every backend shares: the encoder factory and
// the logging and metrics plumbing around a write.
type batchEncoder struct {
	backend string
	format  event.FileFormat
	factory *encoder.Factory
	logger  *slog.Logger
	metrics MetricsCollector
	now     func() time.Time
}

func newBatchEncoder(
	backend string,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*batchEncoder, error) {
	factory := encoder.NewFactory(format, compression)

	// Validate encoder can be created
	if _, err := factory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &batchEncoder{
		backend: backend,
		format:  format,
		factory: factory,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// encode serializes records into memory and names the resulting object.
func (b *batchEncoder) encode(records []event.Record, dir string) (*bytes.Buffer, pkgencoder.Encoder, string, error) {
	if len(records) == 0 {
		return nil, nil, "", fmt.Errorf("no records to write")
	}

	enc, err := b.factory.CreateEncoder()
	if err != nil {
		b.metrics.IncStorageErrors(b.backend, "encoder_create")
		return nil, nil, "", fmt.Errorf("failed to create encoder: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := enc.Encode(buf, records); err != nil {
		b.metrics.IncStorageErrors(b.backend, "encode")
		return nil, nil, "", fmt.Errorf("failed to encode records: %w", err)
	}

	return buf, enc, objectKey(dir, objectName(b.now(), enc.FileExtension())), nil
}

// fail records a failed write of key and wraps err in a StorageError.
func (b *batchEncoder) fail(operation, key string, err error) error {
	b.metrics.IncStorageErrors(b.backend, operation)
	b.metrics.IncObjectsWritten(b.backend, string(b.format), "failure")
	return &apperrors.StorageError{Backend: b.backend, Operation: operation, Path: key, Err: err}
}

// written records a successful write and builds its result.
func (b *batchEncoder) written(key string, records int, size int64, start time.Time) pkgstorage.Object {
	duration := time.Since(start)

	b.metrics.IncObjectsWritten(b.backend, string(b.format), "success")
	b.metrics.ObserveObjectSize(b.backend, string(b.format), float64(size))
	b.metrics.ObserveWriteDuration(b.backend, duration.Seconds())

	b.logger.Info("wrote batch",
		"backend", b.backend,
		"key", key,
		"record_count", records,
		"file_size", size,
		"format", b.format,
		"total_duration_ms", duration.Milliseconds(),
	)

	return pkgstorage.Object{Key: key, Records: records, SizeBytes: size}
}

type noopMetrics struct{}

func (noopMetrics) IncObjectsWritten(string, string, string)  {}
func (noopMetrics) ObserveObjectSize(string, string, float64) {}
func (noopMetrics) ObserveWriteDuration(string, float64)      {}
func (noopMetrics) IncStorageErrors(string, string)           {}
