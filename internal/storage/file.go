package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jittakal/kafbulk/pkg/event"
	"github.com/jittakal/kafbulk/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileWriter implements storage.Writer for the local filesystem.
// Objects are written to a temporary file and renamed into place so readers
// never observe a partial object.
type FileWriter struct {
	*batchEncoder
	basePath string
}

// NewFileWriter creates a new filesystem storage writer.
func NewFileWriter(
	config FileConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	be, err := newBatchEncoder("file", format, compression, logger, metrics)
	if err != nil {
		return nil, err
	}

	be.logger.Info("filesystem writer created",
		"base_path", config.BasePath,
		"format", format,
		"compression", compression,
	)

	return &FileWriter{batchEncoder: be, basePath: config.BasePath}, nil
}

// Write writes records as one file under basePath/dir.
func (w *FileWriter) Write(ctx context.Context, records []event.Record, dir string) (storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return storage.Object{}, err
	}

	start := time.Now()

	buf, _, key, err := w.encode(records, strings.TrimPrefix(dir, "file://"))
	if err != nil {
		return storage.Object{}, err
	}

	fullPath := filepath.Join(w.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return storage.Object{}, w.fail("mkdir", key, fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		return storage.Object{}, w.fail("create", key, fmt.Errorf("failed to create file: %w", err))
	}
	defer os.Remove(tmp.Name())

	size, err := buf.WriteTo(tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return storage.Object{}, w.fail("write", key, fmt.Errorf("failed to write file: %w", err))
	}

	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return storage.Object{}, w.fail("rename", key, fmt.Errorf("failed to move file into place: %w", err))
	}

	return w.written(key, len(records), size, start), nil
}

// Close closes the writer.
func (w *FileWriter) Close() error {
	w.logger.Info("closing filesystem writer")
	return nil
}
