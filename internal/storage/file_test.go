package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jittakal/kafbulk/pkg/event"
)

func TestNewFileWriter(t *testing.T) {
	tests := []struct {
		name    string
		format  event.FileFormat
		wantErr bool
	}{
		{"parquet", event.FormatParquet, false},
		{"avro", event.FormatAvro, false},
		{"jsonl", event.FormatJSONL, false},
		{"unsupported", event.FileFormat("csv"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, tt.format, "", nil, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFileWriter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if w != nil {
				_ = w.Close()
			}
		})
	}
}

func TestFileWriter_Write(t *testing.T) {
	base := t.TempDir()
	metrics := newMockMetrics()

	w, err := NewFileWriter(FileConfig{BasePath: base}, event.FormatJSONL, "uncompressed", nil, metrics)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	records := testRecords(3)
	obj, err := w.Write(context.Background(), records, "file://raw/orders/dt=2024-03-01/")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if !strings.HasPrefix(obj.Key, "raw/orders/dt=2024-03-01/batch_") {
		t.Errorf("Key = %q, want routed prefix", obj.Key)
	}
	if obj.Records != 3 {
		t.Errorf("Records = %d, want 3", obj.Records)
	}

	data, err := os.ReadFile(filepath.Join(base, filepath.FromSlash(obj.Key)))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if int64(len(data)) != obj.SizeBytes {
		t.Errorf("file size = %d, want %d", len(data), obj.SizeBytes)
	}
	if got := strings.Count(string(data), "\n"); got != 3 {
		t.Errorf("line count = %d, want 3", got)
	}

	entries, err := os.ReadDir(filepath.Dir(filepath.Join(base, filepath.FromSlash(obj.Key))))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1 (no temp files)", len(entries))
	}

	if metrics.objectsWritten["success"] != 1 {
		t.Errorf("objectsWritten[success] = %d, want 1", metrics.objectsWritten["success"])
	}
	if len(metrics.objectSizes) != 1 || metrics.objectSizes[0] != float64(obj.SizeBytes) {
		t.Errorf("objectSizes = %v, want [%d]", metrics.objectSizes, obj.SizeBytes)
	}
}

func TestFileWriter_WriteEmpty(t *testing.T) {
	w, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, event.FormatParquet, "snappy", nil, nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	if _, err := w.Write(context.Background(), nil, "raw/"); err == nil {
		t.Error("Write() expected error for empty records")
	}
}

func TestFileWriter_WriteCancelled(t *testing.T) {
	w, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, event.FormatParquet, "snappy", nil, nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Write(ctx, testRecords(1), "raw/"); err == nil {
		t.Error("Write() expected error for cancelled context")
	}
}

func TestFileWriter_UniqueObjects(t *testing.T) {
	w, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, event.FormatAvro, "deflate", nil, nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		obj, err := w.Write(context.Background(), testRecords(1), "raw/")
		if err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if seen[obj.Key] {
			t.Fatalf("duplicate key %q", obj.Key)
		}
		seen[obj.Key] = true
	}
}
