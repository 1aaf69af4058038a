package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/jittakal/kafbulk/pkg/event"
)

type fakeBlobUploader struct {
	container   string
	blob        string
	size        int
	contentType string
	err         error
}

func (f *fakeBlobUploader) UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	if f.err != nil {
		return azblob.UploadBufferResponse{}, f.err
	}
	f.container = containerName
	f.blob = blobName
	f.size = len(buffer)
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		f.contentType = *o.HTTPHeaders.BlobContentType
	}
	return azblob.UploadBufferResponse{}, nil
}

func newTestAzureWriter(t *testing.T, up blobUploader, metrics MetricsCollector) *AzureWriter {
	t.Helper()
	be, err := newBatchEncoder("azure", event.FormatJSONL, "gzip", nil, metrics)
	if err != nil {
		t.Fatalf("newBatchEncoder() error = %v", err)
	}
	return &AzureWriter{batchEncoder: be, client: up, containerName: "events"}
}

func TestAzureWriter_Write(t *testing.T) {
	up := &fakeBlobUploader{}
	w := newTestAzureWriter(t, up, newMockMetrics())

	obj, err := w.Write(context.Background(), testRecords(4), "wasbs://events/raw/orders/")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if up.container != "events" {
		t.Errorf("container = %q, want events", up.container)
	}
	if up.blob != obj.Key || !strings.HasPrefix(up.blob, "raw/orders/batch_") || !strings.HasSuffix(up.blob, ".jsonl.gz") {
		t.Errorf("blob = %q, object key %q", up.blob, obj.Key)
	}
	if up.contentType != "application/x-ndjson" {
		t.Errorf("content type = %q", up.contentType)
	}
	if int64(up.size) != obj.SizeBytes {
		t.Errorf("uploaded %d bytes, object reports %d", up.size, obj.SizeBytes)
	}
}

func TestAzureWriter_UploadFailure(t *testing.T) {
	metrics := newMockMetrics()
	w := newTestAzureWriter(t, &fakeBlobUploader{err: errors.New("403")}, metrics)

	if _, err := w.Write(context.Background(), testRecords(1), "raw/"); err == nil {
		t.Fatal("Write() expected error")
	}
	if metrics.lastErrorBackend != "azure" || metrics.lastErrorOperation != "upload" {
		t.Errorf("storage error = %s/%s, want azure/upload", metrics.lastErrorBackend, metrics.lastErrorOperation)
	}
}

func TestAzureConfig_ConnectionString(t *testing.T) {
	cfg := AzureConfig{AccountName: "acct", AccountKey: "a2V5"}
	if got := cfg.connectionString(); !strings.Contains(got, "EndpointSuffix=core.windows.net") {
		t.Errorf("connectionString() = %q, want public cloud suffix", got)
	}

	cfg.Endpoint = "http://127.0.0.1:10000/acct"
	if got := cfg.connectionString(); !strings.Contains(got, "BlobEndpoint=http://127.0.0.1:10000/acct") {
		t.Errorf("connectionString() = %q, want custom endpoint", got)
	}
}
