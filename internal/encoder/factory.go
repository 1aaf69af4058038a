package encoder

import (
	"fmt"

	"github.com/jittakal/kafbulk/pkg/encoder"
	"github.com/jittakal/kafbulk/pkg/event"
)

// Factory creates encoders based on format and configuration.
type Factory struct {
	format      event.FileFormat
	compression string
}

// NewFactory creates a new encoder factory. An empty compression selects
// the format's default.
func NewFactory(format event.FileFormat, compression string) *Factory {
	if compression == "" {
		compression = DefaultCompression(format)
	}
	return &Factory{
		format:      format,
		compression: compression,
	}
}

// CreateEncoder creates an encoder based on the configured format.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	switch f.format {
	case event.FormatParquet:
		return NewParquetEncoder(f.compression), nil
	case event.FormatAvro:
		return NewAvroEncoder(f.compression)
	case event.FormatJSONL:
		return NewJSONLEncoder(f.compression), nil
	default:
		return nil, fmt.Errorf("unsupported file format: %s", f.format)
	}
}

// SupportedFormats returns a list of supported file formats.
func SupportedFormats() []event.FileFormat {
	return []event.FileFormat{
		event.FormatParquet,
		event.FormatAvro,
		event.FormatJSONL,
	}
}

// SupportedCompressions returns supported compression codecs for a given format.
func SupportedCompressions(format event.FileFormat) []string {
	switch format {
	case event.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case event.FormatAvro:
		return []string{"uncompressed", "deflate", "snappy"}
	case event.FormatJSONL:
		return []string{"uncompressed", "gzip", "zstd"}
	default:
		return []string{}
	}
}

// DefaultCompression returns the default compression for a format.
func DefaultCompression(format event.FileFormat) string {
	switch format {
	case event.FormatParquet:
		return "snappy"
	case event.FormatAvro:
		return "deflate"
	case event.FormatJSONL:
		return "gzip"
	default:
		return "uncompressed"
	}
}
