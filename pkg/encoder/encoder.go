// Package encoder defines the interface for turning a batch of records into
// one storage object.
package encoder

import (
	"io"

	"github.com/jittakal/kafbulk/pkg/event"
)

// Encoder encodes records into a single object.
type Encoder interface {
	// Encode writes records to w and returns statistics about the object.
	Encode(w io.Writer, records []event.Record) (*event.FileStats, error)

	// Format returns the file format this encoder produces.
	Format() event.FileFormat

	// FileExtension returns the object extension (e.g., ".parquet").
	FileExtension() string

	// ContentType returns the MIME type used for object uploads.
	ContentType() string
}
