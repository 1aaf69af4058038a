// Package encoder serializes batches of records into object files.
//
// Three formats are supported:
//
//   - Parquet: columnar, snappy by default
//   - Avro: Object Container File, deflate by default
//   - JSONL: one JSON document per line, gzip by default
//
// Every encoder writes to an io.Writer so the storage layer decides whether
// the bytes go to a local file or an in-memory upload buffer:
//
//	enc, err := encoder.NewFactory(event.FormatParquet, "snappy").CreateEncoder()
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	stats, err := enc.Encode(&buf, records)
//
// CloudEvent attributes are written as nullable columns. Records that were
// not decoded as CloudEvents leave them empty.
package encoder
