// Package buffer accumulates items and hands them to a flush action in batches.
//
// A flush fires on whichever configured threshold is reached first:
//
//   - MaxBytes: the accumulated size of the buffered items
//   - MaxItems: the number of buffered items
//   - CustomThresholds: caller predicates over the current batch
//   - FlushInterval: a recurring timer, which flushes only a non-empty buffer
//
// Size thresholds are evaluated on every Push in the order listed above and
// the first one that holds wins. Push never waits for the flush action; the
// captured batch is delivered on its own goroutine. Batches are delivered one
// at a time in the order they were captured.
//
// A failed flush action is logged and the batch is discarded. Callers that
// need the batch after a failure must keep it inside the flush action.
//
//	engine, err := buffer.New(buffer.Options[string]{
//	    MaxItems:      500,
//	    FlushInterval: 5 * time.Second,
//	    FlushAction: func(ctx context.Context, batch []string) error {
//	        return store(ctx, batch)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer engine.Close(context.Background())
//
//	engine.Push("payload")
package buffer
