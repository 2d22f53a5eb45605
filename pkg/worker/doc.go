// Package worker provides a bounded, generic worker pool.
//
// A Pool runs a fixed number of goroutines that take items from a buffered
// queue. Submit never blocks; when the queue is full the item is rejected
// with ErrQueueFull so the caller can decide whether to drop or log it:
//
//	pool, err := worker.NewPool(8, 256, func(ctx context.Context, raw []byte) error {
//	    return dispatch(ctx, raw)
//	}, worker.WithMetrics[[]byte](registry, "dispatch"))
//	if err != nil {
//	    return err
//	}
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Statistics are always tracked with atomics and available from Stats.
// Prometheus metrics are registered only when WithMetrics is given.
//
// A processor that panics is recovered; the item counts as failed and the
// error passed to the WithErrorHandler callback wraps ErrProcessorPanic.
//
// Stop closes the queue, so items already accepted are still processed
// unless the context passed to Start is cancelled first.
package worker
