package kvgo

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/kvgo/core"
	"github.com/hupe1980/kvgo/salience"
)

// Item is one entry of a batch insert.
type Item struct {
	Key    core.Key
	Values []float32
	Usage  salience.AttentionUsage
}

// BatchPutResult reports per-item outcomes of a BatchPut. Errors is
// indexed like the input items; nil means the item was inserted.
type BatchPutResult struct {
	Errors []error
	Failed int
}

// BatchPut inserts multiple entries, quantizing in parallel across
// GOMAXPROCS workers. Every item is attempted; one failing item does not
// stop the rest. Call EnsureCapacity first to avoid per-item eviction
// churn on large batches.
func (c *Cache) BatchPut(ctx context.Context, items []Item) BatchPutResult {
	start := time.Now()
	result := BatchPutResult{
		Errors: make([]error, len(items)),
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			result.Errors[i] = c.put(ctx, item.Key, item.Values, item.Usage)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range result.Errors {
		if err != nil {
			result.Failed++
		}
	}
	c.metrics.RecordBatchPut(len(items), result.Failed, time.Since(start))
	c.logger.LogBatchPut(ctx, len(items), result.Failed)
	return result
}
