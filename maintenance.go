package kvgo

import (
	"context"
	"time"

	"github.com/hupe1980/kvgo/internal/entrytable"
)

// maintenanceLoop periodically fades the salience of entries that were
// not touched for a full interval, so stale-but-once-salient state
// becomes eligible for eviction without any access traffic.
func (c *Cache) maintenanceLoop(ctx context.Context) {
	defer close(c.maintDone)

	ticker := time.NewTicker(c.opts.maintInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cache) sweep(ctx context.Context) {
	start := time.Now()
	faded, err := c.policy.Sweep(ctx, func(info entrytable.EntryInfo) float32 {
		return c.readScore(info)
	})
	if err != nil {
		c.logger.WarnContext(ctx, "maintenance sweep failed", "error", err)
		return
	}
	c.sweeps.Add(1)
	c.metrics.RecordSweep(faded, time.Since(start))
	c.logger.LogSweep(ctx, faded)
}
