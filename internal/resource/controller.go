package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrBudgetExceeded is returned when a reservation would push usage past
// the byte budget.
var ErrBudgetExceeded = errors.New("resource: budget exceeded")

// Config holds resource limits.
type Config struct {
	// BudgetBytes is the hard limit for stored attention state.
	// If 0, no hard limit is enforced (only tracking).
	BudgetBytes int64

	// MaxMaintenanceWorkers is the maximum number of concurrent
	// maintenance passes (sweep, cascade demotion). If 0, defaults to 1.
	MaxMaintenanceWorkers int64

	// MaintenanceRateBytesPerSec paces how many bytes per second the
	// maintenance path may touch, so sweeps do not starve foreground
	// reads. If 0, unlimited.
	MaintenanceRateBytesPerSec int64
}

// Controller tracks the byte budget and paces background maintenance.
type Controller struct {
	cfg Config

	// Budget
	budgetSem *semaphore.Weighted // nil if unlimited
	used      atomic.Int64

	// Maintenance concurrency
	maintSem *semaphore.Weighted

	// Maintenance pacing
	limiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxMaintenanceWorkers <= 0 {
		cfg.MaxMaintenanceWorkers = 1
	}

	c := &Controller{
		cfg:      cfg,
		maintSem: semaphore.NewWeighted(cfg.MaxMaintenanceWorkers),
	}

	if cfg.BudgetBytes > 0 {
		c.budgetSem = semaphore.NewWeighted(cfg.BudgetBytes)
	}

	if cfg.MaintenanceRateBytesPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaintenanceRateBytesPerSec), int(cfg.MaintenanceRateBytesPerSec))
	}

	return c
}

// Acquire attempts to reserve bytes against the budget.
// Returns ErrBudgetExceeded if the reservation would not fit.
// Non-blocking - callers decide whether to evict and retry.
func (c *Controller) Acquire(bytes int64) error {
	if c == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	if c.budgetSem != nil {
		if !c.budgetSem.TryAcquire(bytes) {
			return ErrBudgetExceeded
		}
	}

	c.used.Add(bytes)
	return nil
}

// Release returns reserved bytes to the budget.
func (c *Controller) Release(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.budgetSem != nil {
		c.budgetSem.Release(bytes)
	}
	c.used.Add(-bytes)
}

// Used returns the currently reserved bytes.
func (c *Controller) Used() int64 {
	if c == nil {
		return 0
	}
	return c.used.Load()
}

// Budget returns the configured byte budget (0 if unlimited).
func (c *Controller) Budget() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.BudgetBytes
}

// Headroom returns the bytes still available under the budget.
// With no budget configured it returns the maximum int64.
func (c *Controller) Headroom() int64 {
	if c == nil || c.cfg.BudgetBytes <= 0 {
		return int64(^uint64(0) >> 1)
	}
	head := c.cfg.BudgetBytes - c.used.Load()
	if head < 0 {
		return 0
	}
	return head
}

// AcquireMaintenance reserves a maintenance worker slot.
// Blocks until a slot is free or the context is done.
func (c *Controller) AcquireMaintenance(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.maintSem.Acquire(ctx, 1)
}

// TryAcquireMaintenance reserves a maintenance slot without blocking.
func (c *Controller) TryAcquireMaintenance() bool {
	if c == nil {
		return true
	}
	return c.maintSem.TryAcquire(1)
}

// ReleaseMaintenance releases a maintenance worker slot.
func (c *Controller) ReleaseMaintenance() {
	if c == nil {
		return
	}
	c.maintSem.Release(1)
}

// WaitThroughput waits until the pacing limiter allows the specified
// number of bytes to be processed. Requests larger than the limiter
// burst are waited for in burst-sized chunks, so a big request is paced
// rather than rejected.
func (c *Controller) WaitThroughput(ctx context.Context, bytes int) error {
	if c == nil || c.limiter == nil || bytes <= 0 {
		return nil
	}
	burst := c.limiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// AllowThroughput attempts to take pacing tokens without blocking.
func (c *Controller) AllowThroughput(bytes int) bool {
	if c == nil || c.limiter == nil {
		return true
	}
	return c.limiter.AllowN(time.Now(), bytes)
}
