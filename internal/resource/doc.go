// Package resource tracks the byte budget and governs background maintenance.
//
// The Controller provides centralized management of three concerns:
//
//   - Budget: track and cap the bytes held by the tier store (non-blocking, fail-fast)
//   - Concurrency: limit concurrent maintenance passes (sweep, cascade demotion)
//   - Pacing: rate-limit maintenance byte throughput to avoid starving reads
//
// # Budget
//
// Budget tracking uses a weighted semaphore for the hard limit and an atomic
// counter for usage. Acquire is non-blocking and returns immediately with
// ErrBudgetExceeded if the reservation would not fit:
//
//	rc := resource.NewController(resource.Config{
//	    BudgetBytes: 1 << 30, // 1GB budget
//	})
//
//	if err := rc.Acquire(slotBytes); err != nil {
//	    // ErrBudgetExceeded - caller evicts or demotes, then retries
//	}
//	defer rc.Release(slotBytes)
//
// Because every slot write acquires before touching the arena, usage can
// never observably exceed the budget through the write path.
//
// # Maintenance
//
// A weighted semaphore keeps concurrent maintenance passes bounded, and a
// token bucket paces how many bytes per second maintenance may touch:
//
//	if !rc.TryAcquireMaintenance() {
//	    return // another sweep is already running
//	}
//	defer rc.ReleaseMaintenance()
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
// This allows optional limiting without nil checks everywhere.
package resource
