package kvgo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/hupe1980/kvgo/core"
	"github.com/hupe1980/kvgo/internal/entrytable"
	"github.com/hupe1980/kvgo/internal/policy"
	"github.com/hupe1980/kvgo/internal/resource"
	"github.com/hupe1980/kvgo/internal/tierstore"
	"github.com/hupe1980/kvgo/quantization"
	"github.com/hupe1980/kvgo/salience"
)

// Cache is an adaptive-precision KV cache for transformer attention
// state. Vectors are quantized into per-tier slab arenas under a hard
// byte budget; under pressure, low-salience entries are evicted and
// salient ones demoted to a lower precision tier.
//
// All methods are safe for concurrent use. Operations on distinct keys
// proceed without blocking each other.
type Cache struct {
	opts   options
	dim    int
	rc     *resource.Controller
	table  *entrytable.Table
	store  *tierstore.Store
	policy *policy.Policy
	scorer salience.Scorer
	clock  salience.Clock

	metrics MetricsCollector
	logger  *Logger

	// tick is the logical access clock ordering last-access times.
	tick atomic.Uint64

	// hot holds recently dequantized vectors; nil when disabled.
	hot *lru.Cache

	sessionMu sync.RWMutex
	sessionID string

	hits      atomic.Uint64
	misses    atomic.Uint64
	puts      atomic.Uint64
	touches   atomic.Uint64
	evictions atomic.Uint64
	demotions atomic.Uint64
	sweeps    atomic.Uint64

	maintCancel context.CancelFunc
	maintDone   chan struct{}
	closed      atomic.Bool
}

// New creates a cache for vectors of the given dimension under a hard
// byte budget.
func New(dim int, maxBytes int64, optFns ...Option) (*Cache, error) {
	if dim <= 0 {
		return nil, &InvalidDimensionError{Dimension: dim}
	}
	if maxBytes <= 0 {
		return nil, ErrInvalidBudget
	}

	opts := applyOptions(optFns)
	if opts.groupSize <= 0 {
		return nil, &InvalidGroupSizeError{Size: opts.groupSize}
	}
	if opts.clock == nil {
		opts.clock = salience.SystemClock()
	}

	rc := resource.NewController(resource.Config{
		BudgetBytes:                maxBytes,
		MaxMaintenanceWorkers:      1,
		MaintenanceRateBytesPerSec: opts.maintRate,
	})

	var storeOpts []tierstore.Option
	if opts.offHeap {
		storeOpts = append(storeOpts, tierstore.WithOffHeap(true))
	}
	if opts.slotsPerChunk > 0 {
		storeOpts = append(storeOpts, tierstore.WithSlotsPerChunk(opts.slotsPerChunk))
	}
	store, err := tierstore.New(dim, opts.groupSize, rc, storeOpts...)
	if err != nil {
		return nil, translateError(err)
	}

	table := entrytable.New()

	scorer := opts.scorer
	if scorer == nil {
		scorer = salience.NewAttentionMassScorer(salience.NewState(), opts.clock, opts.halfLife)
	}

	c := &Cache{
		opts:      opts,
		dim:       dim,
		rc:        rc,
		table:     table,
		store:     store,
		policy:    policy.New(table, store, rc, opts.demotionThreshold),
		scorer:    scorer,
		clock:     opts.clock,
		metrics:   opts.metricsCollector,
		logger:    opts.logger,
		sessionID: uuid.NewString(),
	}

	if opts.hotCacheSize > 0 {
		// Size is validated above zero, so the error path is unreachable.
		c.hot, _ = lru.New(opts.hotCacheSize)
	}

	if opts.maintInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.maintCancel = cancel
		c.maintDone = make(chan struct{})
		go c.maintenanceLoop(ctx)
	}

	return c, nil
}

// Dim returns the vector dimension.
func (c *Cache) Dim() int {
	return c.dim
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.table.Len()
}

// Put quantizes values at the highest tier the budget permits and
// inserts or replaces the entry for key. usage carries the attention
// statistics the salience score is derived from.
//
// Under a tight budget the eviction policy decides: a salient entry
// frees room for the preferred tier, a non-salient one degrades to a
// smaller tier. Returns a BudgetInfeasibleError when not even a full
// pressure episode can make room.
func (c *Cache) Put(ctx context.Context, key core.Key, values []float32, usage salience.AttentionUsage) error {
	start := time.Now()
	err := c.put(ctx, key, values, usage)
	c.metrics.RecordPut(time.Since(start), err)
	c.logger.LogPut(ctx, key, len(values), err)
	return err
}

func (c *Cache) put(ctx context.Context, key core.Key, values []float32, usage salience.AttentionUsage) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if len(values) != c.dim {
		return &DimensionMismatchError{Expected: c.dim, Actual: len(values)}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sal := clamp01(c.scorer.Score(usage))

	tier, freeTarget := c.policy.PlanPut(sal, c.opts.defaultTier)
	if freeTarget > 0 {
		if _, err := c.freeBytes(ctx, freeTarget); err != nil {
			return err
		}
	}

	ref, err := c.store.Put(values, tier)
	if errors.Is(err, resource.ErrBudgetExceeded) {
		// Lost the freed headroom to a concurrent writer; force one
		// episode for the full slot and retry once.
		need := int64(c.store.SlotSize(tier))
		res, ferr := c.freeBytes(ctx, need)
		if ferr != nil {
			return ferr
		}
		if ref, err = c.store.Put(values, tier); errors.Is(err, resource.ErrBudgetExceeded) {
			return &BudgetInfeasibleError{Requested: need, Freed: res.Freed, cause: ErrBudgetInfeasible}
		}
	}
	if err != nil {
		return translateError(err)
	}

	up := entrytable.Update{
		Tier:     ref.Tier,
		Slot:     ref.Slot,
		Salience: sal,
		Mass:     usage.Mass,
		Tick:     c.tick.Add(1),
		Now:      c.clock.Now(),
	}
	if prevTier, prevSlot, existed := c.table.Upsert(key, up); existed {
		c.store.Free(tierstore.Ref{Tier: prevTier, Slot: prevSlot})
	}
	c.hotRemove(key)
	c.puts.Add(1)
	return nil
}

// Get returns a reconstruction of the cached vector for key, or false on
// a miss. The entry is pinned for the duration of the read and its
// last-access and salience are refreshed (touch-on-read). The returned
// slice is caller-owned.
func (c *Cache) Get(ctx context.Context, key core.Key) ([]float32, bool) {
	start := time.Now()
	values, ok := c.get(key)
	c.metrics.RecordGet(time.Since(start), ok)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return values, ok
}

func (c *Cache) get(key core.Key) ([]float32, bool) {
	if c.closed.Load() {
		return nil, false
	}

	if values, ok := c.hotGet(key); ok {
		if info, found := c.table.Lookup(key); found {
			c.rescore(key, info)
			return values, true
		}
		// The hot cache outlived the entry; drop the stale vector.
		c.hotRemove(key)
		return nil, false
	}

	info, ok := c.table.Pin(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, c.dim)
	err := c.store.LoadValues(tierstore.Ref{Tier: info.Tier, Slot: info.Slot}, out)
	sal := c.readScore(info)
	c.table.UnpinTouch(key, sal, c.tick.Add(1))
	if err != nil {
		return nil, false
	}

	c.hotAdd(key, out)
	return out, true
}

// rescore refreshes an entry's salience and access time outside a pin.
func (c *Cache) rescore(key core.Key, info entrytable.EntryInfo) {
	c.table.Touch(key, info.Mass, c.readScore(info), c.tick.Add(1), info.ObservedAt)
}

// readScore re-scores an entry from its stored attention mass and the
// original observation time, so reads see the decayed salience rather
// than a stale one.
func (c *Cache) readScore(info entrytable.EntryInfo) float32 {
	return clamp01(c.scorer.Score(salience.AttentionUsage{
		Mass:       info.Mass,
		ObservedAt: info.ObservedAt,
	}))
}

// Touch records a fresh usage observation for key without touching the
// payload. Returns false if the key is not cached.
func (c *Cache) Touch(key core.Key, usage salience.AttentionUsage) bool {
	if c.closed.Load() {
		return false
	}
	sal := clamp01(c.scorer.Score(usage))
	ok := c.table.Touch(key, usage.Mass, sal, c.tick.Add(1), c.clock.Now())
	c.metrics.RecordTouch(ok)
	if ok {
		c.touches.Add(1)
	}
	return ok
}

// EnsureCapacity proactively frees room for the given number of bytes,
// running the eviction policy if current headroom is short. Call before
// a bulk insert to avoid thrashing. Returns a BudgetInfeasibleError when
// bytes exceeds what the budget can ever hold.
func (c *Cache) EnsureCapacity(ctx context.Context, bytes int64) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if bytes <= 0 {
		return nil
	}
	if bytes > c.rc.Budget() {
		return &BudgetInfeasibleError{Requested: bytes, cause: ErrBudgetInfeasible}
	}
	head := c.rc.Headroom()
	if head >= bytes {
		return nil
	}
	_, err := c.freeBytes(ctx, bytes-head)
	return err
}

// Remove deletes the entry for key. Removing an absent key is a no-op.
func (c *Cache) Remove(key core.Key) bool {
	if c.closed.Load() {
		return false
	}
	tier, slot, ok := c.table.Remove(key)
	if ok {
		c.store.Free(tierstore.Ref{Tier: tier, Slot: slot})
		c.hotRemove(key)
	}
	c.metrics.RecordRemove(ok)
	return ok
}

// RemoveRange drops every entry whose position lies in [from, to),
// across all layers and heads, and returns the number removed. Inference
// engines use this to roll back speculative tokens.
func (c *Cache) RemoveRange(from, to uint64) int {
	if c.closed.Load() || from >= to {
		return 0
	}
	removed := c.table.RemoveIf(func(info entrytable.EntryInfo) bool {
		return info.Key.Position >= from && info.Key.Position < to
	})
	for _, r := range removed {
		c.store.Free(tierstore.Ref{Tier: r.Tier, Slot: r.Slot})
		c.hotRemove(r.Key)
	}
	return len(removed)
}

// InvalidateBelow drops every entry whose salience is below the given
// threshold and returns the number removed.
func (c *Cache) InvalidateBelow(threshold float32) int {
	if c.closed.Load() {
		return 0
	}
	removed := c.table.RemoveIf(func(info entrytable.EntryInfo) bool {
		return info.Salience < threshold
	})
	for _, r := range removed {
		c.store.Free(tierstore.Ref{Tier: r.Tier, Slot: r.Slot})
		c.hotRemove(r.Key)
	}
	return len(removed)
}

// Clear removes every entry. The cache remains usable.
func (c *Cache) Clear() {
	if c.closed.Load() {
		return
	}
	removed := c.table.RemoveIf(func(entrytable.EntryInfo) bool { return true })
	for _, r := range removed {
		c.store.Free(tierstore.Ref{Tier: r.Tier, Slot: r.Slot})
	}
	c.hotPurge()
}

// ResetSession marks a sequence/session boundary: scorer state (running
// maxima, traces) is cleared and a fresh session id is issued. Cached
// entries are kept; callers that also want a cold cache combine this
// with Clear. Returns the new session id.
func (c *Cache) ResetSession() string {
	c.scorer.Reset()

	id := uuid.NewString()
	c.sessionMu.Lock()
	c.sessionID = id
	c.sessionMu.Unlock()

	c.logger.LogSessionReset(context.Background(), id)
	return id
}

// SessionID returns the current session id.
func (c *Cache) SessionID() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

// Stats is a point-in-time snapshot of cache state and counters.
type Stats struct {
	UsedBytes  int64
	MaxBytes   int64
	Entries    int
	TierCounts [quantization.TierCount]uint64
	Hits       uint64
	Misses     uint64
	Puts       uint64
	Touches    uint64
	Evictions  uint64
	Demotions  uint64
	Sweeps     uint64
	SessionID  string
}

// Stats returns a snapshot of cache state: budget usage, the tier
// histogram, and operation counters.
func (c *Cache) Stats() Stats {
	return Stats{
		UsedBytes:  c.rc.Used(),
		MaxBytes:   c.rc.Budget(),
		Entries:    c.table.Len(),
		TierCounts: c.table.TierCounts(),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Puts:       c.puts.Load(),
		Touches:    c.touches.Load(),
		Evictions:  c.evictions.Load(),
		Demotions:  c.demotions.Load(),
		Sweeps:     c.sweeps.Load(),
		SessionID:  c.SessionID(),
	}
}

// freeBytes runs one pressure episode and folds its outcome into the
// counters, metrics, and log.
func (c *Cache) freeBytes(ctx context.Context, target int64) (policy.Result, error) {
	start := time.Now()
	res, err := c.policy.Free(ctx, target)

	c.demotions.Add(uint64(res.Demoted))
	c.evictions.Add(uint64(res.Evicted))
	if res.Demoted+res.Evicted > 0 {
		// Demoted entries were re-encoded; their hot vectors are stale.
		c.hotPurge()
	}
	c.metrics.RecordEvictionPass(res.Demoted, res.Evicted, res.Freed, time.Since(start))
	c.logger.LogEvictionPass(ctx, target, res.Freed, res.Demoted, res.Evicted, err)

	if errors.Is(err, policy.ErrInfeasible) {
		return res, &BudgetInfeasibleError{
			Requested: target,
			Freed:     res.Freed,
			cause:     errors.Join(ErrBudgetInfeasible, err),
		}
	}
	return res, err
}

func (c *Cache) hotGet(key core.Key) ([]float32, bool) {
	if c.hot == nil {
		return nil, false
	}
	v, ok := c.hot.Get(key)
	if !ok {
		return nil, false
	}
	cached := v.([]float32)
	out := make([]float32, len(cached))
	copy(out, cached)
	return out, true
}

func (c *Cache) hotAdd(key core.Key, values []float32) {
	if c.hot == nil {
		return
	}
	cached := make([]float32, len(values))
	copy(cached, values)
	c.hot.Add(key, cached)
}

func (c *Cache) hotRemove(key core.Key) {
	if c.hot != nil {
		c.hot.Remove(key)
	}
}

func (c *Cache) hotPurge() {
	if c.hot != nil {
		c.hot.Purge()
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
