package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/emirpasic/gods/v2/trees/binaryheap"
	"github.com/hupe1980/kvgo/internal/entrytable"
	"github.com/hupe1980/kvgo/internal/pool"
	"github.com/hupe1980/kvgo/internal/resource"
	"github.com/hupe1980/kvgo/internal/tierstore"
	"github.com/hupe1980/kvgo/quantization"
)

// ErrInfeasible is returned when a full pass over every unpinned entry
// cannot free the requested bytes. The cache stays usable; the caller
// must reduce load or raise the budget.
var ErrInfeasible = errors.New("policy: freed-bytes target infeasible")

// sweepBytesPerEntry approximates the metadata bytes a sweep touches per
// entry, used to pace maintenance against the controller's rate limiter.
const sweepBytesPerEntry = 64

// Result summarizes one pressure episode.
type Result struct {
	Target  int64 // bytes requested
	Freed   int64 // bytes actually freed
	Scanned int   // entries considered during Scan
	Demoted int   // victims moved one tier down
	Evicted int   // victims removed (including failed demotions)
	Skipped int   // victims that changed between Scan and Act
}

// Policy selects and applies demotions and evictions under pressure.
// Episodes are serialized by a single mutex; the scan phase iterates
// per-shard snapshots and never holds a cache-wide lock.
type Policy struct {
	table     *entrytable.Table
	store     *tierstore.Store
	rc        *resource.Controller
	threshold float32

	mu sync.Mutex
}

// New creates a policy over the given table and store. threshold is the
// demotion threshold: victims at or above it are demoted, the rest are
// evicted.
func New(table *entrytable.Table, store *tierstore.Store, rc *resource.Controller, threshold float32) *Policy {
	return &Policy{
		table:     table,
		store:     store,
		rc:        rc,
		threshold: threshold,
	}
}

// victimOrder ranks eviction candidates: lowest salience first, oldest
// access among ties.
func victimOrder(a, b entrytable.EntryInfo) int {
	switch {
	case a.Salience < b.Salience:
		return -1
	case a.Salience > b.Salience:
		return 1
	}
	switch {
	case a.LastAccess < b.LastAccess:
		return -1
	case a.LastAccess > b.LastAccess:
		return 1
	}
	return 0
}

// Free runs one pressure episode until at least target bytes are freed.
// The pass is abandoned early once the target is met. If every unpinned
// entry has been acted on and the target is still unmet, Free reports
// ErrInfeasible together with the partial Result.
func (p *Policy) Free(ctx context.Context, target int64) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := Result{Target: target}
	if target <= 0 {
		return res, nil
	}

	// Scan: snapshot every unpinned entry into the victim heap. Pinned
	// entries are in-flight for an active request and never touched.
	heap := binaryheap.NewWith[entrytable.EntryInfo](victimOrder)
	p.table.Range(func(info entrytable.EntryInfo) bool {
		res.Scanned++
		if !info.Pinned {
			heap.Push(info)
		}
		return true
	})

	scratch := pool.Get()
	defer pool.Put(scratch)

	for res.Freed < target {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		info, ok := heap.Pop()
		if !ok {
			break
		}

		if info.Salience >= p.threshold && info.Tier > quantization.Bits1 {
			freed, outcome := p.demote(info, scratch)
			res.Freed += freed
			switch outcome {
			case outcomeDemoted:
				res.Demoted++
			case outcomeEvicted:
				res.Evicted++
			case outcomeSkipped:
				res.Skipped++
			}
			continue
		}

		if freed, ok := p.evict(info); ok {
			res.Freed += freed
			res.Evicted++
		} else {
			res.Skipped++
		}
	}

	if res.Freed < target {
		return res, fmt.Errorf("%w: freed %d of %d bytes", ErrInfeasible, res.Freed, target)
	}
	return res, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDemoted
	outcomeEvicted
)

// demote moves one victim a tier down through full reconstruction. The
// fast path re-encodes into the lower tier first and swaps the table ref
// with CommitMove, so readers never observe a freed slot; it needs
// headroom for the new slot. Under a full budget the slow path removes
// the entry (taking ownership of the source slot before reading it),
// frees the source, and re-encodes into the first tier on the ladder
// that fits; if even Bits1 cannot be placed, or a concurrent put
// re-created the key first, the demotion completes as an eviction.
func (p *Policy) demote(info entrytable.EntryInfo, scratch *pool.Scratch) (int64, outcome) {
	src := tierstore.Ref{Tier: info.Tier, Slot: info.Slot}
	oldSize := int64(p.store.SlotSize(info.Tier))
	values := scratch.Floats(p.store.Dim())
	target, _ := info.Tier.Lower()

	if int64(p.store.SlotSize(target)) <= p.rc.Headroom() {
		// The source bytes are read without a pin here; a torn read from
		// a concurrent replace is discarded when CommitMove sees the
		// changed generation.
		if ref, err := p.store.Demote(src, target, values); err == nil {
			if p.table.CommitMove(info.Key, info.Gen, ref.Tier, ref.Slot) != entrytable.CommitOK {
				p.store.Free(ref)
				return 0, outcomeSkipped
			}
			p.store.Free(src)
			return oldSize - int64(p.store.SlotSize(ref.Tier)), outcomeDemoted
		}
	}

	// Own the entry before reading it: once CommitRemove succeeds nothing
	// else can free or recycle the source slot.
	if p.table.CommitRemove(info.Key, info.Gen) != entrytable.CommitOK {
		return 0, outcomeSkipped
	}
	if err := p.store.LoadValues(src, values); err != nil {
		// Only a closed store fails here; the entry is gone either way.
		p.store.Free(src)
		return oldSize, outcomeEvicted
	}
	p.store.Free(src)

	for {
		ref, err := p.store.Put(values, target)
		if err == nil {
			if !p.table.InsertIfAbsent(info.Key, entrytable.Update{
				Tier:     ref.Tier,
				Slot:     ref.Slot,
				Salience: info.Salience,
				Mass:     info.Mass,
				Tick:     info.LastAccess,
				Now:      info.ObservedAt,
			}) {
				// A concurrent put re-created the key between remove and
				// re-insert. That acknowledged write wins; the old copy
				// ends up evicted.
				p.store.Free(ref)
				return oldSize, outcomeEvicted
			}
			return oldSize - int64(p.store.SlotSize(ref.Tier)), outcomeDemoted
		}

		var lower bool
		if target, lower = target.Lower(); !lower {
			// Nothing on the ladder fits. The entry is already gone, so
			// the failed demotion is a completed eviction.
			return oldSize, outcomeEvicted
		}
	}
}

// evict removes one victim and frees its slot. Returns false if the entry
// changed since the scan.
func (p *Policy) evict(info entrytable.EntryInfo) (int64, bool) {
	if p.table.CommitRemove(info.Key, info.Gen) != entrytable.CommitOK {
		return 0, false
	}
	p.store.Free(tierstore.Ref{Tier: info.Tier, Slot: info.Slot})
	return int64(p.store.SlotSize(info.Tier)), true
}

// PlanPut decides the storage tier for an incoming entry and how many
// bytes must be freed first. A salient entry (at or above the demotion
// threshold) keeps the preferred tier at the cost of a pressure episode;
// one below the threshold degrades to the largest tier fitting current
// headroom, and only forces an episode when not even Bits1 fits.
func (p *Policy) PlanPut(salience float32, preferred quantization.Tier) (quantization.Tier, int64) {
	need := int64(p.store.SlotSize(preferred))
	head := p.rc.Headroom()
	if need <= head {
		return preferred, 0
	}
	if salience >= p.threshold {
		return preferred, need - head
	}
	for t := preferred; ; {
		if int64(p.store.SlotSize(t)) <= head {
			return t, 0
		}
		var ok bool
		if t, ok = t.Lower(); !ok {
			break
		}
	}
	return preferred, need - head
}

// Threshold returns the configured demotion threshold.
func (p *Policy) Threshold() float32 {
	return p.threshold
}

// Sweep runs one maintenance pass: entries left untouched since the
// previous sweep get their salience recomputed by score, and the touch
// marks are cleared for the next interval. The pass is single-flight via
// the controller's maintenance slot and paced by its rate limiter.
// Returns the number of faded entries.
func (p *Policy) Sweep(ctx context.Context, score func(entrytable.EntryInfo) float32) (int, error) {
	if !p.rc.TryAcquireMaintenance() {
		return 0, nil
	}
	defer p.rc.ReleaseMaintenance()

	if err := p.rc.WaitThroughput(ctx, p.table.Len()*sweepBytesPerEntry); err != nil {
		return 0, err
	}
	return p.table.Fade(score), nil
}
