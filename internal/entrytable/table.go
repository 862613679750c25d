package entrytable

import (
	"encoding/binary"
	"hash/maphash"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/kvgo/core"
	"github.com/hupe1980/kvgo/quantization"
)

const numShards = 64

// Table maps cache keys to their storage location and usage metadata.
// Entries are distributed across 64 shards to reduce lock contention.
//
// Readers pin an entry before touching its slot; any operation that would
// invalidate the slot (replace, move, remove) waits for pins to drain, so
// a slot is never freed while a reader dereferences it.
type Table struct {
	shards [numShards]*shard
	seed   maphash.Seed

	// gens stamps every slot installation. Commit validation compares
	// generations, which defuses the ABA case where a key is removed and
	// re-inserted into a recycled slot between scan and act.
	gens atomic.Uint64
}

type shard struct {
	mu      sync.Mutex
	m       map[core.Key]*entry
	byID    map[uint32]*entry
	tiers   [quantization.TierCount]*roaring.Bitmap
	nextID  uint32
	freeIDs []uint32
}

type entry struct {
	key        core.Key
	localID    uint32
	gen        uint64
	tier       quantization.Tier
	slot       uint32
	salience   float32
	mass       float32
	lastAccess uint64
	observedAt time.Time
	dirty      bool
	pins       int32
}

func (e *entry) info() EntryInfo {
	return EntryInfo{
		Key:        e.key,
		Gen:        e.gen,
		Tier:       e.tier,
		Slot:       e.slot,
		Salience:   e.salience,
		Mass:       e.mass,
		LastAccess: e.lastAccess,
		ObservedAt: e.observedAt,
		Dirty:      e.dirty,
		Pinned:     e.pins > 0,
	}
}

// New creates an empty table.
func New() *Table {
	t := &Table{
		seed: maphash.MakeSeed(),
	}
	for i := range t.shards {
		s := &shard{
			m:    make(map[core.Key]*entry),
			byID: make(map[uint32]*entry),
		}
		for j := range s.tiers {
			s.tiers[j] = roaring.New()
		}
		t.shards[i] = s
	}
	return t
}

// shard returns the shard for a given key using a fast seeded hash.
func (t *Table) shard(key core.Key) *shard {
	var h maphash.Hash
	h.SetSeed(t.seed)

	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:4], key.Layer)
	binary.LittleEndian.PutUint32(buf[4:8], key.Head)
	binary.LittleEndian.PutUint64(buf[8:16], key.Position)
	_, _ = h.Write(buf[:])

	return t.shards[h.Sum64()%numShards]
}

func (s *shard) allocID() uint32 {
	if n := len(s.freeIDs); n > 0 {
		id := s.freeIDs[n-1]
		s.freeIDs = s.freeIDs[:n-1]
		return id
	}
	id := s.nextID
	s.nextID++
	return id
}

func (s *shard) removeLocked(e *entry) {
	delete(s.m, e.key)
	delete(s.byID, e.localID)
	s.tiers[e.tier].Remove(e.localID)
	s.freeIDs = append(s.freeIDs, e.localID)
}

// Upsert inserts or replaces the entry for key. On replace it waits for
// pinned readers to drain, then returns the previous storage location so
// the caller can free it.
func (t *Table) Upsert(key core.Key, up Update) (prevTier quantization.Tier, prevSlot uint32, existed bool) {
	s := t.shard(key)
	for {
		s.mu.Lock()
		e, ok := s.m[key]
		if !ok {
			e = &entry{key: key, localID: s.allocID()}
			s.m[key] = e
			s.byID[e.localID] = e
			s.tiers[up.Tier].Add(e.localID)
			t.applyLocked(e, up)
			s.mu.Unlock()
			return 0, 0, false
		}
		if e.pins > 0 {
			s.mu.Unlock()
			runtime.Gosched()
			continue
		}

		prevTier, prevSlot = e.tier, e.slot
		if e.tier != up.Tier {
			s.tiers[e.tier].Remove(e.localID)
			s.tiers[up.Tier].Add(e.localID)
		}
		t.applyLocked(e, up)
		s.mu.Unlock()
		return prevTier, prevSlot, true
	}
}

// InsertIfAbsent inserts the entry only when the key is not present and
// reports whether it did. The pressure policy re-inserts demoted payloads
// through this so a put that re-created the key in the meantime keeps its
// fresher values.
func (t *Table) InsertIfAbsent(key core.Key, up Update) bool {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[key]; ok {
		return false
	}
	e := &entry{key: key, localID: s.allocID()}
	s.m[key] = e
	s.byID[e.localID] = e
	s.tiers[up.Tier].Add(e.localID)
	t.applyLocked(e, up)
	return true
}

func (t *Table) applyLocked(e *entry, up Update) {
	e.gen = t.gens.Add(1)
	e.tier = up.Tier
	e.slot = up.Slot
	e.salience = up.Salience
	e.mass = up.Mass
	e.lastAccess = up.Tick
	e.observedAt = up.Now
	e.dirty = true
}

// Lookup returns a metadata snapshot without pinning.
func (t *Table) Lookup(key core.Key) (EntryInfo, bool) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[key]
	if !ok {
		return EntryInfo{}, false
	}
	return e.info(), true
}

// Pin marks the entry as being read and returns a metadata snapshot.
// The slot stays valid until the matching Unpin or UnpinTouch.
func (t *Table) Pin(key core.Key) (EntryInfo, bool) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.m[key]
	if !found {
		return EntryInfo{}, false
	}
	e.pins++
	return e.info(), true
}

// Unpin releases a pin without recording an access.
func (t *Table) Unpin(key core.Key) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[key]; ok && e.pins > 0 {
		e.pins--
	}
}

// UnpinTouch releases a pin and records the read: the re-scored salience
// and a fresh access time.
func (t *Table) UnpinTouch(key core.Key, salience float32, tick uint64) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[key]
	if !ok {
		return
	}
	if e.pins > 0 {
		e.pins--
	}
	e.salience = salience
	e.lastAccess = tick
	e.dirty = true
}

// Touch records a usage observation: fresh attention mass, its score, and
// the access time. Returns false if the key is not present.
func (t *Table) Touch(key core.Key, mass, salience float32, tick uint64, now time.Time) bool {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[key]
	if !ok {
		return false
	}
	e.mass = mass
	e.salience = salience
	e.lastAccess = tick
	e.observedAt = now
	e.dirty = true
	return true
}

// Remove deletes the entry, waiting for pinned readers to drain, and
// returns the storage it occupied.
func (t *Table) Remove(key core.Key) (tier quantization.Tier, slot uint32, ok bool) {
	s := t.shard(key)
	for {
		s.mu.Lock()
		e, found := s.m[key]
		if !found {
			s.mu.Unlock()
			return 0, 0, false
		}
		if e.pins > 0 {
			s.mu.Unlock()
			runtime.Gosched()
			continue
		}
		tier, slot = e.tier, e.slot
		s.removeLocked(e)
		s.mu.Unlock()
		return tier, slot, true
	}
}

// CommitRemove removes the entry only if its generation still matches the
// scanned one. Used by the pressure policy to act on scan results safely.
func (t *Table) CommitRemove(key core.Key, expectGen uint64) CommitResult {
	s := t.shard(key)
	for {
		s.mu.Lock()
		e, ok := s.m[key]
		if !ok {
			s.mu.Unlock()
			return CommitMissing
		}
		if e.gen != expectGen {
			s.mu.Unlock()
			return CommitConflict
		}
		if e.pins > 0 {
			s.mu.Unlock()
			runtime.Gosched()
			continue
		}
		s.removeLocked(e)
		s.mu.Unlock()
		return CommitOK
	}
}

// CommitMove relocates the entry only if its generation still matches the
// scanned one. Usage metadata is left untouched, a demotion is not an
// access.
func (t *Table) CommitMove(key core.Key, expectGen uint64, newTier quantization.Tier, newSlot uint32) CommitResult {
	s := t.shard(key)
	for {
		s.mu.Lock()
		e, ok := s.m[key]
		if !ok {
			s.mu.Unlock()
			return CommitMissing
		}
		if e.gen != expectGen {
			s.mu.Unlock()
			return CommitConflict
		}
		if e.pins > 0 {
			s.mu.Unlock()
			runtime.Gosched()
			continue
		}
		if e.tier != newTier {
			s.tiers[e.tier].Remove(e.localID)
			s.tiers[newTier].Add(e.localID)
		}
		e.gen = t.gens.Add(1)
		e.tier = newTier
		e.slot = newSlot
		s.mu.Unlock()
		return CommitOK
	}
}

// RemoveIf removes every entry matching the predicate and returns the
// storage each one occupied. The predicate runs under the shard lock and
// must not call back into the table.
func (t *Table) RemoveIf(pred func(EntryInfo) bool) []Removed {
	var out []Removed
	for _, s := range t.shards {
		s.mu.Lock()

		var victims []*entry
		for _, e := range s.m {
			if pred(e.info()) {
				victims = append(victims, e)
			}
		}

		for _, e := range victims {
			for s.m[e.key] == e && e.pins > 0 {
				s.mu.Unlock()
				runtime.Gosched()
				s.mu.Lock()
			}
			// The entry may have been replaced while we yielded.
			if s.m[e.key] != e {
				continue
			}
			out = append(out, Removed{Key: e.key, Tier: e.tier, Slot: e.slot})
			s.removeLocked(e)
		}
		s.mu.Unlock()
	}
	return out
}

// Range calls fn for every entry until fn returns false. fn runs under
// the shard lock and must not call back into the table.
func (t *Table) Range(fn func(EntryInfo) bool) {
	for _, s := range t.shards {
		s.mu.Lock()
		for _, e := range s.m {
			if !fn(e.info()) {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
	}
}

// RangeTier calls fn for every entry stored at the given tier, using the
// per-tier bitmaps instead of a full scan.
func (t *Table) RangeTier(tier quantization.Tier, fn func(EntryInfo) bool) {
	for _, s := range t.shards {
		s.mu.Lock()
		stop := false
		it := s.tiers[tier].Iterator()
		for it.HasNext() {
			e := s.byID[it.Next()]
			if e == nil {
				continue
			}
			if !fn(e.info()) {
				stop = true
				break
			}
		}
		s.mu.Unlock()
		if stop {
			return
		}
	}
}

// Fade recomputes the stored salience of entries that were not touched
// since the previous call and clears every dirty flag for the next
// interval. Returns the number of faded entries. The score callback runs
// under the shard lock.
func (t *Table) Fade(score func(EntryInfo) float32) int {
	faded := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for _, e := range s.m {
			if !e.dirty {
				e.salience = score(e.info())
				faded++
			}
			e.dirty = false
		}
		s.mu.Unlock()
	}
	return faded
}

// Len returns the number of entries across all shards.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}

// TierCounts returns the number of entries stored at each tier.
func (t *Table) TierCounts() [quantization.TierCount]uint64 {
	var out [quantization.TierCount]uint64
	for _, s := range t.shards {
		s.mu.Lock()
		for i := range s.tiers {
			out[i] += s.tiers[i].GetCardinality()
		}
		s.mu.Unlock()
	}
	return out
}
