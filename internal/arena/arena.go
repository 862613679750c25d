package arena

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/kvgo/internal/mmap"
)

const (
	// DefaultSlotsPerChunk is the number of slots added per slab growth.
	DefaultSlotsPerChunk = 1024
	// MaxChunks bounds the number of slabs a single arena may hold.
	MaxChunks = 4096
)

var (
	// ErrInvalidSlotSize is returned when the slot size is not positive.
	ErrInvalidSlotSize = errors.New("arena: slot size must be positive")
	// ErrExhausted is returned when no slot can be handed out anymore.
	ErrExhausted = errors.New("arena: slot capacity exhausted")
	// ErrClosed is returned when allocating from a closed arena.
	ErrClosed = errors.New("arena: closed")
)

// Stats tracks arena usage metrics.
type Stats struct {
	SlotSize      int    // Bytes per slot
	SlotsPerChunk int    // Growth granularity
	ActiveChunks  uint64 // Current slab count
	BytesReserved uint64 // Memory reserved from the OS or heap
	TotalSlots    uint64 // Slots made available so far
	LiveSlots     uint64 // Slots currently handed out
	TotalAllocs   uint64 // Historical allocation count
	TotalFrees    uint64 // Historical free count
}

type atomicStats struct {
	ActiveChunks  atomic.Uint64
	BytesReserved atomic.Uint64
	TotalAllocs   atomic.Uint64
	TotalFrees    atomic.Uint64
}

type chunk struct {
	data    []byte
	mapping *mmap.Mapping // Holds the off-heap mapping (if applicable)
}

// Option is a configuration option for Arena.
type Option func(*Arena)

// WithOffHeap backs slabs with anonymous mappings outside the Go heap.
// Packed attention state contains no pointers, so keeping it off-heap
// removes it from garbage collector scan work.
func WithOffHeap(enabled bool) Option {
	return func(a *Arena) {
		a.offHeap = enabled
	}
}

// WithMaxSlots caps the total number of slots. Zero means the arena is
// bounded only by MaxChunks.
func WithMaxSlots(n int) Option {
	return func(a *Arena) {
		if n > 0 {
			a.maxSlots = uint(n)
		}
	}
}

// WithSlotsPerChunk sets the slab growth granularity.
func WithSlotsPerChunk(n int) Option {
	return func(a *Arena) {
		if n > 0 {
			a.slotsPerChunk = n
		}
	}
}

// Arena hands out fixed-size slots from lazily grown slabs.
//
// Alloc and Free are serialized by a mutex; Bytes is lock-free so
// concurrent readers never contend with allocation. Slots are reused
// without zeroing, callers are expected to overwrite a slot fully
// before publishing it.
type Arena struct {
	slotSize      int
	slotsPerChunk int
	maxSlots      uint // 0 = unbounded
	offHeap       bool

	// chunks are append-only; Bytes() reads them without the lock.
	chunks     [MaxChunks]atomic.Pointer[chunk]
	chunkCount atomic.Uint32

	mu     sync.Mutex
	free   *bitset.BitSet // bit set = slot available
	total  uint           // slots made available so far
	live   uint64
	closed bool

	stats atomicStats
}

// New creates an arena whose slots are slotSize bytes each. No memory is
// reserved until the first allocation.
func New(slotSize int, opts ...Option) (*Arena, error) {
	if slotSize <= 0 {
		return nil, ErrInvalidSlotSize
	}

	a := &Arena{
		slotSize:      slotSize,
		slotsPerChunk: DefaultSlotsPerChunk,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.free = bitset.New(uint(a.slotsPerChunk))
	return a, nil
}

// Alloc hands out the lowest free slot, growing the arena by one slab if
// none is available. The slot content is unspecified.
func (a *Arena) Alloc() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0, ErrClosed
	}

	idx, ok := a.free.NextSet(0)
	if !ok {
		if err := a.growLocked(); err != nil {
			return 0, err
		}
		idx, ok = a.free.NextSet(0)
		if !ok {
			return 0, ErrExhausted
		}
	}

	a.free.Clear(idx)
	a.live++
	a.stats.TotalAllocs.Add(1)
	return uint32(idx), nil
}

func (a *Arena) growLocked() error {
	count := a.chunkCount.Load()
	if count >= MaxChunks {
		return ErrExhausted
	}
	if a.maxSlots > 0 && a.total >= a.maxSlots {
		return ErrExhausted
	}

	chunkBytes := a.slotSize * a.slotsPerChunk
	c := &chunk{}
	if a.offHeap {
		m, err := mmap.MapAnon(chunkBytes)
		if err != nil {
			return fmt.Errorf("arena: map chunk: %w", err)
		}
		c.data = m.Bytes()
		c.mapping = m
	} else {
		c.data = make([]byte, chunkBytes)
	}

	a.chunks[count].Store(c)
	a.chunkCount.Add(1)

	// The final slab may expose fewer slots than it holds when maxSlots
	// is not a multiple of the growth granularity.
	newSlots := uint(a.slotsPerChunk)
	if a.maxSlots > 0 && a.total+newSlots > a.maxSlots {
		newSlots = a.maxSlots - a.total
	}
	for i := uint(0); i < newSlots; i++ {
		a.free.Set(a.total + i)
	}
	a.total += newSlots

	a.stats.ActiveChunks.Add(1)
	a.stats.BytesReserved.Add(uint64(chunkBytes))
	return nil
}

// Bytes returns the slot's backing memory as a full-length slice with
// capacity clamped to the slot, so appends cannot bleed into neighbors.
// The slice is valid until the arena is closed.
func (a *Arena) Bytes(slot uint32) []byte {
	chunkIdx := slot / uint32(a.slotsPerChunk)
	if chunkIdx >= a.chunkCount.Load() {
		panic(fmt.Sprintf("arena: slot %d out of range", slot))
	}

	c := a.chunks[chunkIdx].Load()
	if c == nil {
		panic(fmt.Sprintf("arena: slot %d in released chunk", slot))
	}

	off := int(slot%uint32(a.slotsPerChunk)) * a.slotSize
	return c.data[off : off+a.slotSize : off+a.slotSize]
}

// Free returns a slot to the arena. Freeing a slot that is not live is a
// programming error and panics.
func (a *Arena) Free(slot uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	idx := uint(slot)
	if idx >= a.total || a.free.Test(idx) {
		panic(fmt.Sprintf("arena: double free or invalid slot %d", slot))
	}

	a.free.Set(idx)
	a.live--
	a.stats.TotalFrees.Add(1)
}

// SlotSize returns the size of each slot in bytes.
func (a *Arena) SlotSize() int {
	return a.slotSize
}

// Live returns the number of slots currently handed out.
func (a *Arena) Live() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Reserved returns the memory reserved by the arena in bytes.
func (a *Arena) Reserved() uint64 {
	return a.stats.BytesReserved.Load()
}

// Stats returns a snapshot of the arena statistics.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	live := a.live
	total := a.total
	a.mu.Unlock()

	return Stats{
		SlotSize:      a.slotSize,
		SlotsPerChunk: a.slotsPerChunk,
		ActiveChunks:  a.stats.ActiveChunks.Load(),
		BytesReserved: a.stats.BytesReserved.Load(),
		TotalSlots:    uint64(total),
		LiveSlots:     live,
		TotalAllocs:   a.stats.TotalAllocs.Load(),
		TotalFrees:    a.stats.TotalFrees.Load(),
	}
}

// String implements fmt.Stringer for debug logging.
func (a *Arena) String() string {
	s := a.Stats()
	return fmt.Sprintf("arena(slot=%dB live=%d/%d chunks=%d)",
		s.SlotSize, s.LiveSlots, s.TotalSlots, s.ActiveChunks)
}

// Close releases all slabs. Slices returned by Bytes become invalid.
// Close is idempotent and must not run concurrently with allocations.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	count := a.chunkCount.Load()
	for i := uint32(0); i < count; i++ {
		c := a.chunks[i].Load()
		if c != nil && c.mapping != nil {
			if err := c.mapping.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		a.chunks[i].Store(nil)
	}

	a.free = bitset.New(0)
	a.total = 0
	a.live = 0
	a.stats.ActiveChunks.Store(0)
	a.stats.BytesReserved.Store(0)
	return firstErr
}
