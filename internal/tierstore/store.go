package tierstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/hupe1980/kvgo/internal/arena"
	"github.com/hupe1980/kvgo/internal/resource"
	"github.com/hupe1980/kvgo/quantization"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("tierstore: closed")
	// ErrInvalidDimension is returned when the vector dimension is not positive.
	ErrInvalidDimension = errors.New("tierstore: dimension must be positive")
	// ErrValueLength is returned when a vector does not match the store dimension.
	ErrValueLength = errors.New("tierstore: value length does not match dimension")
	// ErrNotLowerTier is returned when a demotion target is not below the source tier.
	ErrNotLowerTier = errors.New("tierstore: demotion target must be a lower tier")
)

// Ref locates a stored entry: which tier's arena and which slot within it.
type Ref struct {
	Tier quantization.Tier
	Slot uint32
}

// String implements fmt.Stringer.
func (r Ref) String() string {
	return fmt.Sprintf("%s/%d", r.Tier, r.Slot)
}

// SlotBytes returns the stored size of one entry at the given tier: the
// per-group scales and zero-points (4 bytes each) followed by the packed
// codes. This is the unit the byte budget is accounted in.
func SlotBytes(dim, groupSize int, t quantization.Tier) int {
	g := quantization.Groups(dim, groupSize)
	return 8*g + quantization.PackedSize(dim, t)
}

// Option is a configuration option for Store.
type Option func(*Store)

// WithOffHeap backs the tier arenas with anonymous mappings.
func WithOffHeap(enabled bool) Option {
	return func(s *Store) {
		s.offHeap = enabled
	}
}

// WithSlotsPerChunk sets the arena growth granularity.
func WithSlotsPerChunk(n int) Option {
	return func(s *Store) {
		s.slotsPerChunk = n
	}
}

// Store holds quantized attention state in one slab arena per precision
// tier. All slots of a tier have the same size, so storage never
// fragments and a ref is just (tier, slot).
//
// Every Put reserves its slot bytes with the resource controller before
// touching an arena, and every Free returns them, so controller usage can
// never observably exceed the budget through this path.
type Store struct {
	dim       int
	groupSize int
	groups    int
	rc        *resource.Controller

	arenas [quantization.TierCount]*arena.Arena

	offHeap       bool
	slotsPerChunk int

	closed atomic.Bool
}

// New creates a store for vectors of the given dimension, grouped for
// quantization by groupSize. The controller may be nil for an unbudgeted
// store.
func New(dim, groupSize int, rc *resource.Controller, opts ...Option) (*Store, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	if groupSize <= 0 {
		return nil, quantization.ErrInvalidGroupSize
	}

	s := &Store{
		dim:       dim,
		groupSize: groupSize,
		groups:    quantization.Groups(dim, groupSize),
		rc:        rc,
	}
	for _, opt := range opts {
		opt(s)
	}

	var aopts []arena.Option
	if s.offHeap {
		aopts = append(aopts, arena.WithOffHeap(true))
	}
	if s.slotsPerChunk > 0 {
		aopts = append(aopts, arena.WithSlotsPerChunk(s.slotsPerChunk))
	}

	for t := quantization.Bits1; t <= quantization.Bits32; t++ {
		a, err := arena.New(SlotBytes(dim, groupSize, t), aopts...)
		if err != nil {
			return nil, err
		}
		s.arenas[t] = a
	}
	return s, nil
}

// Dim returns the vector dimension.
func (s *Store) Dim() int {
	return s.dim
}

// GroupSize returns the quantization group size.
func (s *Store) GroupSize() int {
	return s.groupSize
}

// SlotSize returns the slot size of the given tier in bytes.
func (s *Store) SlotSize(t quantization.Tier) int {
	return SlotBytes(s.dim, s.groupSize, t)
}

// LiveSlots returns the number of stored entries at the given tier.
func (s *Store) LiveSlots(t quantization.Tier) uint64 {
	return s.arenas[t].Live()
}

// Put quantizes values at the given tier and stores the result. It
// returns resource.ErrBudgetExceeded without storing anything when the
// slot does not fit the budget; the caller decides whether to evict,
// demote, or give up.
func (s *Store) Put(values []float32, tier quantization.Tier) (Ref, error) {
	if s.closed.Load() {
		return Ref{}, ErrClosed
	}
	if len(values) != s.dim {
		return Ref{}, fmt.Errorf("%w: got %d, want %d", ErrValueLength, len(values), s.dim)
	}

	b, err := quantization.Quantize(values, tier, s.groupSize)
	if err != nil {
		return Ref{}, err
	}

	size := int64(s.SlotSize(tier))
	if err := s.rc.Acquire(size); err != nil {
		return Ref{}, err
	}

	slot, err := s.arenas[tier].Alloc()
	if err != nil {
		s.rc.Release(size)
		return Ref{}, err
	}

	s.encodeSlot(s.arenas[tier].Bytes(slot), b)
	return Ref{Tier: tier, Slot: slot}, nil
}

// Load copies the stored block out of the arena. The returned block is
// caller-owned and stays valid after the slot is freed.
func (s *Store) Load(ref Ref) (*quantization.Block, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !ref.Tier.Valid() {
		return nil, quantization.ErrInvalidTier
	}

	buf := s.arenas[ref.Tier].Bytes(ref.Slot)
	b := &quantization.Block{
		Tier:      ref.Tier,
		GroupSize: s.groupSize,
		N:         s.dim,
		Scales:    make([]float32, s.groups),
		Zeros:     make([]float32, s.groups),
		Packed:    make([]byte, quantization.PackedSize(s.dim, ref.Tier)),
	}
	off := decodeHeader(buf, b.Scales, b.Zeros)
	copy(b.Packed, buf[off:])
	return b, nil
}

// LoadValues reconstructs the stored vector into dst, which must be Dim()
// long. The packed codes are decoded in place without copying the slot.
func (s *Store) LoadValues(ref Ref, dst []float32) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !ref.Tier.Valid() {
		return quantization.ErrInvalidTier
	}
	if len(dst) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrValueLength, len(dst), s.dim)
	}

	buf := s.arenas[ref.Tier].Bytes(ref.Slot)
	scales := make([]float32, s.groups)
	zeros := make([]float32, s.groups)
	off := decodeHeader(buf, scales, zeros)

	view := quantization.Block{
		Tier:      ref.Tier,
		GroupSize: s.groupSize,
		N:         s.dim,
		Scales:    scales,
		Zeros:     zeros,
		Packed:    buf[off:],
	}
	quantization.DequantizeInto(dst, &view)
	return nil
}

// Demote re-encodes the entry into a lower tier and stores the copy.
// The source slot is left untouched; the caller frees it only after the
// move has been committed, so concurrent readers of the source never see
// a hole. scratch must be Dim() long.
//
// The source bytes are read without synchronization. A caller that does
// not own the slot must validate afterwards (a generation-checked
// commit) that the entry did not change, and discard the copy when it
// did: a concurrent replace can recycle the slot mid-read.
func (s *Store) Demote(ref Ref, target quantization.Tier, scratch []float32) (Ref, error) {
	if !target.Valid() || !ref.Tier.Valid() || target >= ref.Tier {
		return Ref{}, ErrNotLowerTier
	}
	if err := s.LoadValues(ref, scratch); err != nil {
		return Ref{}, err
	}
	return s.Put(scratch, target)
}

// Free releases the slot and returns its bytes to the budget.
func (s *Store) Free(ref Ref) {
	if s.closed.Load() {
		return
	}
	if !ref.Tier.Valid() {
		panic(fmt.Sprintf("tierstore: free with invalid tier %d", ref.Tier))
	}
	s.arenas[ref.Tier].Free(ref.Slot)
	s.rc.Release(int64(s.SlotSize(ref.Tier)))
}

// Close releases every tier arena. Outstanding refs become invalid.
// Close is idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	var firstErr error
	for _, a := range s.arenas {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Slot layout: scales[groups] float32 LE, zeros[groups] float32 LE,
// packed codes. Slot length equals SlotBytes exactly.
func (s *Store) encodeSlot(buf []byte, b *quantization.Block) {
	off := 0
	for _, sc := range b.Scales {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(sc))
		off += 4
	}
	for _, z := range b.Zeros {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(z))
		off += 4
	}
	copy(buf[off:], b.Packed)
}

func decodeHeader(buf []byte, scales, zeros []float32) int {
	off := 0
	for i := range scales {
		scales[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	for i := range zeros {
		zeros[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	return off
}
